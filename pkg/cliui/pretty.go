package cliui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/tokenstream/pkg/event"
	"github.com/papercomputeco/tokenstream/pkg/llm"
)

// Pretty renders parser events as they arrive: prose is written as is, code
// blocks are framed and colored, tool calls and images get one line each.
// Write errors are kept and reported by Err.
type Pretty struct {
	w   io.Writer
	err error

	// atLineStart is false while the last written byte was not a newline.
	atLineStart bool
}

// NewPretty returns a Pretty writing to w.
func NewPretty(w io.Writer) *Pretty {
	return &Pretty{w: w, atLineStart: true}
}

// Handle renders one event. It has the signature of event.Handler.
func (p *Pretty) Handle(ev event.Event) {
	switch ev.Type {
	case event.TypeTextFragment:
		p.text(ev.Section.Content, nil)

	case event.TypeCodeStart:
		p.newline()
		label := ev.Section.Language
		if label == "" {
			label = "code"
		}
		p.printf("%s\n", FenceStyle.Render("┌─ "+label))

	case event.TypeCodeFragment:
		if p.atLineStart {
			p.printf("%s", FenceStyle.Render("│ "))
		}
		p.text(ev.Section.Content, &CodeStyle)

	case event.TypeCodeEnd:
		p.newline()
		footer := "└─"
		if ev.Section.Forced {
			footer += " " + WarnStyle.Render("unterminated")
		}
		p.printf("%s\n", FenceStyle.Render(footer))

	case event.TypeToolComplete:
		p.newline()
		p.printf("%s %s\n", ToolStyle.Render("⚙ "+ev.Tool.Name), DimStyle.Render(ev.Tool.Arguments))

	case event.TypeImage:
		p.newline()
		src := ev.Image.URL
		if src == "" {
			src = fmt.Sprintf("base64, %d bytes", len(ev.Image.B64))
		}
		p.printf("%s %s\n", ToolStyle.Render("▣ image"), DimStyle.Render(src))

	case event.TypeStreamEnd:
		p.newline()
		if !ev.End.Graceful {
			p.printf("%s\n", WarnStyle.Render("stream ended without [DONE]"))
		}
	}
}

// Footer prints a one line summary of finish reason, usage and elapsed time.
// A zero elapsed is left out.
func (p *Pretty) Footer(finishReason string, usage *llm.Usage, elapsed time.Duration) {
	p.newline()

	parts := []string{}
	if finishReason != "" {
		parts = append(parts, "finish: "+finishReason)
	}
	if usage != nil {
		parts = append(parts, fmt.Sprintf("tokens: %d in / %d out", usage.PromptTokens, usage.CompletionTokens))
		if usage.Cost > 0 {
			parts = append(parts, fmt.Sprintf("cost: $%.6f", usage.Cost))
		}
	}
	if elapsed > 0 {
		parts = append(parts, FormatDuration(elapsed))
	}
	if len(parts) == 0 {
		return
	}
	p.printf("%s\n", DimStyle.Render(strings.Join(parts, " · ")))
}

// Err returns the first write error.
func (p *Pretty) Err() error {
	return p.err
}

// text writes s, prefixing continuation lines of code with the gutter.
func (p *Pretty) text(s string, style *lipgloss.Style) {
	for s != "" {
		line, rest, nl := strings.Cut(s, "\n")
		if style != nil && line != "" {
			line = style.Render(line)
		}
		p.printf("%s", line)
		if !nl {
			p.atLineStart = false
			return
		}
		p.printf("\n")
		p.atLineStart = true
		s = rest
		if s != "" && style != nil {
			p.printf("%s", FenceStyle.Render("│ "))
			p.atLineStart = false
		}
	}
}

func (p *Pretty) newline() {
	if !p.atLineStart {
		p.printf("\n")
		p.atLineStart = true
	}
}

func (p *Pretty) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
