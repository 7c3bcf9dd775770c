package stream

import (
	"strings"

	"github.com/papercomputeco/tokenstream/pkg/llm"
	"github.com/papercomputeco/tokenstream/pkg/segment"
	"github.com/papercomputeco/tokenstream/pkg/toolcall"
)

// Summary is the reconstructed document of a stream.
type Summary struct {
	ID           string            `json:"id,omitempty"`
	Model        string            `json:"model,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Sections     []segment.Section `json:"sections"`
	ToolCalls    []toolcall.State  `json:"tool_calls,omitempty"`
	Images       []llm.Image       `json:"images,omitempty"`

	// Usage is nil when the stream carried no usage object.
	Usage *llm.Usage `json:"usage,omitempty"`

	Graceful bool   `json:"graceful"`
	Frames   int    `json:"frames"`
	Skipped  int    `json:"skipped"`
	Events   uint64 `json:"events"`
}

// Summary returns what has been reconstructed so far. It is complete once the
// parser is finalized. With WithRepair, completed tool calls carry repaired
// arguments.
func (p *Parser) Summary() Summary {
	s := Summary{
		ID:           p.inspector.ID(),
		Model:        p.model,
		FinishReason: p.finishReason,
		Sections:     p.segmenter.Sections(),
		ToolCalls:    p.tools.Calls(),
		Images:       append([]llm.Image(nil), p.images...),
		Graceful:     p.graceful,
		Frames:       p.frames,
		Skipped:      p.skipped,
		Events:       p.emitter.Seq(),
	}

	if p.repair {
		for i, st := range s.ToolCalls {
			s.ToolCalls[i] = toolcall.RepairState(st)
		}
	}

	if r := p.inspector.Report(); r.HasUsageData {
		u := r.Usage
		s.Usage = &u
	}
	return s
}

// Text returns the text of all non-empty sections, code included, joined
// with a newline.
func (s Summary) Text() string {
	parts := make([]string, 0, len(s.Sections))
	for _, sec := range s.Sections {
		if t := sec.Text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}
