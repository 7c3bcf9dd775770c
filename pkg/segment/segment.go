// Package segment splits the line stream of a model response into an ordered
// sequence of prose and fenced code sections.
package segment

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/tokenstream/pkg/event"
)

var (
	// fenceRE matches a complete fence line with its trailing newline removed.
	fenceRE = regexp.MustCompile("^\\s{0,3}```([A-Za-z0-9_+#.-]*)\\s*$")

	// fencePrefixRE matches a partial line that could still become a fence.
	fencePrefixRE = regexp.MustCompile("^\\s{0,3}(`{0,3}|```[A-Za-z0-9_+#.-]*\\s*)$")
)

// IDFunc returns a new unique section id.
type IDFunc func() string

// Config is the configuration for a Segmenter.
type Config struct {
	// IDFunc generates section ids (defaults to uuid.NewString).
	IDFunc IDFunc

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Line is one terminated line of a Section, newline removed.
type Line struct {
	Nr      int    `json:"nr"`
	Content string `json:"content"`
}

// Section is a prose or code region of the response.
type Section struct {
	ID       string            `json:"id"`
	Index    int               `json:"index"`
	Kind     event.SectionKind `json:"kind"`
	Language string            `json:"language,omitempty"`
	Lines    []Line            `json:"lines"`
	Open     bool              `json:"open"`
	Forced   bool              `json:"forced,omitempty"`
}

// Text returns the section lines joined with "\n".
func (s *Section) Text() string {
	parts := make([]string, len(s.Lines))
	for i, l := range s.Lines {
		parts[i] = l.Content
	}
	return strings.Join(parts, "\n")
}

// Segmenter consumes fragment events from the line state machine and emits
// text.* and code.* events. It is not safe for concurrent use.
type Segmenter struct {
	idFunc IDFunc
	logger *zap.Logger

	sections []*Section
	open     *Section

	// cur is the current line so far; held is set while cur could still be
	// a fence line and has not been emitted.
	cur     string
	held    bool
	started bool

	toggles    int
	totalLines int
	done       bool
}

// New returns a Segmenter.
func New(c Config) *Segmenter {
	if c.IDFunc == nil {
		c.IDFunc = uuid.NewString
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &Segmenter{
		idFunc: c.IDFunc,
		logger: c.Logger,
	}
}

// Apply processes one event. Events other than line fragments are ignored.
func (s *Segmenter) Apply(ev event.Event) []event.Event {
	if s.done || ev.Type != event.TypeFragment || ev.Fragment == nil {
		return nil
	}
	f := ev.Fragment

	var out []event.Event
	if s.open == nil {
		out = append(out, s.openSection(event.KindProse, ""))
	}

	if !s.started {
		s.cur = ""
		s.held = true
		s.started = true
	}
	s.cur += f.Content

	switch {
	case s.held && f.Complete:
		line := trimEOL(s.cur)
		if m := fenceRE.FindStringSubmatch(line); m != nil {
			out = append(out, s.toggle(m[1])...)
			s.endLine()
			return out
		}
		out = append(out, s.fragment(s.cur, true))

	case s.held && fencePrefixRE.MatchString(s.cur):
		return out

	case s.held:
		s.held = false
		out = append(out, s.fragment(s.cur, false))

	default:
		out = append(out, s.fragment(f.Content, f.Complete))
	}

	if f.Complete {
		s.commitLine(trimEOL(s.cur))
		s.endLine()
	}
	return out
}

// Finalize closes the open section as forced. If no section was ever opened,
// an empty prose section is opened and closed. Calling it again returns nil.
func (s *Segmenter) Finalize() []event.Event {
	if s.done {
		return nil
	}
	s.done = true

	var out []event.Event
	if s.open == nil {
		out = append(out, s.openSection(event.KindProse, ""))
	}

	if s.started {
		// A line the line machine never terminated.
		if s.held {
			out = append(out, s.fragment(s.cur, true))
		}
		s.commitLine(trimEOL(s.cur))
		s.endLine()
	}

	if s.open.Kind == event.KindCode {
		s.logger.Debug("closing unterminated code block",
			zap.String("section_id", s.open.ID),
			zap.String("language", s.open.Language),
		)
	}

	out = append(out, s.closeSection(true))
	return out
}

// Stats returns a stats event describing the current segmentation without
// changing any state.
func (s *Segmenter) Stats() event.Event {
	st := &event.Stats{
		OpenSection:  -1,
		TotalLines:   s.totalLines,
		FenceToggles: s.toggles,
	}
	for _, sec := range s.sections {
		if sec.Kind == event.KindCode {
			st.CodeBlocks++
		} else {
			st.ProseSections++
		}
	}
	if s.open != nil {
		st.OpenSection = s.open.Index
		st.OpenIsCode = s.open.Kind == event.KindCode
	}
	return event.Event{Type: event.TypeStats, Stats: st}
}

// Sections returns a copy of every section seen so far, in order.
func (s *Segmenter) Sections() []Section {
	out := make([]Section, len(s.sections))
	for i, sec := range s.sections {
		out[i] = *sec
		out[i].Lines = append([]Line(nil), sec.Lines...)
	}
	return out
}

func (s *Segmenter) toggle(lang string) []event.Event {
	s.toggles++
	if s.open.Kind == event.KindCode {
		return []event.Event{
			s.closeSection(false),
			s.openSection(event.KindProse, ""),
		}
	}
	return []event.Event{
		s.closeSection(false),
		s.openSection(event.KindCode, lang),
	}
}

func (s *Segmenter) openSection(kind event.SectionKind, lang string) event.Event {
	sec := &Section{
		ID:       s.idFunc(),
		Index:    len(s.sections),
		Kind:     kind,
		Language: lang,
		Open:     true,
	}
	s.sections = append(s.sections, sec)
	s.open = sec

	t := event.TypeTextStart
	if kind == event.KindCode {
		t = event.TypeCodeStart
	}
	return event.Event{Type: t, Section: s.payload(sec)}
}

func (s *Segmenter) closeSection(forced bool) event.Event {
	sec := s.open
	sec.Open = false
	sec.Forced = forced

	t := event.TypeTextEnd
	if sec.Kind == event.KindCode {
		t = event.TypeCodeEnd
	}

	p := s.payload(sec)
	p.Content = sec.Text()
	p.Lines = len(sec.Lines)
	p.Forced = forced
	return event.Event{Type: t, Section: p}
}

func (s *Segmenter) fragment(content string, complete bool) event.Event {
	t := event.TypeTextFragment
	if s.open.Kind == event.KindCode {
		t = event.TypeCodeFragment
	}

	p := s.payload(s.open)
	p.LineNr = len(s.open.Lines)
	p.Content = content
	p.LineComplete = complete
	return event.Event{Type: t, Section: p}
}

func (s *Segmenter) payload(sec *Section) *event.Section {
	return &event.Section{
		ID:       sec.ID,
		Index:    sec.Index,
		Kind:     sec.Kind,
		Language: sec.Language,
	}
}

func (s *Segmenter) commitLine(content string) {
	s.open.Lines = append(s.open.Lines, Line{Nr: len(s.open.Lines), Content: content})
	s.totalLines++
}

func (s *Segmenter) endLine() {
	s.cur = ""
	s.held = false
	s.started = false
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
