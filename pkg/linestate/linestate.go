// Package linestate implements the incremental line and bracket state
// machine. Text deltas of arbitrary size are fed in; the machine emits
// fragment events as soon as anything can be classified and keeps the
// unclassified remainder in its Context.
package linestate

import (
	"strings"

	"github.com/papercomputeco/tokenstream/pkg/event"
)

// Mode selects what the machine tracks.
type Mode int

const (
	// ModeLines splits text into newline-terminated lines.
	ModeLines Mode = iota

	// ModeBrackets extracts the content of single-level {...} blocks.
	ModeBrackets
)

// State is the current state of a Machine.
type State int

const (
	WaitingForEOL State = iota
	WaitForOpeningBracket
	WaitingForClosingBracket
)

func (s State) String() string {
	switch s {
	case WaitingForEOL:
		return "waitingForEOL"
	case WaitForOpeningBracket:
		return "waitForOpeningBracket"
	case WaitingForClosingBracket:
		return "waitingForClosingBracket"
	default:
		return "unknown"
	}
}

// Context is the mutable parse state of one stream.
type Context struct {
	State State

	// Idle is set while the current state waits for more input.
	Idle bool

	// Rest is the unconsumed, unclassified suffix of all text fed so far.
	Rest string

	// Line accumulates the current partial line in ModeLines.
	Line string

	LineNr  int
	Seq     int
	BlockID int
}

// Machine is a line or bracket state machine. It is not safe for concurrent
// use; create one per stream.
type Machine struct {
	mode Mode
	ctx  Context
	done bool
}

// New returns a Machine in the initial state for mode.
func New(mode Mode) *Machine {
	m := &Machine{mode: mode}
	switch mode {
	case ModeBrackets:
		m.ctx.State = WaitForOpeningBracket
	default:
		m.ctx.State = WaitingForEOL
	}
	m.ctx.Idle = true
	return m
}

// Context returns a copy of the current parse state.
func (m *Machine) Context() Context {
	return m.ctx
}

// Feed appends text and returns the fragment events it completes. Events are
// unstamped; sequencing is done by the caller's emitter.
func (m *Machine) Feed(text string) []event.Event {
	if m.done || text == "" {
		return nil
	}

	m.ctx.Rest += text
	return m.consume()
}

// consume runs states until one goes idle. A state handler returns true when
// it transitioned and the new state should run on the remaining input.
func (m *Machine) consume() []event.Event {
	var out []event.Event
	m.ctx.Idle = false

	for {
		var again bool
		switch m.ctx.State {
		case WaitingForEOL:
			again = m.waitingForEOL(&out)
		case WaitForOpeningBracket:
			again = m.waitForOpeningBracket(&out)
		case WaitingForClosingBracket:
			again = m.waitingForClosingBracket(&out)
		}

		if !again {
			m.ctx.Idle = true
			return out
		}
	}
}

func (m *Machine) waitingForEOL(out *[]event.Event) bool {
	c := &m.ctx
	if c.Rest == "" {
		return false
	}

	idx := strings.IndexByte(c.Rest, '\n')
	if idx < 0 {
		c.Line += c.Rest
		*out = append(*out, m.fragment(event.TypeFragment, c.Rest, false, ""))
		c.Seq++
		c.Rest = ""
		return false
	}

	piece := c.Rest[:idx+1]
	c.Line += piece
	*out = append(*out, m.fragment(event.TypeFragment, piece, true, ""))

	c.Rest = c.Rest[idx+1:]
	c.Line = ""
	c.LineNr++
	c.Seq = 0
	return true
}

func (m *Machine) waitForOpeningBracket(out *[]event.Event) bool {
	c := &m.ctx
	idx := strings.IndexByte(c.Rest, '{')
	if idx < 0 {
		return false
	}

	// Text outside a block is dropped.
	c.Rest = c.Rest[idx+1:]
	c.Seq = 0
	c.State = WaitingForClosingBracket
	*out = append(*out, event.Event{
		Type:    event.TypeBracket,
		Bracket: &event.Bracket{BlockID: c.BlockID, Open: true},
	})
	return true
}

func (m *Machine) waitingForClosingBracket(out *[]event.Event) bool {
	c := &m.ctx
	open := strings.IndexByte(c.Rest, '{')
	closing := strings.IndexByte(c.Rest, '}')

	switch {
	case open >= 0 && (closing < 0 || open < closing):
		// Only one level is tracked: a nested opening brace restarts the
		// search and the content before it is dropped.
		c.State = WaitForOpeningBracket
		return true

	case closing >= 0:
		*out = append(*out, m.fragment(event.TypeInBracket, c.Rest[:closing], true, event.PositionLast))
		c.Rest = c.Rest[closing+1:]
		*out = append(*out, m.closeBlock(false))
		return true

	case c.Rest != "":
		pos := event.PositionMiddle
		if c.Seq == 0 {
			pos = event.PositionFirst
		}
		*out = append(*out, m.fragment(event.TypeInBracket, c.Rest, false, pos))
		c.Seq++
		c.Rest = ""
	}
	return false
}

// Finalize closes whatever is open and stops the machine. A pending partial
// line is terminated with an empty complete fragment; an open bracket block
// is closed with a forced last fragment. Calling it again returns nil.
func (m *Machine) Finalize() []event.Event {
	if m.done {
		return nil
	}
	m.done = true

	c := &m.ctx
	var out []event.Event

	switch c.State {
	case WaitingForEOL:
		if c.Line != "" {
			out = append(out, m.fragment(event.TypeFragment, "", true, ""))
			c.Line = ""
			c.LineNr++
			c.Seq = 0
		}

	case WaitingForClosingBracket:
		out = append(out, m.fragment(event.TypeInBracket, c.Rest, true, event.PositionLast))
		out = append(out, m.closeBlock(true))
	}

	c.Rest = ""
	c.Idle = true
	return out
}

func (m *Machine) closeBlock(forced bool) event.Event {
	c := &m.ctx
	ev := event.Event{
		Type:    event.TypeBracket,
		Bracket: &event.Bracket{BlockID: c.BlockID, Forced: forced},
	}
	c.BlockID++
	c.Seq = 0
	c.State = WaitForOpeningBracket
	return ev
}

func (m *Machine) fragment(t event.Type, content string, complete bool, pos event.Position) event.Event {
	c := &m.ctx
	f := &event.Fragment{
		Seq:      c.Seq,
		LineNr:   c.LineNr,
		BlockID:  c.BlockID,
		Content:  content,
		Complete: complete,
		Position: pos,
	}
	if t == event.TypeFragment {
		f.Line = c.Line
	}
	return event.Event{Type: t, Fragment: f}
}
