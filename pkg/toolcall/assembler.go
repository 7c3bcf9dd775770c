// Package toolcall reassembles streamed tool invocations. Fragments are keyed
// by their index; arguments are concatenated as raw text and never parsed
// while streaming.
package toolcall

import (
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/tokenstream/pkg/event"
	"github.com/papercomputeco/tokenstream/pkg/llm"
)

// Finish reasons that complete every open call.
const (
	FinishToolCalls    = "tool_calls"
	FinishFunctionCall = "function_call"
)

// State is the accumulated state of one tool call.
type State struct {
	Index     int    `json:"index"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
	Complete  bool   `json:"complete"`

	// Repaired is set by RepairState when Arguments was rewritten.
	Repaired bool `json:"repaired,omitempty"`
}

// Config is the configuration for an Assembler.
type Config struct {
	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Assembler accumulates tool-call fragments and emits tool.* events.
// It is not safe for concurrent use.
type Assembler struct {
	logger *zap.Logger

	// calls stores call state keyed by index.
	calls map[int]*State
	// args accumulates raw arguments per index.
	args map[int]*strings.Builder
	// order preserves the order calls first appeared.
	order []int

	done bool
}

// New returns an empty Assembler.
func New(c Config) *Assembler {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &Assembler{
		logger: c.Logger,
		calls:  map[int]*State{},
		args:   map[int]*strings.Builder{},
	}
}

// Apply ingests the tool-call fragments and finish reason of d.
func (a *Assembler) Apply(d *llm.Delta) []event.Event {
	if a.done || d == nil {
		return nil
	}

	var out []event.Event
	for _, frag := range d.ToolCalls {
		st := a.calls[frag.Index]
		switch {
		case st == nil:
			st = &State{Index: frag.Index, CallID: frag.CallID, Name: frag.Name}
			a.calls[frag.Index] = st
			a.args[frag.Index] = &strings.Builder{}
			a.order = append(a.order, frag.Index)
			out = append(out, a.event(event.TypeToolStart, st, ""))

		case st.Complete:
			a.logger.Debug("ignoring fragment for completed tool call",
				zap.Int("index", frag.Index),
				zap.String("call_id", st.CallID),
			)
			continue

		default:
			if st.CallID == "" {
				st.CallID = frag.CallID
			}
			if st.Name == "" {
				st.Name = frag.Name
			}
		}

		if frag.Arguments != nil {
			a.args[frag.Index].WriteString(*frag.Arguments)
			st.Arguments = a.args[frag.Index].String()
			out = append(out, a.event(event.TypeToolArguments, st, *frag.Arguments))
		}

		if frag.Complete {
			out = append(out, a.complete(st))
		}
	}

	if d.FinishReason == FinishToolCalls || d.FinishReason == FinishFunctionCall {
		out = append(out, a.completeAll()...)
	}

	return out
}

// Finalize completes every call still open, in first-seen order.
// Calling it again returns nil.
func (a *Assembler) Finalize() []event.Event {
	if a.done {
		return nil
	}
	a.done = true
	return a.completeAll()
}

// Calls returns every call seen so far in first-seen order.
func (a *Assembler) Calls() []State {
	out := make([]State, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.calls[idx])
	}
	return out
}

func (a *Assembler) completeAll() []event.Event {
	var out []event.Event
	for _, idx := range a.order {
		if st := a.calls[idx]; !st.Complete {
			out = append(out, a.complete(st))
		}
	}
	return out
}

func (a *Assembler) complete(st *State) event.Event {
	st.Complete = true
	return a.event(event.TypeToolComplete, st, st.Arguments)
}

func (a *Assembler) event(t event.Type, st *State, args string) event.Event {
	return event.Event{
		Type: t,
		Tool: &event.Tool{
			Index:     st.Index,
			CallID:    st.CallID,
			Name:      st.Name,
			Arguments: args,
		},
	}
}
