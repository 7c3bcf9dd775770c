package event

// Handler receives emitted events.
type Handler func(Event)

type subscription struct {
	typ Type
	any bool
	fn  Handler
}

// Emitter stamps events with a strictly increasing sequence number and
// delivers each event to every matching subscriber, in registration order,
// before the next event is stamped.
//
// An Emitter belongs to exactly one stream and is not safe for concurrent use.
type Emitter struct {
	seq  uint64
	subs []subscription
}

// NewEmitter returns an Emitter whose first event has Seq 1.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// On registers fn for events of type t.
func (e *Emitter) On(t Type, fn Handler) {
	if fn == nil {
		return
	}
	e.subs = append(e.subs, subscription{typ: t, fn: fn})
}

// Subscribe registers fn for every event.
func (e *Emitter) Subscribe(fn Handler) {
	if fn == nil {
		return
	}
	e.subs = append(e.subs, subscription{any: true, fn: fn})
}

// Emit stamps and dispatches evs in order and returns the stamped events.
func (e *Emitter) Emit(evs ...Event) []Event {
	if len(evs) == 0 {
		return nil
	}

	out := make([]Event, 0, len(evs))
	for _, ev := range evs {
		e.seq++
		ev.Seq = e.seq
		for _, s := range e.subs {
			if s.any || s.typ == ev.Type {
				s.fn(ev)
			}
		}
		out = append(out, ev)
	}
	return out
}

// Seq returns the sequence number of the last emitted event, 0 if none.
func (e *Emitter) Seq() uint64 {
	return e.seq
}
