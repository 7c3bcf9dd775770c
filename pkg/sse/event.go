// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// frame decoder for LLM token streams. Bytes are pushed in arbitrarily sized
// and arbitrarily aligned chunks (mid UTF-8 sequence, mid line, mid delimiter)
// and complete frames are returned as soon as their terminating blank line is
// seen.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DoneSentinel is the payload of the terminal frame of an OpenAI-compatible
// stream.
const DoneSentinel = "[DONE]"

// Frame represents a single SSE event, delimited by a blank line in the
// upstream byte stream.
type Frame struct {
	// Data is the concatenated contents of all "data:" lines for this frame,
	// joined with "\n".
	Data string

	// Event is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Event string

	// ID is the last event ID from the "id:" field, if present.
	ID string

	// Terminal is set on the DoneSentinel frame. No frames follow it.
	Terminal bool
}
