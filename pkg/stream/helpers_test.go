package stream_test

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/papercomputeco/tokenstream/pkg/event"
	"github.com/papercomputeco/tokenstream/pkg/stream"
)

// frame renders one SSE data frame.
func frame(payload string) string {
	return "data: " + payload + "\n\n"
}

// contentFrame renders a streaming delta carrying text.
func contentFrame(text string) string {
	b, _ := json.Marshal(text)
	return frame(fmt.Sprintf(`{"id":"gen-1","model":"test/model","choices":[{"index":0,"delta":{"content":%s}}]}`, b))
}

// contentStream renders one frame per part followed by the terminal frame.
func contentStream(parts ...string) string {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(contentFrame(p))
	}
	sb.WriteString(frame("[DONE]"))
	return sb.String()
}

// newParser returns a parser with deterministic section ids.
func newParser(opts ...stream.Option) *stream.Parser {
	n := 0
	ids := stream.WithIDFunc(func() string {
		n++
		return fmt.Sprintf("section-%d", n)
	})
	return stream.New(append([]stream.Option{ids}, opts...)...)
}

// feedChunked feeds input in chunks of size n and finalizes.
func feedChunked(p *stream.Parser, input string, n int) []event.Event {
	var out []event.Event
	for start := 0; start < len(input); start += n {
		out = append(out, p.Feed([]byte(input[start:min(start+n, len(input))]))...)
	}
	return append(out, p.Finalize()...)
}

func ofType(evs []event.Event, t event.Type) []event.Event {
	var out []event.Event
	for _, ev := range evs {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func concatSections(evs []event.Event, t event.Type) string {
	var sb strings.Builder
	for _, ev := range ofType(evs, t) {
		sb.WriteString(ev.Section.Content)
	}
	return sb.String()
}
