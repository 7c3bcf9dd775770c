package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tokenstream/pkg/event"
	"github.com/papercomputeco/tokenstream/pkg/eventstream"
	"github.com/papercomputeco/tokenstream/pkg/llm"
	"github.com/papercomputeco/tokenstream/pkg/segment"
	"github.com/papercomputeco/tokenstream/pkg/stream"
)

var _ = Describe("Event", func() {
	now := time.Unix(1735689600, 0).UTC()

	summary := stream.Summary{
		ID:           "chatcmpl-1",
		Model:        "gpt-4.1",
		FinishReason: "stop",
		Sections: []segment.Section{
			{ID: "s1", Kind: event.KindProse, Lines: []segment.Line{{Nr: 0, Content: "hi"}}},
		},
		Usage:    &llm.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
		Graceful: true,
	}

	It("marshals StreamParsedEvent with expected top-level keys", func() {
		event := eventstream.NewStreamParsedEvent(
			eventstream.EventSource{Upstream: "https://api.openai.com"},
			eventstream.StreamRequestMeta{
				Path:        "/v1/chat/completions",
				StartedAt:   now.Add(-2 * time.Second),
				CompletedAt: now,
				HTTPStatus:  200,
			},
			summary,
		)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("request_meta"))
		Expect(got).To(HaveKey("summary"))
		Expect(got["summary"]).To(HaveKeyWithValue("id", "chatcmpl-1"))
	})

	It("fills the envelope", func() {
		event := eventstream.NewStreamParsedEvent(
			eventstream.EventSource{Upstream: "u"},
			eventstream.StreamRequestMeta{StartedAt: now.Add(-1500 * time.Millisecond), CompletedAt: now},
			summary,
		)

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal(eventstream.EventTypeStreamParsed))
		Expect(event.EventID).To(HaveLen(36))
		Expect(event.RequestMeta.DurationMs).To(Equal(int64(1500)))
		Expect(event.EmittedAt.IsZero()).To(BeFalse())
	})

	It("gives every event a distinct ID", func() {
		a := eventstream.NewStreamParsedEvent(eventstream.EventSource{}, eventstream.StreamRequestMeta{}, summary)
		b := eventstream.NewStreamParsedEvent(eventstream.EventSource{}, eventstream.StreamRequestMeta{}, summary)
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.RequestMeta.DurationMs).To(BeZero())
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeStreamParsed).To(Equal("tokenstream.stream.parsed"))
	})

	It("provides ErrNilStreamEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilStreamEvent).To(MatchError("nil stream event"))
	})
})
