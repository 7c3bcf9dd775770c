package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/tokenstream/pkg/stream"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStreamParsed is emitted after a relayed stream has been fully parsed.
	EventTypeStreamParsed = "tokenstream.stream.parsed"
)

// StreamParsedEvent is a transport-neutral event payload for a parsed stream.
type StreamParsedEvent struct {
	SchemaVersion int               `json:"schema_version"`
	EventType     string            `json:"event_type"`
	EventID       string            `json:"event_id"`
	EmittedAt     time.Time         `json:"emitted_at"`
	Source        EventSource       `json:"source"`
	RequestMeta   StreamRequestMeta `json:"request_meta"`
	Summary       stream.Summary    `json:"summary"`
}

// EventSource identifies where the stream originated.
type EventSource struct {
	Upstream string `json:"upstream"`
	Capture  string `json:"capture,omitempty"`
}

// StreamRequestMeta captures request lifecycle metadata for the event.
type StreamRequestMeta struct {
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	HTTPStatus  int       `json:"http_status"`
}

// NewStreamParsedEvent wraps summary in a versioned envelope with a fresh ID.
func NewStreamParsedEvent(source EventSource, meta StreamRequestMeta, summary stream.Summary) *StreamParsedEvent {
	if meta.DurationMs == 0 && !meta.CompletedAt.IsZero() {
		meta.DurationMs = meta.CompletedAt.Sub(meta.StartedAt).Milliseconds()
	}

	return &StreamParsedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeStreamParsed,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		RequestMeta:   meta,
		Summary:       summary,
	}
}
