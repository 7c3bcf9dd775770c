package eventstream

import "context"

// Publisher publishes stream events to an event stream backend.
type Publisher interface {
	PublishStream(ctx context.Context, event *StreamParsedEvent) error
	Close() error
}
