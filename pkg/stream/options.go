package stream

import (
	"go.uber.org/zap"

	"github.com/papercomputeco/tokenstream/pkg/segment"
	"github.com/papercomputeco/tokenstream/pkg/tap"
)

type config struct {
	logger     *zap.Logger
	idFunc     segment.IDFunc
	normalizer Normalizer
	callbacks  tap.Callbacks
	lineEvents bool
	brackets   bool
	repair     bool
	stats      bool
}

// Option configures a Parser created with New.
type Option func(*config)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithIDFunc sets the section id generator.
func WithIDFunc(fn segment.IDFunc) Option {
	return func(c *config) {
		c.idFunc = fn
	}
}

// WithNormalizer replaces the chat-completions delta normalizer.
func WithNormalizer(n Normalizer) Option {
	return func(c *config) {
		c.normalizer = n
	}
}

// WithLineEvents also emits the raw fragment events of the line machine.
func WithLineEvents(enabled bool) Option {
	return func(c *config) {
		c.lineEvents = enabled
	}
}

// WithBracketTracking runs a bracket machine over the text next to the line
// machine and emits its bracket and inBracket events.
func WithBracketTracking(enabled bool) Option {
	return func(c *config) {
		c.brackets = enabled
	}
}

// WithMetadata registers callbacks for the stream id and usage report.
func WithMetadata(cb tap.Callbacks) Option {
	return func(c *config) {
		c.callbacks = cb
	}
}

// WithRepair repairs the arguments of completed tool calls in Summary.
// tool.complete events always carry the arguments as streamed.
func WithRepair(enabled bool) Option {
	return func(c *config) {
		c.repair = enabled
	}
}

// WithStats emits a stats event at stream end, just before or.stream-end.
func WithStats(enabled bool) Option {
	return func(c *config) {
		c.stats = enabled
	}
}
