// Package kafka publishes stream events to a Kafka topic. Each event is one
// JSON message keyed by the upstream stream ID so summaries of one response
// land on one partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/tokenstream/pkg/eventstream"
)

const (
	defaultMaxElapsed = 30 * time.Second
	defaultWriteWait  = 10 * time.Second
)

// Config configures a Publisher.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string

	// MaxElapsed bounds the retries of a single publish (defaults to 30s).
	MaxElapsed time.Duration

	Logger *zap.Logger
}

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes StreamParsedEvents to Kafka.
type Publisher struct {
	writer     messageWriter
	topic      string
	maxElapsed time.Duration
	logger     *zap.Logger
}

// NewPublisher creates a Publisher backed by a kafka-go Writer.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		WriteTimeout: defaultWriteWait,
		Transport:    &kafkago.Transport{ClientID: c.ClientID},
	}

	return newPublisher(w, c), nil
}

func newPublisher(w messageWriter, c Config) *Publisher {
	if c.MaxElapsed == 0 {
		c.MaxElapsed = defaultMaxElapsed
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &Publisher{
		writer:     w,
		topic:      c.Topic,
		maxElapsed: c.MaxElapsed,
		logger:     c.Logger,
	}
}

// PublishStream encodes event and writes it, retrying with exponential
// backoff until MaxElapsed or ctx is done.
func (p *Publisher) PublishStream(ctx context.Context, event *eventstream.StreamParsedEvent) error {
	if event == nil {
		return eventstream.ErrNilStreamEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding stream event: %w", err)
	}

	key := event.Summary.ID
	if key == "" {
		key = event.EventID
	}

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.maxElapsed

	op := func() error {
		return p.writer.WriteMessages(ctx, msg)
	}
	notify := func(err error, next time.Duration) {
		p.logger.Warn("kafka publish failed, retrying",
			zap.String("topic", p.topic),
			zap.String("event_id", event.EventID),
			zap.Duration("next", next),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("publishing stream event to %s: %w", p.topic, err)
	}

	p.logger.Debug("stream event published",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.String("key", key),
	)
	return nil
}

// Close flushes pending writes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
