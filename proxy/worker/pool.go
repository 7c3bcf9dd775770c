// Package worker provides an asynchronous worker pool that publishes the
// summaries of parsed streams through an eventstream.Publisher.
//
// The pool decouples publishing from the proxy's HTTP hot path so that the
// client-proxy-upstream interaction is fully transparent.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/tokenstream/pkg/eventstream"
	"github.com/papercomputeco/tokenstream/pkg/eventstream/nop"
	"github.com/papercomputeco/tokenstream/pkg/stream"
)

var (
	defaultNumWorkers     uint = 3
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = time.Minute
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// RequestID is the proxy-assigned request ID.
	RequestID string

	Source  eventstream.EventSource
	Request eventstream.StreamRequestMeta
	Summary stream.Summary
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives one event per job. Defaults to a no-op publisher.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds a single publish (defaults to one minute).
	PublishTimeout time.Duration

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes publish jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	mu        sync.Mutex
	published uint64
	failed    uint64
	dropped   uint64
}

// Stats are the pool's running counters.
type Stats struct {
	Published uint64
	Failed    uint64
	Dropped   uint64
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("request_id", job.RequestID),
			zap.String("model", job.Summary.Model),
		)
		return true
	default:
		p.count(&p.dropped)
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("request_id", job.RequestID),
			zap.String("model", job.Summary.Model),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the proxy HTTP server has stopped.
// The publisher is not closed.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Published: p.published, Failed: p.failed, Dropped: p.dropped}
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("publish worker stopped", zap.Uint("worker_id", id))
}

// processJob wraps the job summary in an event and publishes it.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	ev := eventstream.NewStreamParsedEvent(job.Source, job.Request, job.Summary)

	if err := p.config.Publisher.PublishStream(ctx, ev); err != nil {
		p.count(&p.failed)
		p.logger.Error("publishing stream summary failed",
			zap.String("request_id", job.RequestID),
			zap.String("event_id", ev.EventID),
			zap.Error(err),
		)
		return
	}

	p.count(&p.published)
	p.logger.Info("stream summary published",
		zap.String("request_id", job.RequestID),
		zap.String("event_id", ev.EventID),
		zap.String("stream_id", job.Summary.ID),
		zap.Int("sections", len(job.Summary.Sections)),
		zap.Int("tool_calls", len(job.Summary.ToolCalls)),
		zap.Bool("graceful", job.Summary.Graceful),
	)
}

func (p *Pool) count(n *uint64) {
	p.mu.Lock()
	*n++
	p.mu.Unlock()
}
