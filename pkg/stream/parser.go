// Package stream drives the full parsing pipeline for one LLM SSE response:
// frame decoding, metadata inspection, delta normalization, line and block
// segmentation, tool-call assembly and image extraction. Every event is
// stamped by a single emitter and delivered synchronously, in order.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/papercomputeco/tokenstream/pkg/event"
	"github.com/papercomputeco/tokenstream/pkg/linestate"
	"github.com/papercomputeco/tokenstream/pkg/llm"
	"github.com/papercomputeco/tokenstream/pkg/llm/normalize"
	"github.com/papercomputeco/tokenstream/pkg/segment"
	"github.com/papercomputeco/tokenstream/pkg/sse"
	"github.com/papercomputeco/tokenstream/pkg/tap"
	"github.com/papercomputeco/tokenstream/pkg/toolcall"
	"github.com/papercomputeco/tokenstream/pkg/utils"
)

const (
	readBufferSize = 32 * 1024

	// previewLen bounds frame payloads quoted in debug logs.
	previewLen = 80
)

// Normalizer converts one frame payload into a Delta.
// Returns (nil, nil) if the frame should be skipped.
type Normalizer interface {
	Normalize(payload []byte) (*llm.Delta, error)
}

// Parser is the pipeline for a single stream. It is not safe for concurrent
// use and cannot be reused.
type Parser struct {
	logger     *zap.Logger
	lineEvents bool
	repair     bool
	stats      bool

	emitter    *event.Emitter
	decoder    *sse.Decoder
	inspector  *tap.Inspector
	normalizer Normalizer
	lines      *linestate.Machine
	brackets   *linestate.Machine
	segmenter  *segment.Segmenter
	tools      *toolcall.Assembler

	model        string
	finishReason string
	images       []llm.Image
	frames       int
	skipped      int

	graceful  bool
	finalized bool
}

// New returns a Parser ready for the first chunk.
func New(opts ...Option) *Parser {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.normalizer == nil {
		c.normalizer = normalize.New()
	}

	p := &Parser{
		logger:     c.logger,
		lineEvents: c.lineEvents,
		repair:     c.repair,
		stats:      c.stats,
		emitter:    event.NewEmitter(),
		decoder:    sse.NewDecoder(),
		inspector:  tap.NewInspector(c.callbacks, c.logger),
		normalizer: c.normalizer,
		lines:      linestate.New(linestate.ModeLines),
		segmenter:  segment.New(segment.Config{IDFunc: c.idFunc, Logger: c.logger}),
		tools:      toolcall.New(toolcall.Config{Logger: c.logger}),
	}
	if c.brackets {
		p.brackets = linestate.New(linestate.ModeBrackets)
	}
	return p
}

// On registers fn for events of type t.
func (p *Parser) On(t event.Type, fn event.Handler) {
	p.emitter.On(t, fn)
}

// Subscribe registers fn for every event.
func (p *Parser) Subscribe(fn event.Handler) {
	p.emitter.Subscribe(fn)
}

// Feed pushes one chunk of raw stream bytes and returns the events it
// produced, already delivered to subscribers.
func (p *Parser) Feed(chunk []byte) []event.Event {
	if p.finalized {
		return nil
	}

	var out []event.Event
	for _, f := range p.decoder.Feed(chunk) {
		out = append(out, p.frame(f)...)
	}
	return out
}

// Finalize ends the stream: a pending unterminated frame is processed, every
// open line, block, section and tool call is closed, and or.stream-end is
// emitted last. It is idempotent.
func (p *Parser) Finalize() []event.Event {
	if p.finalized {
		return nil
	}

	var out []event.Event
	for _, f := range p.decoder.Flush() {
		out = append(out, p.frame(f)...)
	}
	if p.finalized {
		// The flushed frame was the terminal one.
		return out
	}
	return append(out, p.finalize()...)
}

// Write implements io.Writer by feeding p.
func (p *Parser) Write(b []byte) (int, error) {
	p.Feed(b)
	return len(b), nil
}

// Close implements io.Closer by finalizing.
func (p *Parser) Close() error {
	p.Finalize()
	return nil
}

// Run reads src until EOF or ctx is done and finalizes. Read errors are
// returned after finalizing.
func (p *Parser) Run(ctx context.Context, src io.Reader) error {
	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			p.Finalize()
			return err
		}

		n, err := src.Read(buf)
		if n > 0 {
			p.Feed(buf[:n])
		}

		switch {
		case errors.Is(err, io.EOF):
			p.Finalize()
			return nil
		case err != nil:
			p.Finalize()
			return fmt.Errorf("reading stream: %w", err)
		}
	}
}

// Stats emits and returns a stats event for the current segmentation. Once
// the stream has ended the snapshot is returned without being emitted, so
// or.stream-end stays the last event.
func (p *Parser) Stats() event.Event {
	if p.finalized {
		return p.segmenter.Stats()
	}
	return p.emitter.Emit(p.segmenter.Stats())[0]
}

// Finalized reports whether the stream has ended.
func (p *Parser) Finalized() bool {
	return p.finalized
}

func (p *Parser) frame(f sse.Frame) []event.Event {
	p.frames++

	if f.Terminal {
		p.graceful = true
		out := p.emitter.Emit(event.Event{
			Type: event.TypeDone,
			Done: &event.Done{FinishReason: p.finishReason},
		})
		return append(out, p.finalize()...)
	}

	p.inspector.Inspect([]byte(f.Data))

	d, err := p.normalizer.Normalize([]byte(f.Data))
	if err != nil {
		p.logger.Warn("could not normalize frame", zap.Error(err))
		p.skipped++
		return nil
	}
	if d == nil {
		p.logger.Debug("skipping frame",
			zap.Int("bytes", len(f.Data)),
			zap.String("preview", utils.Truncate(f.Data, previewLen)),
		)
		p.skipped++
		return nil
	}

	return p.delta(d)
}

func (p *Parser) delta(d *llm.Delta) []event.Event {
	if p.model == "" {
		p.model = d.Model
	}
	if d.FinishReason != "" {
		p.finishReason = d.FinishReason
	}

	var out []event.Event
	if d.Content != nil {
		out = append(out, p.text(p.lines.Feed(*d.Content))...)
		if p.brackets != nil {
			out = append(out, p.emitter.Emit(p.brackets.Feed(*d.Content)...)...)
		}
	}

	out = append(out, p.emitter.Emit(p.tools.Apply(d)...)...)

	// Delta image indices are frame-local; events and Summary count per stream.
	for _, img := range d.Images {
		img.Index = len(p.images)
		p.images = append(p.images, img)
		out = append(out, p.emitter.Emit(event.Event{
			Type:  event.TypeImage,
			Image: &event.Image{Index: img.Index, B64: img.B64, URL: img.URL},
		})...)
	}

	return out
}

// text routes line fragments through the segmenter, emitting the fragment
// itself first when line events are enabled.
func (p *Parser) text(fragments []event.Event) []event.Event {
	var out []event.Event
	for _, ev := range fragments {
		if p.lineEvents {
			out = append(out, p.emitter.Emit(ev)...)
		}
		out = append(out, p.emitter.Emit(p.segmenter.Apply(ev)...)...)
	}
	return out
}

func (p *Parser) finalize() []event.Event {
	p.finalized = true

	if !p.graceful {
		p.logger.Debug("stream ended without terminal frame", zap.Int("frames", p.frames))
	}

	out := p.text(p.lines.Finalize())
	if p.brackets != nil {
		out = append(out, p.emitter.Emit(p.brackets.Finalize()...)...)
	}
	out = append(out, p.emitter.Emit(p.segmenter.Finalize()...)...)
	out = append(out, p.emitter.Emit(p.tools.Finalize()...)...)

	p.inspector.Finalize()

	if p.stats {
		out = append(out, p.emitter.Emit(p.segmenter.Stats())...)
	}

	return append(out, p.emitter.Emit(event.Event{
		Type: event.TypeStreamEnd,
		End:  &event.End{Graceful: p.graceful},
	})...)
}
