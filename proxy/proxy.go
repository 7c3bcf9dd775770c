// Package proxy provides a transparent LLM inference proxy that parses every
// SSE response it relays and publishes a summary of the reconstructed stream.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/tokenstream/pkg/dotdir"
	"github.com/papercomputeco/tokenstream/pkg/eventstream"
	"github.com/papercomputeco/tokenstream/pkg/stream"
	"github.com/papercomputeco/tokenstream/pkg/tap"
	"github.com/papercomputeco/tokenstream/proxy/header"
	"github.com/papercomputeco/tokenstream/proxy/worker"
)

// errorResponse is the JSON body the proxy answers with when it cannot reach
// the upstream.
type errorResponse struct {
	Error string `json:"error"`
}

// Proxy is a client, LLM inference proxy that taps SSE responses.
// The proxy is transparent: it forwards requests to the upstream LLM provider,
// relays SSE bodies byte for byte and enqueues stream summaries for async
// publishing via its worker pool.
type Proxy struct {
	config        Config
	workerPool    *worker.Pool
	logger        *zap.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler
	captures      *dotdir.Manager
}

// New creates a new Proxy.
func New(config Config, logger *zap.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	config.UpstreamURL = strings.TrimRight(config.UpstreamURL, "/")

	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	wp, err := worker.NewPool(&worker.Config{
		Publisher:  config.Publisher,
		NumWorkers: config.NumWorkers,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	p := &Proxy{
		config:        config,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		captures:      dotdir.NewManager(),
		httpClient: &http.Client{
			// LLM requests can be slow, especially with thinking blocks
			Timeout: 5 * time.Minute,
		},
	}

	// Register transparent proxy route - forwards any path to upstream
	app.All("/*", p.handleProxy)

	return p, nil
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.config.UpstreamURL),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", p.config.UpstreamURL),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the proxy and waits for the worker pool to drain.
// The publisher is left open for the caller to close.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// Stats returns the publish counters of the worker pool.
func (p *Proxy) Stats() worker.Stats {
	return p.workerPool.Stats()
}

// handleProxy is a transparent proxy handler that forwards requests to
// upstream. Successful SSE responses are relayed through the parser.
func (p *Proxy) handleProxy(c *fiber.Ctx) error {
	startTime := time.Now()
	requestID := uuid.NewString()

	path := c.Path()
	if qs := c.Request().URI().QueryString(); len(qs) > 0 {
		path += "?" + string(qs)
	}
	upstreamURL := p.config.UpstreamURL + path
	method := c.Method()

	// fasthttp reuses the request buffer once the handler returns.
	var reqBody io.Reader
	if body := c.Body(); len(body) > 0 {
		reqBody = bytes.NewReader(bytes.Clone(body))
	}

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but a streamed body is relayed
	// asynchronously in a separate goroutine and needs the upstream connection
	// to remain open.
	httpReq, err := http.NewRequestWithContext(context.Background(), method, upstreamURL, reqBody)
	if err != nil {
		p.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding request to upstream",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("url", upstreamURL),
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "upstream request failed"})
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)
	c.Set(header.RequestIDHeader, requestID)

	if httpResp.StatusCode == http.StatusOK && header.IsEventStream(httpResp) {
		return p.handleStreamingProxy(c, httpResp, requestID, path, startTime)
	}

	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		p.logger.Error("failed to read upstream response", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "failed to read upstream response"})
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		p.logger.Warn("upstream returned error",
			zap.String("request_id", requestID),
			zap.Int("status", httpResp.StatusCode),
		)
	}

	return c.Status(httpResp.StatusCode).Send(respBody)
}

// handleStreamingProxy relays an SSE response body to the client while the
// same bytes are parsed.
func (p *Proxy) handleStreamingProxy(c *fiber.Ctx, httpResp *http.Response, requestID, path string, startTime time.Time) error {
	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter uses an internal PipeConns with a buffered channel
	// (capacity 4) and two bufio.Writers, which means Flush() in the callback
	// only pushes data into the pipe, NOT to the TCP socket. This causes all
	// chunks to buffer in memory before being sent to the client.
	//
	// With io.Pipe, pw.Write blocks until the reader consumes the data, and
	// the reader is fasthttp's writeBodyChunked which flushes to TCP after
	// every chunk. This gives direct backpressure and true per-chunk streaming.
	pr, pw := io.Pipe()
	go p.relaySSE(httpResp, pw, requestID, path, startTime)

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// relaySSE copies the upstream body to pw through a tap.Writer, feeds the
// same bytes to a fresh parser and enqueues the parsed summary.
func (p *Proxy) relaySSE(httpResp *http.Response, pw *io.PipeWriter, requestID, path string, startTime time.Time) {
	// Close the upstream response body once streaming is complete.
	defer httpResp.Body.Close()
	defer pw.Close()

	logger := p.logger.With(zap.String("request_id", requestID))

	var dst io.Writer = pw
	var capturePath string
	if p.config.CaptureDir != "" {
		f, err := p.captures.CreateCapture(p.config.CaptureDir, requestID)
		if err != nil {
			logger.Warn("capture disabled for request", zap.Error(err))
		} else {
			defer f.Close()
			capturePath = f.Name()
			dst = &teeWriter{primary: pw, secondary: f, logger: logger}
		}
	}

	insp := tap.NewInspector(tap.Callbacks{
		OnID: func(id string) {
			logger.Debug("stream identified", zap.String("stream_id", id))
		},
		OnUsage: func(r tap.Report) {
			if !r.HasUsageData {
				logger.Debug("stream carried no usage")
				return
			}
			logger.Info("stream usage",
				zap.Int("prompt_tokens", r.Usage.PromptTokens),
				zap.Int("completion_tokens", r.Usage.CompletionTokens),
				zap.Int("total_tokens", r.Usage.TotalTokens),
			)
		},
	}, logger)
	tw := tap.NewWriter(dst, insp)

	opts := append(slices.Clone(p.config.ParserOptions), stream.WithLogger(logger))
	parser := stream.New(opts...)

	if _, err := io.Copy(io.MultiWriter(tw, parser), httpResp.Body); err != nil {
		logger.Error("error relaying SSE stream", zap.Error(err))
	}

	_ = tw.Close()
	parser.Finalize()
	summary := parser.Summary()

	logger.Debug("streaming complete",
		zap.String("stream_id", summary.ID),
		zap.Int("frames", summary.Frames),
		zap.Bool("graceful", summary.Graceful),
		zap.Duration("duration", time.Since(startTime)),
	)

	p.workerPool.Enqueue(worker.Job{
		RequestID: requestID,
		Source: eventstream.EventSource{
			Upstream: p.config.UpstreamURL,
			Capture:  capturePath,
		},
		Request: eventstream.StreamRequestMeta{
			Path:        path,
			StartedAt:   startTime,
			CompletedAt: time.Now(),
			HTTPStatus:  httpResp.StatusCode,
		},
		Summary: summary,
	})
}

// teeWriter writes to primary and, until it first fails, to secondary.
// Only primary errors are returned so a failing capture never breaks the
// client leg.
type teeWriter struct {
	primary   io.Writer
	secondary io.Writer
	failed    bool
	logger    *zap.Logger
}

func (t *teeWriter) Write(b []byte) (int, error) {
	n, err := t.primary.Write(b)
	if n > 0 && !t.failed {
		if _, serr := t.secondary.Write(b[:n]); serr != nil {
			t.failed = true
			t.logger.Warn("capture write failed", zap.Error(serr))
		}
	}
	return n, err
}
