package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tokenstream/pkg/eventstream"
	tokenlogger "github.com/papercomputeco/tokenstream/pkg/logger"
	"github.com/papercomputeco/tokenstream/pkg/stream"
	"github.com/papercomputeco/tokenstream/proxy/header"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.StreamParsedEvent
}

func (r *recordingPublisher) PublishStream(_ context.Context, ev *eventstream.StreamParsedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) Events() []*eventstream.StreamParsedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.StreamParsedEvent(nil), r.events...)
}

// newTestProxy creates a Proxy pointed at the given upstream URL that records
// published summaries.
func newTestProxy(upstreamURL string, opts ...stream.Option) (*Proxy, *recordingPublisher) {
	pub := &recordingPublisher{}
	p, err := New(Config{
		ListenAddr:    ":0",
		UpstreamURL:   upstreamURL,
		ParserOptions: opts,
		Publisher:     pub,
	}, tokenlogger.Nop())
	Expect(err).NotTo(HaveOccurred())
	return p, pub
}

// sseUpstream serves events one flush at a time.
func sseUpstream(events ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, ok := w.(http.Flusher)
		Expect(ok).To(BeTrue())

		for _, event := range events {
			fmt.Fprint(w, event)
			flusher.Flush()
		}
	}))
}

func chatRequest() *http.Request {
	body := `{"model":"gpt-4","stream":true,"messages":[{"role":"user","content":"Say hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// roundTrip sends req through p and returns the response and its body.
func roundTrip(p *Proxy, req *http.Request) (*http.Response, string) {
	resp, err := p.server.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, string(body)
}

var _ = Describe("New", func() {
	It("requires an upstream URL", func() {
		_, err := New(Config{}, nil)
		Expect(err).To(MatchError("upstream URL is required"))
	})

	It("trims a trailing slash from the upstream", func() {
		p, err := New(Config{UpstreamURL: "http://localhost:11434/"}, nil)
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()
		Expect(p.config.UpstreamURL).To(Equal("http://localhost:11434"))
	})
})

var _ = Describe("Non-streaming Proxy", func() {
	var (
		p        *Proxy
		pub      *recordingPublisher
		upstream *httptest.Server
		seen     *http.Request
	)

	BeforeEach(func() {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = r.Clone(context.Background())
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Path == "/missing" {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":"not found"}`)
				return
			}
			fmt.Fprint(w, `{"id":"chatcmpl-1","choices":[{"message":{"content":"hi"}}]}`)
		}))
		p, pub = newTestProxy(upstream.URL)
	})

	AfterEach(func() {
		if p != nil {
			p.Close()
		}
		upstream.Close()
	})

	It("passes JSON responses through untouched and publishes nothing", func() {
		resp, body := roundTrip(p, chatRequest())

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(Equal(`{"id":"chatcmpl-1","choices":[{"message":{"content":"hi"}}]}`))
		Expect(resp.Header.Get(header.RequestIDHeader)).NotTo(BeEmpty())

		p.Close()
		p = nil
		Expect(pub.Events()).To(BeEmpty())
	})

	It("forwards the path and query string", func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/models?limit=2", nil)
		resp, _ := roundTrip(p, req)

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(seen.URL.Path).To(Equal("/v1/models"))
		Expect(seen.URL.RawQuery).To(Equal("limit=2"))
	})

	It("relays upstream error statuses", func() {
		req := httptest.NewRequest(http.MethodGet, "/missing", nil)
		resp, body := roundTrip(p, req)

		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(body).To(ContainSubstring("not found"))
	})
})

var _ = Describe("Unreachable upstream", func() {
	It("answers 502", func() {
		upstream := httptest.NewServer(http.NotFoundHandler())
		url := upstream.URL
		upstream.Close()

		p, _ := newTestProxy(url)
		defer p.Close()

		resp, body := roundTrip(p, chatRequest())
		Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
		Expect(body).To(ContainSubstring("upstream request failed"))
	})
})
