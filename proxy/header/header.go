// Package header filters headers on both legs of the proxy:
//
//	Client <--> Proxy <--> Upstream LLM Provider
package header

import (
	"net/http"
	"net/textproto"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RequestIDHeader carries the proxy-assigned request ID back to the client.
// The same ID names the capture file and keys the published summary.
const RequestIDHeader = "X-Tokenstream-Request-Id"

// hopByHop headers belong to one connection and never cross the proxy.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client to upstream. The transport sets Host and negotiates its own
// compression, and only the proxy assigns request IDs.
var skipRequest = skipSet("Host", "Accept-Encoding", RequestIDHeader)

// Upstream to client. The body arrives decompressed and fiber computes its
// own length and encoding.
var skipResponse = skipSet("Content-Encoding", "Content-Length")

func skipSet(extra ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(hopByHop)+len(extra))
	for _, k := range append(append([]string(nil), hopByHop...), extra...) {
		m[textproto.CanonicalMIMEHeaderKey(k)] = struct{}{}
	}
	return m
}

// connectionTokens returns the extra hop-by-hop headers named in a
// Connection header value.
func connectionTokens(values ...string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, v := range values {
		for tok := range strings.SplitSeq(v, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				out[textproto.CanonicalMIMEHeaderKey(tok)] = struct{}{}
			}
		}
	}
	return out
}

// Handler manages headers between proxy connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// SetUpstreamRequestHeaders copies the client request headers onto req.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	named := connectionTokens(string(c.Request().Header.Peek("Connection")))

	c.Request().Header.VisitAll(func(key, value []byte) {
		k := textproto.CanonicalMIMEHeaderKey(string(key))
		if skipped(k, skipRequest, named) {
			return
		}
		req.Header.Set(k, string(value))
	})
}

// SetClientResponseHeaders copies the upstream response headers onto the
// client response. Multiple values are joined with a comma.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	named := connectionTokens(resp.Header.Values("Connection")...)

	for k, v := range resp.Header {
		if skipped(textproto.CanonicalMIMEHeaderKey(k), skipResponse, named) {
			continue
		}
		c.Set(k, strings.Join(v, ", "))
	}
}

// IsEventStream reports whether resp carries an SSE body.
func IsEventStream(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "text/event-stream")
}

func skipped(k string, fixed, named map[string]struct{}) bool {
	if _, ok := fixed[k]; ok {
		return true
	}
	_, ok := named[k]
	return ok
}
