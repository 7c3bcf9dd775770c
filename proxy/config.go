package proxy

import (
	"github.com/papercomputeco/tokenstream/pkg/eventstream"
	"github.com/papercomputeco/tokenstream/pkg/stream"
)

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the upstream LLM provider URL (e.g., "https://api.openai.com")
	UpstreamURL string

	// ParserOptions are applied to the parser of every relayed SSE response.
	ParserOptions []stream.Option

	// CaptureDir, when set, receives a copy of every relayed SSE body.
	CaptureDir string

	// Publisher receives the summary of every parsed stream.
	// If nil, summaries are only logged.
	Publisher eventstream.Publisher

	// NumWorkers is the number of publish workers.
	NumWorkers uint
}
