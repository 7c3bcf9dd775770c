// Package tap observes an SSE byte stream for response metadata (the
// generation id and token usage) without altering what flows through it.
package tap

import (
	"bytes"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/papercomputeco/tokenstream/pkg/llm"
	"github.com/papercomputeco/tokenstream/pkg/llm/normalize"
)

// Report is delivered exactly once per stream to OnUsage.
type Report struct {
	Usage llm.Usage `json:"usage"`

	// HasUsageData is false when the stream ended without a usage object.
	HasUsageData bool `json:"has_usage_data"`
}

// Callbacks are invoked synchronously from Inspect and Finalize.
type Callbacks struct {
	// OnID receives the first top-level "id" seen.
	OnID func(id string)

	// OnUsage receives the first usage object, or an empty report when the
	// stream ends without one.
	OnUsage func(r Report)
}

// Inspector extracts the id and usage from frame payloads.
// It is not safe for concurrent use.
type Inspector struct {
	cb     Callbacks
	logger *zap.Logger

	id        string
	report    Report
	idSeen    bool
	usageSeen bool
	done      bool
}

// NewInspector returns an Inspector that reports to cb. Nil callbacks are
// allowed.
func NewInspector(cb Callbacks, logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{cb: cb, logger: logger}
}

// Inspect examines one frame payload. Non-JSON payloads are ignored.
func (i *Inspector) Inspect(payload []byte) {
	if i.done || (i.idSeen && i.usageSeen) {
		return
	}

	payload = bytes.TrimSpace(payload)
	if !gjson.ValidBytes(payload) {
		return
	}
	root := gjson.ParseBytes(payload)

	if !i.idSeen {
		if id := root.Get("id"); id.Type == gjson.String && id.String() != "" {
			i.idSeen = true
			i.id = id.String()
			i.logger.Debug("stream id", zap.String("id", i.id))
			if i.cb.OnID != nil {
				i.cb.OnID(i.id)
			}
		}
	}

	if !i.usageSeen {
		if u := normalize.Usage(root.Get("usage")); u != nil {
			i.fireUsage(Report{Usage: *u, HasUsageData: true})
		}
	}
}

// Finalize reports missing usage if none was seen. It is idempotent.
func (i *Inspector) Finalize() {
	if i.done {
		return
	}
	i.done = true

	if !i.usageSeen {
		i.fireUsage(Report{})
	}
}

// ID returns the stream id, empty if none was seen.
func (i *Inspector) ID() string {
	return i.id
}

// Report returns the usage report, valid once OnUsage has fired.
func (i *Inspector) Report() Report {
	return i.report
}

func (i *Inspector) fireUsage(r Report) {
	i.usageSeen = true
	i.report = r
	if i.cb.OnUsage != nil {
		i.cb.OnUsage(r)
	}
}
