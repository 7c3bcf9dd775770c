package llm

// Delta is the provider-agnostic content of a single streamed frame.
// One Delta is produced per SSE frame; a frame that carries nothing the
// pipeline understands produces no Delta at all.
type Delta struct {
	// ID and Model as reported at the top level of the chunk.
	ID    string `json:"id,omitempty"`
	Model string `json:"model,omitempty"`

	// Content is nil when the frame carried no text. An empty string is a
	// present but empty text delta.
	Content *string `json:"content,omitempty"`

	ToolCalls []ToolCallFragment `json:"tool_calls,omitempty"`
	Images    []Image            `json:"images,omitempty"`

	// FinishReason (e.g. "stop", "length", "tool_calls")
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage is nil unless the chunk carried a usage object.
	Usage *Usage `json:"usage,omitempty"`
}

// HasContent reports whether the delta carries a text fragment.
func (d *Delta) HasContent() bool {
	return d != nil && d.Content != nil
}

// ToolCallFragment is one piece of a tool invocation, keyed by Index.
type ToolCallFragment struct {
	Index  int    `json:"index"`
	CallID string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`

	// Arguments is nil when the fragment carried no arguments field.
	// An empty string is still a fragment.
	Arguments *string `json:"arguments,omitempty"`

	// Complete marks a fully formed call from a non-streaming message.
	Complete bool `json:"complete,omitempty"`
}

// Image is a generated image, carried either inline or by reference.
type Image struct {
	// Index is the position within its frame; the parser renumbers it per stream.
	Index int    `json:"index"`
	B64   string `json:"b64,omitempty"`
	URL   string `json:"url,omitempty"`
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}
