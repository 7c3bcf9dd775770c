package llm

// Usage contains the token accounting reported by the provider, typically on
// the final chunk of a stream.
type Usage struct {
	// Token counts
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	// Cached prompt tokens (prompt_tokens_details.cached_tokens)
	CachedTokens int `json:"cached_tokens,omitempty"`

	// Cost as reported by routing providers, in their billing currency.
	Cost float64 `json:"cost,omitempty"`
}
