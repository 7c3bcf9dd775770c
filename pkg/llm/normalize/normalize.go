// Package normalize converts the JSON payload of one OpenAI-compatible
// streaming frame into a provider-agnostic llm.Delta.
//
// Vendors disagree on where text, tool calls and images live (streaming
// delta, full message, legacy completion text), so the payload is inspected
// with gjson paths in a fixed precedence order instead of being unmarshalled
// into a single struct.
package normalize

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/papercomputeco/tokenstream/pkg/llm"
)

// Normalizer is the chat-completions delta normalizer.
type Normalizer struct{}

// New returns a Normalizer.
func New() *Normalizer { return &Normalizer{} }

// Normalize converts payload into a Delta.
// Returns (nil, nil) if the frame should be skipped (keep-alive text,
// non-JSON, JSON that is not an object).
func (n *Normalizer) Normalize(payload []byte) (*llm.Delta, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return nil, nil
	}

	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return nil, nil
	}

	d := &llm.Delta{
		ID:    root.Get("id").String(),
		Model: root.Get("model").String(),
	}

	choice := root.Get("choices.0")
	delta := choice.Get("delta")
	msg := choice.Get("message")

	// First match wins.
	switch {
	case nonEmptyArray(delta.Get("tool_calls")):
		d.ToolCalls = toolCalls(delta.Get("tool_calls"), false)

	case delta.Get("content").Type == gjson.String:
		d.Content = llm.StrPtr(delta.Get("content").String())

	case nonEmptyArray(msg.Get("tool_calls")):
		d.ToolCalls = toolCalls(msg.Get("tool_calls"), true)

	case msg.Get("content").Type == gjson.String:
		d.Content = llm.StrPtr(msg.Get("content").String())

	case msg.Get("content").IsArray():
		// The content-part array is passed on as its JSON text.
		d.Content = llm.StrPtr(msg.Get("content").Raw)

	case msg.Get("function_call").IsObject():
		d.ToolCalls = []llm.ToolCallFragment{functionCall(msg.Get("function_call"), true)}

	case choice.Get("text").Type == gjson.String:
		d.Content = llm.StrPtr(choice.Get("text").String())

	case delta.Get("function_call").IsObject():
		d.ToolCalls = []llm.ToolCallFragment{functionCall(delta.Get("function_call"), false)}
	}

	d.Images = images(root, msg, delta)

	if fr := choice.Get("finish_reason"); fr.Type == gjson.String {
		d.FinishReason = fr.String()
	}

	d.Usage = Usage(root.Get("usage"))

	return d, nil
}

// usageKeys are the fields that make a usage object populated.
var usageKeys = []string{"prompt_tokens", "completion_tokens", "total_tokens", "prompt_tokens_details", "cost"}

// Usage converts a usage object. Returns nil unless u is a JSON object with
// at least one known usage field.
func Usage(u gjson.Result) *llm.Usage {
	if !u.IsObject() {
		return nil
	}

	populated := false
	for _, k := range usageKeys {
		if u.Get(k).Exists() {
			populated = true
			break
		}
	}
	if !populated {
		return nil
	}

	return &llm.Usage{
		PromptTokens:     int(u.Get("prompt_tokens").Int()),
		CompletionTokens: int(u.Get("completion_tokens").Int()),
		TotalTokens:      int(u.Get("total_tokens").Int()),
		CachedTokens:     int(u.Get("prompt_tokens_details.cached_tokens").Int()),
		Cost:             u.Get("cost").Float(),
	}
}

func nonEmptyArray(r gjson.Result) bool {
	return r.IsArray() && len(r.Array()) > 0
}

func toolCalls(arr gjson.Result, complete bool) []llm.ToolCallFragment {
	var out []llm.ToolCallFragment
	arr.ForEach(func(key, tc gjson.Result) bool {
		idx := int(key.Int())
		if i := tc.Get("index"); i.Exists() {
			idx = int(i.Int())
		}

		frag := llm.ToolCallFragment{
			Index:    idx,
			CallID:   tc.Get("id").String(),
			Name:     tc.Get("function.name").String(),
			Complete: complete,
		}
		frag.Arguments = arguments(tc.Get("function.arguments"), complete)

		out = append(out, frag)
		return true
	})
	return out
}

func functionCall(fc gjson.Result, complete bool) llm.ToolCallFragment {
	return llm.ToolCallFragment{
		Index:     0,
		Name:      fc.Get("name").String(),
		Arguments: arguments(fc.Get("arguments"), complete),
		Complete:  complete,
	}
}

// arguments returns the arguments text. Some vendors send an object instead
// of a string; its raw JSON is used. A complete call always has arguments.
func arguments(a gjson.Result, complete bool) *string {
	switch {
	case a.Type == gjson.String:
		return llm.StrPtr(a.String())
	case a.IsObject(), a.IsArray():
		return llm.StrPtr(a.Raw)
	case complete:
		return llm.StrPtr("")
	default:
		return nil
	}
}

func images(root, msg, delta gjson.Result) []llm.Image {
	var out []llm.Image

	for _, src := range []gjson.Result{msg.Get("images"), delta.Get("images")} {
		if !src.IsArray() {
			continue
		}
		src.ForEach(func(_, img gjson.Result) bool {
			url := img.Get("image_url.url").String()
			if url == "" {
				url = img.Get("url").String()
			}
			if url == "" {
				return true
			}
			out = append(out, fromURL(len(out), url))
			return true
		})
	}

	data := root.Get("data")
	if !data.IsArray() {
		return out
	}
	data.ForEach(func(_, img gjson.Result) bool {
		switch {
		case img.Get("b64_json").String() != "":
			out = append(out, llm.Image{Index: len(out), B64: img.Get("b64_json").String()})
		case img.Get("url").String() != "":
			out = append(out, fromURL(len(out), img.Get("url").String()))
		}
		return true
	})

	return out
}

// fromURL splits a base64 data URI into its payload; other URLs are kept.
func fromURL(idx int, url string) llm.Image {
	if strings.HasPrefix(url, "data:") {
		if meta, payload, ok := strings.Cut(url, ","); ok && strings.HasSuffix(meta, ";base64") {
			return llm.Image{Index: idx, B64: payload}
		}
	}
	return llm.Image{Index: idx, URL: url}
}
