// Package llm wraps the external chat-model endpoint behind a small
// client interface plus a gateway that adds schema-constrained calls,
// response sanitation, and rate-limit-aware backoff.
package llm

import "context"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes one chat call.
type Options struct {
	Temperature float64
	MaxTokens   int
	// Schema, when set, constrains the response to a JSON Schema via the
	// endpoint's structured-output support.
	Schema     map[string]any
	SchemaName string
}

// Client is the transport-level chat interface. Implemented by the
// OpenAI-compatible client; stubbed in tests.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts *Options) (string, error)
}
