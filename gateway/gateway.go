// Package gateway provides the OpenRouter provider gateway: a stateless
// request/response mapping to the upstream chat-completions API plus a
// TTL-cached view of the upstream model catalog.
package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// Completer is the completion interface consumed by the council engine and
// the vision extractor. *Client implements it against OpenRouter; tests use
// the gatewaytest mock.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ContentPart is one element of a multimodal message body.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image as a data URL or remote reference.
type ImageURL struct {
	URL string `json:"url"`
}

// Message represents a chat message. Content is used for plain text turns;
// Parts takes precedence when set and produces the multimodal array form.
type Message struct {
	Role    string        `json:"role"`
	Content string        `json:"content"`
	Parts   []ContentPart `json:"-"`
}

// MarshalJSON emits the OpenAI wire form: a string content for text turns,
// an array of content parts for multimodal turns.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) > 0 {
		return json.Marshal(struct {
			Role    string        `json:"role"`
			Content []ContentPart `json:"content"`
		}{Role: m.Role, Content: m.Parts})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: m.Role, Content: m.Content})
}

// TextMessage builds a plain text message.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

// Request defines one completion call. Exactly one upstream request is
// issued per call: retry and fallback policy belongs to the caller.
type Request struct {
	// Model is the OpenRouter model identifier (e.g. "openai/gpt-4o").
	Model string

	// Messages is the chat history to send.
	Messages []Message

	// Temperature controls randomness. nil uses the upstream default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the upstream default.
	MaxTokens int

	// Timeout overrides the client default for this call. Zero means the
	// client default applies.
	Timeout time.Duration

	// APIKey overrides the configured key for this call (BYOK). Empty means
	// the client's configured key is used.
	APIKey string
}

// TokenUsage reports token consumption for a call, when the upstream
// provides it.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the completion result.
type Response struct {
	// RequestID uniquely identifies this call for log correlation.
	RequestID string

	// Model is the model that produced the answer.
	Model string

	// Content is the generated text.
	Content string

	// Reasoning is the model's reasoning trace, when the upstream returns
	// one. Untrusted free text like Content.
	Reasoning string

	// Usage contains token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// ModelDescriptor describes one entry of the upstream model catalog.
type ModelDescriptor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int64  `json:"context_length"`
	PromptPrice   string `json:"prompt_price"`
	CompletePrice string `json:"completion_price"`
}
