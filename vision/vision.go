// Package vision turns raw image bytes into a bounded textual context by
// walking a prioritized chain of vision-capable models until one returns a
// usable response. The council pipeline only ever reasons over the text
// this package produces; raw images never reach a council member.
package vision

import (
	"errors"
	"fmt"
	"time"
)

// DefaultModel is the first-choice vision model: free tier, reasonable
// balance of quality and speed.
const DefaultModel = "google/gemma-3-27b-it:free"

// FallbackModels are tried, in order, after the default model fails.
var FallbackModels = []string{
	"nvidia/nemotron-nano-12b-2-vl:free",
	"meta-llama/llama-3.2-11b-vision-instruct:free",
	"google/gemma-3-4b-it:free",
}

// DefaultTimeout applies to each individual extraction attempt.
const DefaultTimeout = 90 * time.Second

// defaultMaxTokens bounds the extraction response.
const defaultMaxTokens = 4096

// Table is one table found in the image, kept as a raw markdown block.
// No structural re-parsing is attempted.
type Table struct {
	Raw string `json:"raw"`
}

// Context is the structured result of one extraction. Confidence is always
// populated (parse defaults apply), so consumers need no nil checks.
type Context struct {
	Source        string   `json:"source"`
	ExtractedText string   `json:"extracted_text"`
	Entities      []string `json:"entities"`
	Tables        []Table  `json:"tables"`
	Confidence    float64  `json:"confidence"`
	Warnings      []string `json:"warnings"`
	ModelUsed     string   `json:"model_used"`
}

// ErrExhausted reports that every candidate model failed and no context was
// produced. Callers surface this as an image-processing failure distinct
// from a generic provider error.
var ErrExhausted = errors.New("vision extraction exhausted all candidate models")

// exhaustedError wraps ErrExhausted with attempt detail.
type exhaustedError struct {
	attempts int
	lastErr  error
}

func (e *exhaustedError) Error() string {
	if e.lastErr != nil {
		return fmt.Sprintf("vision extraction failed after %d models, last error: %v", e.attempts, e.lastErr)
	}
	return fmt.Sprintf("vision extraction failed after %d models", e.attempts)
}

func (e *exhaustedError) Unwrap() error { return ErrExhausted }

// Config holds extractor settings.
type Config struct {
	// DefaultModel is the first candidate after any caller preference.
	// Empty uses the package default.
	DefaultModel string

	// Fallbacks are tried after DefaultModel, in order. Nil uses the
	// package defaults.
	Fallbacks []string

	// CallTimeout applies per attempt. Zero uses DefaultTimeout.
	CallTimeout time.Duration
}
