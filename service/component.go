// Package service exposes the council engine over HTTP: synchronous and
// SSE-streaming message endpoints, the free-model catalog, vision
// extraction, and conversation storage access.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/llmcouncil/council/council"
	"github.com/llmcouncil/council/gateway"
	"github.com/llmcouncil/council/storage"
	"github.com/llmcouncil/council/vision"
)

// maxRequestBodySize limits POST body sizes. Image payloads arrive
// base64-encoded in JSON, so this bounds image size to roughly 15MB.
const maxRequestBodySize = 20 << 20 // 20 MB

// Runner is the council engine surface the component consumes.
type Runner interface {
	RunFullCouncil(ctx context.Context, req council.Request) (*council.CouncilResult, error)
	RunStream(ctx context.Context, req council.Request) <-chan council.Event
	GenerateTitle(ctx context.Context, prompt, apiKey string) string
}

// ImageExtractor is the vision surface the component consumes.
type ImageExtractor interface {
	Extract(ctx context.Context, imageBytes []byte, mimeType, apiKey, preferredModel string) (*vision.Context, error)
}

// ModelCatalog serves the upstream model catalog.
type ModelCatalog interface {
	FreeModels(ctx context.Context) ([]gateway.ModelDescriptor, error)
}

// Component wires the engine, extractor, catalog, and store to HTTP
// handlers.
type Component struct {
	engine    Runner
	extractor ImageExtractor
	catalog   ModelCatalog
	store     storage.ConversationStore
	apiKey    string // server-side default credential, may be empty
	logger    *slog.Logger
}

// Option configures a Component.
type Option func(*Component)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Component) {
		c.logger = logger
	}
}

// WithDefaultAPIKey sets the server-side credential used when a request
// carries no X-OpenRouter-Key header.
func WithDefaultAPIKey(key string) Option {
	return func(c *Component) {
		c.apiKey = key
	}
}

// NewComponent creates the HTTP component.
func NewComponent(engine Runner, extractor ImageExtractor, catalog ModelCatalog, store storage.ConversationStore, opts ...Option) *Component {
	c := &Component{
		engine:    engine,
		extractor: extractor,
		catalog:   catalog,
		store:     store,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError is the JSON error body, matching the engine's error vocabulary.
type apiError struct {
	ErrorCode council.Kind `json:"error_code"`
	Message   string       `json:"message"`
}

// writeJSON writes v as a JSON response.
func (c *Component) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError maps an error to its status code and JSON body.
func (c *Component) writeError(w http.ResponseWriter, err error) {
	kind := council.KindOf(err)

	// Vision exhaustion arrives as a sentinel, not a council.Error; keep it
	// distinguishable so clients can report "image processing failed".
	if errors.Is(err, vision.ErrExhausted) {
		kind = council.KindVisionFailed
	}

	message := err.Error()
	var ce *council.Error
	if errors.As(err, &ce) {
		message = ce.Message
	}

	c.writeJSON(w, statusFor(kind), apiError{ErrorCode: kind, Message: message})
}

func statusFor(kind council.Kind) int {
	switch kind {
	case council.KindMissingAPIKey, council.KindInvalidRequest:
		return http.StatusBadRequest
	case council.KindInvalidAPIKey:
		return http.StatusUnauthorized
	case council.KindNoQuorum, council.KindProviderError, council.KindVisionFailed:
		return http.StatusBadGateway
	case council.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// requestKey resolves the credential: the BYOK header wins, then the
// server-side default. Empty means the caller must be rejected.
func (c *Component) requestKey(r *http.Request) string {
	if key := r.Header.Get("X-OpenRouter-Key"); key != "" {
		return key
	}
	return c.apiKey
}
