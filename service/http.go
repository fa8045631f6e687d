package service

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/llmcouncil/council/council"
	"github.com/llmcouncil/council/input"
	"github.com/llmcouncil/council/storage"
	"github.com/llmcouncil/council/vision"
)

// RegisterHTTPHandlers registers all council HTTP handlers under the given
// prefix. The prefix should be the path segment without a trailing slash
// (e.g. "api"). Handlers are registered as:
//
//	GET  <prefix>/health
//	GET  <prefix>/models/free
//	POST <prefix>/conversations
//	GET  <prefix>/conversations
//	GET  <prefix>/conversations/{id}
//	POST <prefix>/conversations/{id}/message
//	POST <prefix>/conversations/{id}/message/stream
//	POST <prefix>/vision/extract
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"health", c.handleHealth)
	mux.HandleFunc(prefix+"models/free", c.handleFreeModels)
	mux.HandleFunc(prefix+"conversations", c.handleConversations)
	mux.HandleFunc(prefix+"conversations/{id}", c.handleConversation)
	mux.HandleFunc(prefix+"conversations/{id}/message", c.handleMessage)
	mux.HandleFunc(prefix+"conversations/{id}/message/stream", c.handleMessageStream)
	mux.HandleFunc(prefix+"vision/extract", c.handleVisionExtract)
}

// ----------------------------------------------------------------------------
// GET /api/health
// ----------------------------------------------------------------------------

func (c *Component) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "council",
	})
}

// ----------------------------------------------------------------------------
// GET /api/models/free
// ----------------------------------------------------------------------------

// handleFreeModels returns the free entries of the upstream model catalog.
// Served from the gateway's TTL cache; momentary staleness is fine.
func (c *Component) handleFreeModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	models, err := c.catalog.FreeModels(r.Context())
	if err != nil {
		c.logger.Error("Catalog fetch failed", "error", err)
		c.writeError(w, council.NewError(council.KindProviderError,
			"Failed to fetch model catalog", err))
		return
	}
	c.writeJSON(w, http.StatusOK, models)
}

// ----------------------------------------------------------------------------
// POST/GET /api/conversations
// ----------------------------------------------------------------------------

func (c *Component) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		conv, err := c.store.CreateConversation(r.Context())
		if err != nil {
			c.logger.Error("Create conversation failed", "error", err)
			c.writeError(w, council.NewError(council.KindInternal,
				"Failed to create conversation", err))
			return
		}
		c.writeJSON(w, http.StatusCreated, conv)

	case http.MethodGet:
		summaries, err := c.store.ListConversations(r.Context())
		if err != nil {
			c.logger.Error("List conversations failed", "error", err)
			c.writeError(w, council.NewError(council.KindInternal,
				"Failed to list conversations", err))
			return
		}
		if summaries == nil {
			summaries = []storage.Summary{}
		}
		c.writeJSON(w, http.StatusOK, summaries)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// GET /api/conversations/{id}
// ----------------------------------------------------------------------------

func (c *Component) handleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conv, err := c.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.writeJSON(w, http.StatusNotFound, apiError{
				ErrorCode: council.KindInvalidRequest,
				Message:   "Conversation not found",
			})
			return
		}
		c.writeError(w, council.NewError(council.KindInternal,
			"Failed to load conversation", err))
		return
	}
	c.writeJSON(w, http.StatusOK, conv)
}

// ----------------------------------------------------------------------------
// POST /api/conversations/{id}/message
// ----------------------------------------------------------------------------

// MessageRequest is the request body for the message endpoints. Content
// and the image are each optional, but at least one must be present.
type MessageRequest struct {
	Content        string   `json:"content"`
	CouncilMembers []string `json:"council_members,omitempty"`
	ChairmanModel  string   `json:"chairman_model,omitempty"`

	// Optional image payload, base64-encoded.
	ImageBase64   string `json:"image_base64,omitempty"`
	ImageMimeType string `json:"image_mime_type,omitempty"`
	VisionModel   string `json:"vision_model,omitempty"`
}

// handleMessage runs the full pipeline synchronously and returns the
// complete CouncilResult.
func (c *Component) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, key, err := c.decodeMessageRequest(w, r)
	if err != nil {
		c.writeError(w, err)
		return
	}

	prompt, err := c.resolvePrompt(r, req, key)
	if err != nil {
		c.writeError(w, err)
		return
	}

	result, err := c.engine.RunFullCouncil(r.Context(), council.Request{
		Prompt:   prompt,
		Members:  req.CouncilMembers,
		Chairman: req.ChairmanModel,
		APIKey:   key,
	})
	if err != nil {
		c.writeError(w, err)
		return
	}

	c.persistRun(r, req, result)
	c.writeJSON(w, http.StatusOK, result)
}

// decodeMessageRequest parses and validates the body and credential shared
// by the sync and streaming message endpoints.
func (c *Component) decodeMessageRequest(w http.ResponseWriter, r *http.Request) (*MessageRequest, string, error) {
	key := c.requestKey(r)
	if key == "" {
		return nil, "", council.NewError(council.KindMissingAPIKey,
			"OpenRouter API key is required. Please configure your API key in Settings.", nil)
	}

	var req MessageRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, "", council.NewError(council.KindInvalidRequest,
			"Invalid request body", err)
	}
	if req.Content == "" && req.ImageBase64 == "" {
		return nil, "", council.NewError(council.KindInvalidRequest,
			"At least one of content or image must be provided", nil)
	}
	return &req, key, nil
}

// persistRun records the exchange. Storage failures are logged, never
// surfaced: the council output is already computed and belongs to the
// caller.
func (c *Component) persistRun(r *http.Request, req *MessageRequest, result *council.CouncilResult) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := c.store.AppendUserMessage(ctx, id, req.Content); err != nil {
		c.logger.Warn("Failed to persist user message", "conversation", id, "error", err)
		return
	}
	if err := c.store.AppendAssistantMessage(ctx, id, result); err != nil {
		c.logger.Warn("Failed to persist assistant message", "conversation", id, "error", err)
	}
	if result.Metadata.Title != "" {
		if err := c.store.UpdateTitle(ctx, id, result.Metadata.Title); err != nil {
			c.logger.Warn("Failed to persist title", "conversation", id, "error", err)
		}
	}
}

// ----------------------------------------------------------------------------
// POST /api/vision/extract
// ----------------------------------------------------------------------------

// VisionExtractRequest is the request body for standalone vision
// extraction.
type VisionExtractRequest struct {
	ImageBase64   string `json:"image_base64"`
	ImageMimeType string `json:"image_mime_type"`
	VisionModel   string `json:"vision_model,omitempty"`
}

func (c *Component) handleVisionExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := c.requestKey(r)
	if key == "" {
		c.writeError(w, council.NewError(council.KindMissingAPIKey,
			"OpenRouter API key is required. Please configure your API key in Settings.", nil))
		return
	}

	var req VisionExtractRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		c.writeError(w, council.NewError(council.KindInvalidRequest,
			"Invalid request body", err))
		return
	}

	imageBytes, err := decodeImage(req.ImageBase64)
	if err != nil {
		c.writeError(w, err)
		return
	}

	vc, err := c.extractor.Extract(r.Context(), imageBytes, req.ImageMimeType, key, req.VisionModel)
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, vc)
}

// decodeImage decodes a base64 image payload.
func decodeImage(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, council.NewError(council.KindInvalidRequest,
			"image_base64 must not be empty", nil)
	}
	imageBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, council.NewError(council.KindInvalidRequest,
			"image payload is not valid base64", err)
	}
	return imageBytes, nil
}

// resolvePrompt runs vision extraction when the request carries an image
// and merges the result with the text content.
func (c *Component) resolvePrompt(r *http.Request, req *MessageRequest, key string) (string, error) {
	var vc *vision.Context
	if req.ImageBase64 != "" {
		if req.ImageMimeType == "" {
			return "", council.NewError(council.KindInvalidRequest,
				"image_mime_type is required when an image is provided", nil)
		}
		imageBytes, err := decodeImage(req.ImageBase64)
		if err != nil {
			return "", err
		}
		vc, err = c.extractor.Extract(r.Context(), imageBytes, req.ImageMimeType, key, req.VisionModel)
		if err != nil {
			if errors.Is(err, vision.ErrExhausted) {
				return "", council.NewError(council.KindVisionFailed,
					"Image processing failed. Please try a different image.", err)
			}
			return "", council.NewError(council.KindProviderError,
				"Image processing failed", err)
		}
	}

	prompt, err := input.Normalize(req.Content, vc)
	if err != nil {
		return "", council.NewError(council.KindInvalidRequest, err.Error(), err)
	}
	return prompt, nil
}
