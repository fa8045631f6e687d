package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/llmcouncil/council/gateway"
)

// extractionSystemPrompt requests the five labeled sections the parser
// understands. Section headers here and in parse.go must stay in sync.
const extractionSystemPrompt = `You are an expert at extracting information from images.
Analyze the provided image and extract ALL textual and visual information.

Your response MUST follow this exact format:

## EXTRACTED TEXT
[All text visible in the image, preserving structure]

## KEY ENTITIES
[List of important entities: names, dates, numbers, organizations, etc.]

## TABLES/STRUCTURED DATA
[If any tables or structured data, represent as markdown tables]

## CONFIDENCE
[Rate 0-100 how confident you are in your extraction]

## WARNINGS
[Any issues: blur, partial visibility, unclear text, etc.]

Be thorough and accurate. If text is unclear, note it in warnings but attempt extraction anyway.`

// Extractor walks the candidate-model chain for each image.
type Extractor struct {
	gw     gateway.Completer
	cfg    Config
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Extractor) {
		x.logger = logger
	}
}

// NewExtractor creates a vision extractor.
func NewExtractor(gw gateway.Completer, cfg Config, opts ...Option) *Extractor {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.Fallbacks == nil {
		cfg.Fallbacks = FallbackModels
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultTimeout
	}
	x := &Extractor{gw: gw, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract processes one image into a Context. Candidates are tried strictly
// in sequence; each attempt is a substitute for the previous one.
// The first non-empty response wins regardless of parse quality; the parser
// degrades gracefully instead of triggering another attempt. When every
// candidate fails the returned error unwraps to ErrExhausted.
func (x *Extractor) Extract(ctx context.Context, imageBytes []byte, mimeType, apiKey, preferredModel string) (*Context, error) {
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("image bytes must not be empty")
	}
	if mimeType == "" {
		return nil, fmt.Errorf("mime type is required")
	}

	encoded := base64.StdEncoding.EncodeToString(imageBytes)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, encoded)

	candidates := x.candidates(preferredModel)

	var lastErr error
	for _, model := range candidates {
		raw, err := x.attempt(ctx, model, dataURL, apiKey)
		if err != nil {
			lastErr = err
			x.logger.Warn("Vision model failed, advancing to next candidate",
				"model", model, "error", err)
			continue
		}

		vc := parseResponse(raw, model)
		x.logger.Info("Vision extraction succeeded",
			"model", model,
			"confidence", vc.Confidence,
			"entities", len(vc.Entities))
		return vc, nil
	}

	return nil, &exhaustedError{attempts: len(candidates), lastErr: lastErr}
}

// candidates builds the ordered attempt list: preferred model first if
// given, then the default, then the fallbacks, deduplicated preserving
// first occurrence.
func (x *Extractor) candidates(preferred string) []string {
	ordered := make([]string, 0, len(x.cfg.Fallbacks)+2)
	if preferred != "" {
		ordered = append(ordered, preferred)
	}
	ordered = append(ordered, x.cfg.DefaultModel)
	ordered = append(ordered, x.cfg.Fallbacks...)

	seen := make(map[string]struct{}, len(ordered))
	out := ordered[:0]
	for _, m := range ordered {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// attempt issues one multimodal completion call. An empty content response
// counts as a failure so the chain advances.
func (x *Extractor) attempt(ctx context.Context, model, dataURL, apiKey string) (string, error) {
	resp, err := x.gw.Complete(ctx, gateway.Request{
		Model: model,
		Messages: []gateway.Message{
			gateway.TextMessage("system", extractionSystemPrompt),
			{
				Role: "user",
				Parts: []gateway.ContentPart{
					{Type: "image_url", ImageURL: &gateway.ImageURL{URL: dataURL}},
					{Type: "text", Text: "Please analyze this image and extract all information following the specified format."},
				},
			},
		},
		MaxTokens: defaultMaxTokens,
		Timeout:   x.cfg.CallTimeout,
		APIKey:    apiKey,
	})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", fmt.Errorf("model returned empty content")
	}
	return resp.Content, nil
}
