// Package input normalizes user input (free text, image-derived context, or
// both) into the single prompt string handed to the council. It is a pure
// text transform: no network calls, deterministic output.
package input

import (
	"fmt"
	"strings"

	"github.com/llmcouncil/council/vision"
)

// Rendering bounds, to keep image-derived prompts from ballooning.
const (
	maxEntities = 10
	maxTables   = 3
	maxWarnings = 5
)

// lowConfidenceThreshold controls the warning banner.
const lowConfidenceThreshold = 0.6

// ErrEmptyInput is returned when neither text nor an image context is
// supplied.
var ErrEmptyInput = fmt.Errorf("at least one of text or image must be provided")

// Normalize merges optional free text and an optional vision context into
// one prompt. Text-only input passes through unchanged; when an image
// context is present it is rendered into the fixed Markdown template with
// the text as caption.
func Normalize(text string, vc *vision.Context) (string, error) {
	if vc == nil {
		if text == "" {
			return "", ErrEmptyInput
		}
		return text, nil
	}
	return RenderVisionPrompt(vc, text), nil
}

// RenderVisionPrompt renders a vision context into the council prompt
// template: context header, low-confidence banner, extracted text, bounded
// entity/table/warning lists, the user's caption (or a default request),
// and a closing disclaimer that the original image is unavailable.
func RenderVisionPrompt(vc *vision.Context, caption string) string {
	var b strings.Builder

	b.WriteString("## Image Context\n")
	b.WriteString("The following information was extracted from an uploaded image.\n\n")

	if vc.Confidence < lowConfidenceThreshold {
		b.WriteString("> ⚠️ **Low Confidence Extraction**: The image quality or content made extraction difficult. Results may be incomplete.\n\n")
	}

	if vc.ExtractedText != "" {
		b.WriteString("### Extracted Content\n")
		b.WriteString(vc.ExtractedText)
		b.WriteString("\n\n")
	}

	if len(vc.Entities) > 0 {
		b.WriteString("### Key Entities Identified\n")
		for _, entity := range truncate(vc.Entities, maxEntities) {
			fmt.Fprintf(&b, "- %s\n", entity)
		}
		b.WriteString("\n")
	}

	if len(vc.Tables) > 0 {
		b.WriteString("### Structured Data\n")
		for _, table := range vc.Tables[:min(len(vc.Tables), maxTables)] {
			b.WriteString(table.Raw)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(vc.Warnings) > 0 {
		b.WriteString("### Extraction Notes\n")
		for _, warning := range truncate(vc.Warnings, maxWarnings) {
			fmt.Fprintf(&b, "- ⚠️ %s\n", warning)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	if caption != "" {
		b.WriteString("### User Question\n")
		b.WriteString(caption)
	} else {
		b.WriteString("### User Request\n")
		b.WriteString("Please analyze and respond based on the extracted image content above.")
	}

	b.WriteString("\n\n---\n")
	b.WriteString("*Note: Base your response ONLY on the extracted content above. The original image is not available to you.*")

	return b.String()
}

func truncate(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
