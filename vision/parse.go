package vision

import (
	"regexp"
	"strconv"
	"strings"
)

// defaultConfidence applies when the response has no parseable confidence
// section. fallbackConfidence applies when not even an extracted-text
// section was found and the whole raw response is used instead.
const (
	defaultConfidence  = 0.7
	fallbackConfidence = 0.5
)

var confidencePattern = regexp.MustCompile(`\d+`)

// parseResponse splits the model response on "##" section markers and
// free-form-extracts the five expected sections. Section headers are
// matched case-insensitively by substring, since models frequently restyle
// them. Unrecognized sections are ignored. Parsing never fails: a response
// without a recognizable extracted-text section degrades to using the whole
// raw text, with a warning and reduced confidence.
func parseResponse(raw, modelUsed string) *Context {
	vc := &Context{
		Source:     "image",
		Entities:   []string{},
		Tables:     []Table{},
		Confidence: defaultConfidence,
		Warnings:   []string{},
		ModelUsed:  modelUsed,
	}

	for _, section := range strings.Split(raw, "##") {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}

		header, content, _ := strings.Cut(section, "\n")
		header = strings.ToUpper(strings.TrimSpace(header))
		content = strings.TrimSpace(content)

		switch {
		case strings.Contains(header, "EXTRACTED TEXT"):
			vc.ExtractedText = content
		case strings.Contains(header, "ENTITIES"):
			vc.Entities = append(vc.Entities, splitListItems(content)...)
		case strings.Contains(header, "TABLE"), strings.Contains(header, "STRUCTURED"):
			if content != "" {
				vc.Tables = append(vc.Tables, Table{Raw: content})
			}
		case strings.Contains(header, "CONFIDENCE"):
			if m := confidencePattern.FindString(content); m != "" {
				n, err := strconv.Atoi(m)
				if err == nil {
					vc.Confidence = float64(clamp(n, 0, 100)) / 100.0
				}
			}
		case strings.Contains(header, "WARNING"):
			vc.Warnings = append(vc.Warnings, splitListItems(content)...)
		}
	}

	if vc.ExtractedText == "" {
		vc.ExtractedText = raw
		vc.Warnings = append(vc.Warnings, "Could not parse structured response; using raw output")
		vc.Confidence = fallbackConfidence
	}

	return vc
}

// splitListItems yields one item per non-empty line, stripped of bullet
// markers.
func splitListItems(content string) []string {
	var items []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimLeft(line, "-•*"))
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
