package council

import (
	"context"
	"strings"

	"github.com/llmcouncil/council/gateway"
)

// DefaultTitle is used when title generation fails. Title generation is
// best-effort and never fails a request.
const DefaultTitle = "New Conversation"

// maxTitleLen bounds runaway title responses, in runes.
const maxTitleLen = 80

// GenerateTitle produces a short label for a conversation starting with
// prompt. Failures degrade to DefaultTitle.
func (e *Engine) GenerateTitle(ctx context.Context, prompt, apiKey string) string {
	model := e.cfg.TitleModel
	if model == "" {
		_, model = e.roster()
	}

	resp, err := e.gw.Complete(ctx, gateway.Request{
		Model: model,
		Messages: []gateway.Message{
			gateway.TextMessage("system", titleSystemPrompt),
			gateway.TextMessage("user", prompt),
		},
		Timeout: e.cfg.CallTimeout,
		APIKey:  apiKey,
	})
	if err != nil {
		e.logger.Warn("Title generation failed", "model", model, "error", err)
		return DefaultTitle
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Content), `"'`))
	if title == "" {
		return DefaultTitle
	}
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen])
	}
	return title
}
