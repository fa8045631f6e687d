package council

import (
	"context"

	"github.com/llmcouncil/council/gateway"
)

// stage3Synthesize asks the chairman for the final answer. Unlike stages 1
// and 2 there is no redundancy here: a chairman failure fails the request.
func (e *Engine) stage3Synthesize(ctx context.Context, prompt string, stage1 []ModelResponse, stage2 Stage2Result, chairman, apiKey string) (*Stage3Result, error) {
	resp, err := e.gw.Complete(ctx, gateway.Request{
		Model: chairman,
		Messages: []gateway.Message{
			gateway.TextMessage("system", synthesisSystemPrompt),
			gateway.TextMessage("user", buildSynthesisPrompt(prompt, stage1, stage2)),
		},
		Timeout: e.cfg.CallTimeout,
		APIKey:  apiKey,
	})
	if err != nil {
		kind := KindProviderError
		if gateway.IsAuthError(err) {
			kind = KindInvalidAPIKey
		}
		return nil, NewError(kind, "chairman synthesis failed", err)
	}

	return &Stage3Result{Model: chairman, Content: resp.Content}, nil
}
