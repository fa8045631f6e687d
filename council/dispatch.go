package council

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/llmcouncil/council/gateway"
)

// stage1Collect fans the prompt out to every council member concurrently and
// gathers the answers. Member failures are absorbed: a member that times out
// or errors simply has no entry in the result. The returned slice preserves
// the dispatch order of members. An empty result is a valid outcome; quorum
// policy belongs to the caller.
func (e *Engine) stage1Collect(ctx context.Context, prompt string, members []string, apiKey string) []ModelResponse {
	results := make([]*ModelResponse, len(members))

	// The group is a join barrier only. Closures never return an error, so
	// no sibling call is cancelled by another member's failure: every call
	// runs to completion or its own timeout.
	g, ctx := errgroup.WithContext(ctx)
	for i, member := range members {
		g.Go(func() error {
			resp, err := e.gw.Complete(ctx, gateway.Request{
				Model:    member,
				Messages: []gateway.Message{gateway.TextMessage("user", prompt)},
				Timeout:  e.cfg.CallTimeout,
				APIKey:   apiKey,
			})
			if err != nil {
				e.logger.Warn("Council member failed in stage 1",
					"model", member, "error", err)
				return nil
			}
			results[i] = &ModelResponse{
				Model:     member,
				Content:   resp.Content,
				Reasoning: resp.Reasoning,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ModelResponse, 0, len(members))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
