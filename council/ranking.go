package council

import (
	"context"
	"regexp"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/llmcouncil/council/gateway"
)

// labelPattern matches anonymous label mentions in free text ("Response 3",
// "response #3"). Rankers restate labels in many shapes; the number is the
// stable part.
var labelPattern = regexp.MustCompile(`(?i)\bresponse\s*#?\s*(\d+)\b`)

// stage2Collect runs the peer-ranking stage over the Stage-1 survivors.
// The label assignment is computed once, here, and shared by every ranking
// call. Ranker failures are absorbed (the ranker abstains); the returned
// submissions may be empty.
func (e *Engine) stage2Collect(ctx context.Context, prompt string, stage1 []ModelResponse, apiKey string) ([]RankingSubmission, LabelAssignment) {
	survivors := make([]string, len(stage1))
	for i, r := range stage1 {
		survivors[i] = r.Model
	}
	assignment := NewLabelAssignment(survivors)

	results := make([]*RankingSubmission, len(survivors))

	g, ctx := errgroup.WithContext(ctx)
	for i, ranker := range survivors {
		g.Go(func() error {
			resp, err := e.gw.Complete(ctx, gateway.Request{
				Model: ranker,
				Messages: []gateway.Message{
					gateway.TextMessage("system", rankingSystemPrompt),
					gateway.TextMessage("user", buildRankingPrompt(prompt, stage1, assignment, ranker)),
				},
				Timeout: e.cfg.CallTimeout,
				APIKey:  apiKey,
			})
			if err != nil {
				e.logger.Warn("Council member failed in stage 2",
					"model", ranker, "error", err)
				return nil
			}

			labels := parseRankedLabels(resp.Content, assignment)
			if labels == nil {
				// Nothing parseable: the ranker abstains.
				e.logger.Warn("Ranking response had no parseable labels",
					"model", ranker)
				return nil
			}
			results[i] = &RankingSubmission{
				Ranker: ranker,
				Raw:    resp.Content,
				Labels: labels,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]RankingSubmission, 0, len(survivors))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, assignment
}

// parseRankedLabels extracts a total order of labels from a free-text
// ranking. Labels are taken in order of first appearance; duplicates keep
// their first occurrence; labels the ranker never mentioned are appended at
// the end in assignment order, so every returned slice ranks every label
// exactly once. Returns nil when the text mentions no known label at all.
func parseRankedLabels(text string, assignment LabelAssignment) []string {
	type mention struct {
		label string
		pos   int
	}

	firstSeen := make(map[string]int)
	for _, m := range labelPattern.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || n < 1 || n > assignment.Len() {
			continue
		}
		label := assignment.labels[n-1]
		if _, ok := firstSeen[label]; !ok {
			firstSeen[label] = m[0]
		}
	}
	if len(firstSeen) == 0 {
		return nil
	}

	mentions := make([]mention, 0, len(firstSeen))
	for label, pos := range firstSeen {
		mentions = append(mentions, mention{label: label, pos: pos})
	}
	sort.Slice(mentions, func(i, j int) bool { return mentions[i].pos < mentions[j].pos })

	labels := make([]string, 0, assignment.Len())
	for _, m := range mentions {
		labels = append(labels, m.label)
	}

	// Completion rule: append omitted labels in assignment order so the
	// submission is a total order. Omission is the lowest-confidence
	// default, never a drop.
	for _, label := range assignment.labels {
		if _, ok := firstSeen[label]; !ok {
			labels = append(labels, label)
		}
	}
	return labels
}
