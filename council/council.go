// Package council implements the three-stage deliberation engine: concurrent
// dispatch to the council members, anonymized peer ranking with consensus
// aggregation, and chairman synthesis of the final answer.
package council

import (
	"fmt"
	"time"
)

// ModelResponse is one council member's Stage-1 answer.
type ModelResponse struct {
	Model     string `json:"model"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// RankingSubmission is one council member's Stage-2 ranking of the
// anonymized answers, best first. Labels form a total order over all
// Stage-1 survivors: the parser appends labels the ranker omitted.
type RankingSubmission struct {
	Ranker string `json:"ranker_model"`

	// Raw is the ranker's unedited free-text response.
	Raw string `json:"ranking"`

	// Labels is the parsed total order of anonymous labels, best first.
	Labels []string `json:"parsed_ranking"`
}

// AggregateEntry is one model's position in the consensus ordering.
type AggregateEntry struct {
	Model string `json:"model"`

	// MeanRank is the average 1-based position across submissions; lower is
	// better. Models no submission mentions get the worst possible rank.
	MeanRank float64 `json:"average_rank"`

	// VoteCount is the number of submissions that ranked this model.
	VoteCount int `json:"rankings_count"`
}

// Stage2Result bundles the peer-ranking output: the submissions, the
// label-to-model assignment they are expressed in, and the consensus
// ordering derived from them.
type Stage2Result struct {
	Submissions  []RankingSubmission `json:"submissions"`
	LabelToModel map[string]string   `json:"label_to_model"`
	Aggregate    []AggregateEntry    `json:"aggregate_rankings"`
}

// Stage3Result is the chairman's synthesized answer.
type Stage3Result struct {
	Model   string `json:"model"`
	Content string `json:"content"`
}

// Metadata describes one orchestration run.
type Metadata struct {
	RequestID  string   `json:"request_id"`
	Members    []string `json:"council_members"`
	Survivors  []string `json:"stage1_survivors"`
	Title      string   `json:"title,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// CouncilResult is the full output of one run. Immutable once returned.
type CouncilResult struct {
	Stage1   []ModelResponse `json:"stage1"`
	Stage2   Stage2Result    `json:"stage2"`
	Stage3   Stage3Result    `json:"stage3"`
	Metadata Metadata        `json:"metadata"`
}

// Request carries the inputs of one orchestration run.
type Request struct {
	// Prompt is the normalized user prompt (see the input package).
	Prompt string

	// Members overrides the configured council roster when non-empty.
	Members []string

	// Chairman overrides the configured chairman model when non-empty.
	Chairman string

	// APIKey is the caller's credential, forwarded to every gateway call.
	APIKey string
}

// Config holds engine defaults.
type Config struct {
	// Members is the default council roster.
	Members []string

	// Chairman is the default synthesis model.
	Chairman string

	// TitleModel generates conversation titles. Empty means the chairman
	// model is used.
	TitleModel string

	// CallTimeout applies to each individual member call. Zero uses the
	// gateway default.
	CallTimeout time.Duration
}

// Validate checks the engine configuration.
func (c Config) Validate() error {
	if len(c.Members) == 0 {
		return fmt.Errorf("at least one council member is required")
	}
	if c.Chairman == "" {
		return fmt.Errorf("chairman model is required")
	}
	return nil
}

// dedupe returns models with duplicates removed, preserving first
// occurrence. Dispatch order, and therefore tie-break order, is the order
// of the returned slice.
func dedupe(models []string) []string {
	seen := make(map[string]struct{}, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
