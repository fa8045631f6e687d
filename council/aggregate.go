package council

import "sort"

// CalculateAggregate converts per-ranker submissions into the consensus
// ordering over model identities. It is a pure function: no I/O, no
// randomness, deterministic for identical inputs.
//
// A model's rank in a submission is its 1-based position in the submission's
// label order. Submissions are total orders (the parser's completion rule
// guarantees it), so every survivor normally has len(submissions) votes.
// A model no submission mentions is guarded with the worst possible rank.
// Ties in mean rank break by dispatch order: survivors must be given in
// their original Stage-1 dispatch order.
func CalculateAggregate(submissions []RankingSubmission, assignment LabelAssignment, survivors []string) []AggregateEntry {
	rankSum := make(map[string]float64, len(survivors))
	votes := make(map[string]int, len(survivors))

	for _, sub := range submissions {
		for pos, label := range sub.Labels {
			model, ok := assignment.ModelFor(label)
			if !ok {
				continue
			}
			rankSum[model] += float64(pos + 1)
			votes[model]++
		}
	}

	worst := float64(len(survivors))
	entries := make([]AggregateEntry, 0, len(survivors))
	for _, model := range survivors {
		entry := AggregateEntry{Model: model, VoteCount: votes[model]}
		if entry.VoteCount > 0 {
			entry.MeanRank = rankSum[model] / float64(entry.VoteCount)
		} else {
			entry.MeanRank = worst
		}
		entries = append(entries, entry)
	}

	// entries is built in dispatch order, so the stable sort is the
	// tie-break.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].MeanRank < entries[j].MeanRank
	})
	return entries
}
