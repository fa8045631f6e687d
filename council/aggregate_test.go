package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submission(ranker string, labels ...string) RankingSubmission {
	return RankingSubmission{Ranker: ranker, Labels: labels}
}

func TestCalculateAggregate(t *testing.T) {
	survivors := []string{"m1", "m2", "m3"}
	assignment := NewLabelAssignment(survivors)

	// m2 is unanimously best, m3 unanimously worst.
	subs := []RankingSubmission{
		submission("m1", "Response 2", "Response 1", "Response 3"),
		submission("m2", "Response 2", "Response 1", "Response 3"),
		submission("m3", "Response 2", "Response 1", "Response 3"),
	}

	got := CalculateAggregate(subs, assignment, survivors)
	require.Len(t, got, 3)

	assert.Equal(t, "m2", got[0].Model)
	assert.Equal(t, 1.0, got[0].MeanRank)
	assert.Equal(t, 3, got[0].VoteCount)

	assert.Equal(t, "m1", got[1].Model)
	assert.Equal(t, 2.0, got[1].MeanRank)

	assert.Equal(t, "m3", got[2].Model)
	assert.Equal(t, 3.0, got[2].MeanRank)
}

func TestCalculateAggregateMixedVotes(t *testing.T) {
	survivors := []string{"m1", "m2", "m3"}
	assignment := NewLabelAssignment(survivors)

	subs := []RankingSubmission{
		submission("m1", "Response 1", "Response 2", "Response 3"),
		submission("m2", "Response 2", "Response 3", "Response 1"),
	}

	got := CalculateAggregate(subs, assignment, survivors)
	require.Len(t, got, 3)

	// m2: (2+1)/2 = 1.5, m1: (1+3)/2 = 2.0, m3: (3+2)/2 = 2.5
	assert.Equal(t, "m2", got[0].Model)
	assert.InDelta(t, 1.5, got[0].MeanRank, 1e-9)
	assert.Equal(t, "m1", got[1].Model)
	assert.InDelta(t, 2.0, got[1].MeanRank, 1e-9)
	assert.Equal(t, "m3", got[2].Model)
	assert.InDelta(t, 2.5, got[2].MeanRank, 1e-9)
}

func TestCalculateAggregateTieBreaksByDispatchOrder(t *testing.T) {
	survivors := []string{"m1", "m2", "m3"}
	assignment := NewLabelAssignment(survivors)

	// Two opposing submissions leave every model at mean rank 2.
	subs := []RankingSubmission{
		submission("m1", "Response 1", "Response 2", "Response 3"),
		submission("m2", "Response 3", "Response 2", "Response 1"),
	}

	got := CalculateAggregate(subs, assignment, survivors)
	require.Len(t, got, 3)
	for _, e := range got {
		assert.InDelta(t, 2.0, e.MeanRank, 1e-9)
	}
	assert.Equal(t, "m1", got[0].Model)
	assert.Equal(t, "m2", got[1].Model)
	assert.Equal(t, "m3", got[2].Model)
}

func TestCalculateAggregateZeroSubmissions(t *testing.T) {
	survivors := []string{"m1", "m2"}
	assignment := NewLabelAssignment(survivors)

	got := CalculateAggregate(nil, assignment, survivors)
	require.Len(t, got, 2)

	// Everyone ties at the worst rank; dispatch order holds.
	assert.Equal(t, "m1", got[0].Model)
	assert.Equal(t, "m2", got[1].Model)
	for _, e := range got {
		assert.Equal(t, float64(len(survivors)), e.MeanRank)
		assert.Equal(t, 0, e.VoteCount)
	}
}

func TestCalculateAggregateDeterministic(t *testing.T) {
	survivors := []string{"m1", "m2", "m3", "m4"}
	assignment := NewLabelAssignment(survivors)
	subs := []RankingSubmission{
		submission("m1", "Response 3", "Response 1", "Response 4", "Response 2"),
		submission("m2", "Response 3", "Response 4", "Response 1", "Response 2"),
		submission("m4", "Response 1", "Response 3", "Response 2", "Response 4"),
	}

	first := CalculateAggregate(subs, assignment, survivors)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, CalculateAggregate(subs, assignment, survivors))
	}
}

func TestCalculateAggregateUnanimousWinnerIsFirst(t *testing.T) {
	survivors := []string{"m1", "m2", "m3"}
	assignment := NewLabelAssignment(survivors)

	// Every submission puts Response 3 first even though the rest varies.
	subs := []RankingSubmission{
		submission("m1", "Response 3", "Response 1", "Response 2"),
		submission("m2", "Response 3", "Response 2", "Response 1"),
		submission("m3", "Response 3", "Response 1", "Response 2"),
	}

	got := CalculateAggregate(subs, assignment, survivors)
	assert.Equal(t, "m3", got[0].Model)
	assert.Equal(t, 1.0, got[0].MeanRank)
}
