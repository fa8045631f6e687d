package council

import (
	"fmt"
	"strings"
)

// rankingSystemPrompt instructs a council member acting as a peer reviewer.
const rankingSystemPrompt = `You are evaluating anonymous answers to a user's question.
Rank the answers from best to worst. Judge accuracy, completeness, and clarity.

Your response MUST list every answer label exactly once, best first, in the form:

1. Response N - one short justification
2. Response M - one short justification

Do not speculate about which model wrote which answer.`

// synthesisSystemPrompt instructs the chairman.
const synthesisSystemPrompt = `You are the chairman of a council of AI models.
Several council members have answered the user's question, and the members have
anonymously ranked each other's answers. Synthesize ONE final, authoritative
answer for the user. Draw on the strongest material from the council, correct
errors, and resolve disagreements. Answer the user directly; do not describe
the council process.`

// titleSystemPrompt instructs the title generator.
const titleSystemPrompt = `Generate a short title (3-5 words) for a conversation that starts with the message below.
Respond with the title only: no quotes, no punctuation, no explanation.`

// buildRankingPrompt renders the Stage-2 user prompt for one ranker: the
// original question plus every *other* survivor's anonymized answer. The
// ranker's own answer and label are omitted entirely, so nothing in the
// prompt reveals which label is its own; the parser's completion rule
// appends the unmentioned self label at the lowest-confidence position.
func buildRankingPrompt(userPrompt string, responses []ModelResponse, assignment LabelAssignment, ranker string) string {
	var b strings.Builder

	b.WriteString("The user asked:\n\n")
	b.WriteString(userPrompt)
	b.WriteString("\n\nThe council produced these anonymous answers:\n")

	selfLabel, _ := assignment.LabelFor(ranker)
	shown := make([]string, 0, assignment.Len())
	for _, resp := range responses {
		label, ok := assignment.LabelFor(resp.Model)
		if !ok || label == selfLabel {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n%s\n", label, resp.Content)
		shown = append(shown, label)
	}

	b.WriteString("\nRank the answers shown above from best to worst, referring to them by label: ")
	b.WriteString(strings.Join(shown, ", "))
	b.WriteString("\n")

	return b.String()
}

// buildSynthesisPrompt renders the Stage-3 user prompt: the original
// question, a digest of every council answer, and the consensus ordering.
func buildSynthesisPrompt(userPrompt string, responses []ModelResponse, stage2 Stage2Result) string {
	var b strings.Builder

	b.WriteString("The user asked:\n\n")
	b.WriteString(userPrompt)
	b.WriteString("\n\n## Council answers\n")
	for _, resp := range responses {
		fmt.Fprintf(&b, "\n### %s\n%s\n", resp.Model, resp.Content)
	}

	if len(stage2.Aggregate) > 0 {
		b.WriteString("\n## Peer-ranking consensus (best first)\n")
		for i, entry := range stage2.Aggregate {
			fmt.Fprintf(&b, "%d. %s (average rank %.2f over %d votes)\n",
				i+1, entry.Model, entry.MeanRank, entry.VoteCount)
		}
	}

	b.WriteString("\nWrite the final answer for the user.\n")
	return b.String()
}
