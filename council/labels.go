package council

import "fmt"

// LabelAssignment is the per-request bijection between anonymous labels and
// model identities. It is computed once from the Stage-1 survivor order and
// passed through every Stage-2 call, so that concurrent ranking calls can
// never disagree on what a label means.
type LabelAssignment struct {
	labels  []string
	byLabel map[string]string
	byModel map[string]string
}

// NewLabelAssignment binds each model, in the given order, to a sequential
// anonymous label ("Response 1", "Response 2", ...). Labels are opaque
// tokens, never derived from model names, so a ranker cannot recover
// identities from them.
func NewLabelAssignment(models []string) LabelAssignment {
	a := LabelAssignment{
		labels:  make([]string, 0, len(models)),
		byLabel: make(map[string]string, len(models)),
		byModel: make(map[string]string, len(models)),
	}
	for i, model := range models {
		label := fmt.Sprintf("Response %d", i+1)
		a.labels = append(a.labels, label)
		a.byLabel[label] = model
		a.byModel[model] = label
	}
	return a
}

// Labels returns all labels in assignment order.
func (a LabelAssignment) Labels() []string {
	out := make([]string, len(a.labels))
	copy(out, a.labels)
	return out
}

// Len returns the number of assigned labels.
func (a LabelAssignment) Len() int {
	return len(a.labels)
}

// ModelFor resolves a label to its model. ok is false for unknown labels.
func (a LabelAssignment) ModelFor(label string) (string, bool) {
	m, ok := a.byLabel[label]
	return m, ok
}

// LabelFor resolves a model to its label. ok is false for unknown models.
func (a LabelAssignment) LabelFor(model string) (string, bool) {
	l, ok := a.byModel[model]
	return l, ok
}

// ToMap returns the label→model mapping as a plain map for serialization.
func (a LabelAssignment) ToMap() map[string]string {
	out := make(map[string]string, len(a.byLabel))
	for label, model := range a.byLabel {
		out[label] = model
	}
	return out
}
