package council

import "errors"

// EventType identifies a streaming progress event.
type EventType string

const (
	EventStage1Start    EventType = "stage1_start"
	EventStage1Complete EventType = "stage1_complete"
	EventStage2Start    EventType = "stage2_start"
	EventStage2Complete EventType = "stage2_complete"
	EventStage3Start    EventType = "stage3_start"
	EventStage3Complete EventType = "stage3_complete"
	EventTitleComplete  EventType = "title_complete"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
)

// Event is one streaming progress event. A session emits events strictly
// ordered by stage and terminates with exactly one EventComplete or
// EventError.
type Event struct {
	Type EventType `json:"type"`

	// Data carries the stage payload: []ModelResponse for stage1_complete,
	// []RankingSubmission for stage2_complete, Stage3Result for
	// stage3_complete, TitleData for title_complete.
	Data any `json:"data,omitempty"`

	// Metadata carries the stage-2 label assignment and consensus ordering.
	Metadata *Stage2Metadata `json:"metadata,omitempty"`

	// ErrorCode and Message are set on EventError only.
	ErrorCode Kind   `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Stage2Metadata accompanies the stage2_complete event.
type Stage2Metadata struct {
	LabelToModel      map[string]string `json:"label_to_model"`
	AggregateRankings []AggregateEntry  `json:"aggregate_rankings"`
}

// TitleData is the payload of a title_complete event.
type TitleData struct {
	Title string `json:"title"`
}

// errorEvent renders err as a terminal event.
func errorEvent(err error) Event {
	ev := Event{Type: EventError, ErrorCode: KindOf(err)}
	var ce *Error
	if errors.As(err, &ce) {
		ev.Message = ce.Message
	} else {
		ev.Message = "Council processing failed. Please try again."
	}
	return ev
}
