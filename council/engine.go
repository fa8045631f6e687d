package council

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmcouncil/council/gateway"
)

// Engine orchestrates the three-stage council pipeline over a provider
// gateway. It holds no per-request state and persists nothing; concurrent
// use is safe, including SetRoster racing in-flight runs.
type Engine struct {
	gw     gateway.Completer
	logger *slog.Logger

	mu  sync.RWMutex // guards cfg.Members and cfg.Chairman
	cfg Config
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a council engine.
func NewEngine(gw gateway.Completer, cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		gw:     gw,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetRoster replaces the default council roster and chairman. Used by config
// hot reload; per-request overrides and runs already in flight are
// unaffected.
func (e *Engine) SetRoster(members []string, chairman string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(members) > 0 {
		e.cfg.Members = members
	}
	if chairman != "" {
		e.cfg.Chairman = chairman
	}
}

// roster snapshots the current default roster and chairman. Each run reads
// it exactly once, so a hot reload mid-run cannot mix rosters.
func (e *Engine) roster() ([]string, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	members := make([]string, len(e.cfg.Members))
	copy(members, e.cfg.Members)
	return members, e.cfg.Chairman
}

// RunFullCouncil executes all three stages and returns once they complete.
func (e *Engine) RunFullCouncil(ctx context.Context, req Request) (*CouncilResult, error) {
	return e.run(ctx, req, func(Event) bool { return true })
}

// streamBuffer is the event channel capacity. Large enough that a slow
// reader never stalls the pipeline for the handful of events one run emits.
const streamBuffer = 16

// RunStream executes the pipeline in the background and returns an event
// channel. The channel delivers events strictly ordered by stage and is
// closed after exactly one terminal event (complete or error). If the caller
// abandons ctx, in-flight provider calls are not cancelled mid-stage but
// their results are discarded.
func (e *Engine) RunStream(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event, streamBuffer)

	emit := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)
		if _, err := e.run(ctx, req, emit); err != nil {
			emit(errorEvent(err))
		}
	}()

	return ch
}

// run is the shared pipeline. emit reports whether the consumer is still
// listening; a false return aborts the remaining stages since nobody will
// see their results. On success the terminal complete event has already
// been emitted.
func (e *Engine) run(ctx context.Context, req Request, emit func(Event) bool) (*CouncilResult, error) {
	if req.Prompt == "" {
		return nil, NewError(KindInvalidRequest, "prompt must not be empty", nil)
	}

	defMembers, defChairman := e.roster()
	members := req.Members
	if len(members) == 0 {
		members = defMembers
	}
	members = dedupe(members)
	if len(members) == 0 {
		return nil, NewError(KindInvalidRequest, "council requires at least 1 member", nil)
	}

	chairman := req.Chairman
	if chairman == "" {
		chairman = defChairman
	}

	requestID := uuid.New().String()
	started := time.Now()
	e.logger.Info("Council run started",
		"request_id", requestID,
		"members", len(members),
		"chairman", chairman)

	// The title call overlaps the whole pipeline and is joined at the end.
	titleCh := make(chan string, 1)
	go func() {
		titleCh <- e.GenerateTitle(ctx, req.Prompt, req.APIKey)
	}()

	// Stage 1: concurrent dispatch.
	if !emit(Event{Type: EventStage1Start}) {
		return nil, ctx.Err()
	}
	stage1 := e.stage1Collect(ctx, req.Prompt, members, req.APIKey)
	if len(stage1) == 0 {
		return nil, NewError(KindNoQuorum,
			"No models responded. Please check your API key and try again.", nil)
	}
	if !emit(Event{Type: EventStage1Complete, Data: stage1}) {
		return nil, ctx.Err()
	}

	// Stage 2: anonymized peer ranking plus consensus aggregation.
	if !emit(Event{Type: EventStage2Start}) {
		return nil, ctx.Err()
	}
	submissions, assignment := e.stage2Collect(ctx, req.Prompt, stage1, req.APIKey)
	survivors := make([]string, len(stage1))
	for i, r := range stage1 {
		survivors[i] = r.Model
	}
	stage2 := Stage2Result{
		Submissions:  submissions,
		LabelToModel: assignment.ToMap(),
		Aggregate:    CalculateAggregate(submissions, assignment, survivors),
	}
	if !emit(Event{
		Type: EventStage2Complete,
		Data: submissions,
		Metadata: &Stage2Metadata{
			LabelToModel:      stage2.LabelToModel,
			AggregateRankings: stage2.Aggregate,
		},
	}) {
		return nil, ctx.Err()
	}

	// Stage 3: chairman synthesis. No fallback exists here.
	if !emit(Event{Type: EventStage3Start}) {
		return nil, ctx.Err()
	}
	stage3, err := e.stage3Synthesize(ctx, req.Prompt, stage1, stage2, chairman, req.APIKey)
	if err != nil {
		return nil, err
	}
	if !emit(Event{Type: EventStage3Complete, Data: *stage3}) {
		return nil, ctx.Err()
	}

	title := <-titleCh
	if !emit(Event{Type: EventTitleComplete, Data: TitleData{Title: title}}) {
		return nil, ctx.Err()
	}

	if !emit(Event{Type: EventComplete}) {
		return nil, ctx.Err()
	}

	e.logger.Info("Council run finished",
		"request_id", requestID,
		"survivors", len(stage1),
		"rankings", len(submissions),
		"duration", time.Since(started))

	return &CouncilResult{
		Stage1: stage1,
		Stage2: stage2,
		Stage3: *stage3,
		Metadata: Metadata{
			RequestID:  requestID,
			Members:    members,
			Survivors:  survivors,
			Title:      title,
			DurationMs: time.Since(started).Milliseconds(),
		},
	}, nil
}
