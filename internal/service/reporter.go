package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pp-tracker/internal/metrics"

	"github.com/rs/zerolog"
)

type Stage string

const (
	StageFetch       Stage = "fetch"
	StageNormalize   Stage = "normalize"
	StageBeatmap     Stage = "beatmap"
	StageDifficulty  Stage = "difficulty"
	StagePerformance Stage = "performance"
	StagePanic       Stage = "panic"
)

// ItemError describes one score or player that was excluded from a run.
type ItemError struct {
	RunID     string
	UserID    int64
	ScoreID   int64
	BeatmapID int64
	Index     int
	Stage     Stage
	Err       error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s failed for score %d (beatmap %d): %v", e.Stage, e.ScoreID, e.BeatmapID, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// ErrorReporter is the side channel for per-item failures. Implementations
// must accept concurrent calls.
type ErrorReporter interface {
	Report(ctx context.Context, item ItemError)
}

// ErrorLog logs every reported failure and keeps it for later retrieval.
type ErrorLog struct {
	mu      sync.Mutex
	items   []ItemError
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewErrorLog(logger zerolog.Logger, m *metrics.Metrics) *ErrorLog {
	return &ErrorLog{logger: logger, metrics: m}
}

func (l *ErrorLog) Report(_ context.Context, item ItemError) {
	l.logger.Warn().
		Err(item.Err).
		Str("run_id", item.RunID).
		Int64("user_id", item.UserID).
		Int64("score_id", item.ScoreID).
		Int64("beatmap_id", item.BeatmapID).
		Str("stage", string(item.Stage)).
		Msg("item excluded from recomputation")

	if l.metrics != nil {
		l.metrics.ItemFailed(string(item.Stage))
	}

	l.mu.Lock()
	l.items = append(l.items, item)
	l.mu.Unlock()
}

// Errors returns a copy of everything reported so far.
func (l *ErrorLog) Errors() []ItemError {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ItemError, len(l.items))
	copy(out, l.items)
	return out
}

func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// stageError tags an error with the pipeline stage it came from.
type stageError struct {
	stage Stage
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

func atStage(stage Stage, err error) error {
	return &stageError{stage: stage, err: err}
}

func stageOf(err error) Stage {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return StagePanic
}
