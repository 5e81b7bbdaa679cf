package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"pp-tracker/internal/domain"
	"pp-tracker/internal/metrics"
	"pp-tracker/internal/mods"
	"pp-tracker/internal/ruleset"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// AttributeStore is the persistent difficulty attribute cache.
type AttributeStore interface {
	Get(ctx context.Context, key domain.MapModsKey) (*domain.DifficultyAttributes, error)
	Put(ctx context.Context, attrs *domain.DifficultyAttributes) error
}

type BeatmapProvider interface {
	Get(ctx context.Context, mapID int64) (*domain.Beatmap, error)
}

// DifficultyCalculator computes attributes for a beatmap under a mod
// combination. Samples are pushed to obs while the calculation runs.
type DifficultyCalculator interface {
	Difficulty(ctx context.Context, beatmap *domain.Beatmap, rulesetID int, mods []mods.Mod, obs domain.StrainObserver) (*domain.DifficultyAttributes, error)
}

type PerformanceCalculator interface {
	Performance(ctx context.Context, score domain.CanonicalScore, attrs *domain.DifficultyAttributes) (float64, error)
}

// Batch is the outcome of RecomputeBatch. Plays are in completion order.
type Batch struct {
	Plays     []domain.ScoredPlay
	Cancelled bool
}

type EngineOption func(*Engine)

func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithAttributeTTL makes cached attributes older than ttl count as misses.
// Zero disables expiry.
func WithAttributeTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		if ttl >= 0 {
			e.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

type Engine struct {
	store       AttributeStore
	beatmaps    BeatmapProvider
	difficulty  DifficultyCalculator
	performance PerformanceCalculator
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	workers int
	ttl     time.Duration
	now     func() time.Time

	flight singleflight.Group
}

func NewEngine(
	store AttributeStore,
	beatmaps BeatmapProvider,
	difficulty DifficultyCalculator,
	performance PerformanceCalculator,
	m *metrics.Metrics,
	logger zerolog.Logger,
	opts ...EngineOption,
) *Engine {
	if m == nil {
		m = metrics.New()
	}
	e := &Engine{
		store:       store,
		beatmaps:    beatmaps,
		difficulty:  difficulty,
		performance: performance,
		metrics:     m,
		logger:      logger,
		workers:     runtime.NumCPU(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecomputeBatch recomputes every score in parallel. A failing score is
// reported to reporter and left out of the result; it never aborts the
// batch. Once ctx is cancelled no new score is started, scores already
// running finish, and the partial result is returned with Cancelled set.
func (e *Engine) RecomputeBatch(ctx context.Context, rs ruleset.Ruleset, scores []domain.RawScore, reporter ErrorReporter) Batch {
	if reporter == nil {
		reporter = NewErrorLog(e.logger, e.metrics)
	}

	var (
		mu        sync.Mutex
		plays     = make([]domain.ScoredPlay, 0, len(scores))
		cancelled atomic.Bool
	)

	// Items that have started run to completion even if ctx is cancelled.
	running := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(e.workers)

	for i := range scores {
		if ctx.Err() != nil {
			cancelled.Store(true)
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				cancelled.Store(true)
				return nil
			}

			start := time.Now()
			play, err := e.recomputeItem(running, rs, i, scores[i])
			if err != nil {
				reporter.Report(ctx, ItemError{
					UserID:    scores[i].UserID,
					ScoreID:   scores[i].ScoreID,
					BeatmapID: scores[i].BeatmapID,
					Index:     i,
					Stage:     stageOf(err),
					Err:       err,
				})
				return nil
			}
			e.metrics.PlayComputed(time.Since(start).Seconds())

			mu.Lock()
			plays = append(plays, play)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if cancelled.Load() {
		e.metrics.BatchCancelled()
		e.logger.Info().
			Int("completed", len(plays)).
			Int("total", len(scores)).
			Msg("batch cancelled")
	}

	return Batch{Plays: plays, Cancelled: cancelled.Load()}
}

func (e *Engine) recomputeItem(ctx context.Context, rs ruleset.Ruleset, index int, raw domain.RawScore) (play domain.ScoredPlay, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = atStage(StagePanic, fmt.Errorf("recovered: %v", r))
		}
	}()

	score, err := Normalize(raw, rs)
	if err != nil {
		return domain.ScoredPlay{}, atStage(StageNormalize, err)
	}

	key := domain.MapModsKey{MapID: score.BeatmapID, Mods: mods.Encode(score.Mods)}
	attrs, err := e.attributes(ctx, rs, key)
	if err != nil {
		return domain.ScoredPlay{}, err
	}

	return e.score(ctx, score, index, key, attrs, raw.LivePP)
}

// attributes returns cached attributes for key, computing and storing them
// on a miss. Concurrent misses for the same key share one calculation.
func (e *Engine) attributes(ctx context.Context, rs ruleset.Ruleset, key domain.MapModsKey) (*domain.DifficultyAttributes, error) {
	if attrs, ok := e.lookup(ctx, key); ok {
		return attrs, nil
	}

	v, err, _ := e.flight.Do(key.String(), func() (any, error) {
		if attrs, ok := e.peek(ctx, key); ok {
			return attrs, nil
		}
		return e.compute(ctx, rs, key, domain.NopObserver{})
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.DifficultyAttributes), nil
}

func (e *Engine) lookup(ctx context.Context, key domain.MapModsKey) (*domain.DifficultyAttributes, bool) {
	attrs, err := e.store.Get(ctx, key)
	switch {
	case err != nil:
		e.metrics.CacheLookup("error")
		e.logger.Warn().Err(err).Str("key", key.String()).Msg("attribute cache read failed, recomputing")
		return nil, false
	case attrs == nil:
		e.metrics.CacheLookup("miss")
		return nil, false
	case e.stale(attrs):
		e.metrics.CacheLookup("stale")
		return nil, false
	}
	e.metrics.CacheLookup("hit")
	return attrs, true
}

// peek re-reads the cache inside the flight so a caller that missed just
// before another caller stored the record does not recompute it.
func (e *Engine) peek(ctx context.Context, key domain.MapModsKey) (*domain.DifficultyAttributes, bool) {
	attrs, err := e.store.Get(ctx, key)
	if err != nil || attrs == nil || e.stale(attrs) {
		return nil, false
	}
	return attrs, true
}

func (e *Engine) stale(attrs *domain.DifficultyAttributes) bool {
	return e.ttl > 0 && e.now().Sub(attrs.UpdatedAt) > e.ttl
}

// compute runs the difficulty calculator for key and writes the result
// through to the cache. A failed write is logged and does not fail the item.
func (e *Engine) compute(ctx context.Context, rs ruleset.Ruleset, key domain.MapModsKey, obs domain.StrainObserver) (*domain.DifficultyAttributes, error) {
	beatmap, err := e.beatmaps.Get(ctx, key.MapID)
	if err != nil {
		return nil, atStage(StageBeatmap, err)
	}

	attrs, err := e.difficulty.Difficulty(ctx, beatmap, rs.ID, mods.Decode(key.Mods), obs)
	if err != nil {
		return nil, atStage(StageDifficulty, err)
	}
	if attrs == nil {
		return nil, atStage(StageDifficulty, fmt.Errorf("%w: empty attributes for %s", domain.ErrCalculator, key))
	}
	e.metrics.DifficultyCalculated()

	attrs.Key = key
	attrs.UpdatedAt = e.now().UTC()
	if err := e.store.Put(ctx, attrs); err != nil {
		e.metrics.CacheWriteFailed()
		e.logger.Warn().Err(err).Str("key", key.String()).Msg("failed to store difficulty attributes")
	}
	return attrs, nil
}

func (e *Engine) score(ctx context.Context, score domain.CanonicalScore, index int, key domain.MapModsKey, attrs *domain.DifficultyAttributes, livePP *float64) (domain.ScoredPlay, error) {
	pp, err := e.performance.Performance(ctx, score, attrs)
	if err != nil {
		return domain.ScoredPlay{}, atStage(StagePerformance, err)
	}

	play := domain.ScoredPlay{
		Score:       score,
		SourceIndex: index,
		Key:         key,
		LocalPP:     pp,
	}
	if livePP != nil {
		play.LivePP = *livePP
	}
	return play, nil
}

// Simulate recomputes a single score, always running the difficulty
// calculator so obs sees every strain sample. The fresh attributes replace
// whatever the cache held for the key.
func (e *Engine) Simulate(ctx context.Context, rs ruleset.Ruleset, raw domain.RawScore, obs domain.StrainObserver) (domain.ScoredPlay, error) {
	if obs == nil {
		obs = domain.NopObserver{}
	}

	score, err := Normalize(raw, rs)
	if err != nil {
		return domain.ScoredPlay{}, fmt.Errorf("failed to normalize score: %w", err)
	}

	key := domain.MapModsKey{MapID: score.BeatmapID, Mods: mods.Encode(score.Mods)}
	attrs, err := e.compute(ctx, rs, key, obs)
	if err != nil {
		return domain.ScoredPlay{}, fmt.Errorf("failed to calculate difficulty: %w", err)
	}

	play, err := e.score(ctx, score, 0, key, attrs, raw.LivePP)
	if err != nil {
		return domain.ScoredPlay{}, fmt.Errorf("failed to calculate performance: %w", err)
	}

	e.logger.Info().
		Str("key", key.String()).
		Float64("pp", play.LocalPP).
		Float64("stars", attrs.StarRating).
		Msg("simulated score")
	return play, nil
}
