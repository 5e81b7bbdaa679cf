package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"pp-tracker/internal/domain"
	"pp-tracker/internal/mods"
	"pp-tracker/internal/ruleset"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[domain.MapModsKey]*domain.DifficultyAttributes
	getErr  error
	putErr  error
	puts    atomic.Int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[domain.MapModsKey]*domain.DifficultyAttributes)}
}

func (s *memoryStore) Get(_ context.Context, key domain.MapModsKey) (*domain.DifficultyAttributes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) Put(_ context.Context, attrs *domain.DifficultyAttributes) error {
	s.puts.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	cp := *attrs
	s.records[attrs.Key] = &cp
	return nil
}

type stubBeatmaps struct {
	missing map[int64]bool
}

func (b stubBeatmaps) Get(_ context.Context, mapID int64) (*domain.Beatmap, error) {
	if b.missing[mapID] {
		return nil, fmt.Errorf("beatmap %d: %w", mapID, domain.ErrBeatmapNotFound)
	}
	return &domain.Beatmap{ID: mapID, Data: []byte("osu file format v14")}, nil
}

// countingDifficulty returns star rating = map id / 1000 and records every call.
type countingDifficulty struct {
	calls   atomic.Int64
	panicOn int64
	failOn  int64
	strains map[string][]float64

	mu   sync.Mutex
	seen [][]mods.Mod
}

func (d *countingDifficulty) Difficulty(_ context.Context, beatmap *domain.Beatmap, _ int, list []mods.Mod, obs domain.StrainObserver) (*domain.DifficultyAttributes, error) {
	d.calls.Add(1)
	if beatmap.ID == d.panicOn {
		panic("calculator blew up")
	}
	if beatmap.ID == d.failOn {
		return nil, fmt.Errorf("%w: status 500", domain.ErrCalculator)
	}
	d.mu.Lock()
	d.seen = append(d.seen, list)
	d.mu.Unlock()

	for skill, samples := range d.strains {
		for i, v := range samples {
			obs.RecordSample(skill, i, v)
		}
	}
	return &domain.DifficultyAttributes{
		StarRating: float64(beatmap.ID) / 1000,
		MaxCombo:   500,
	}, nil
}

// blockingDifficulty parks the first calculation until release is closed.
// started is closed once that calculation is in flight.
type blockingDifficulty struct {
	countingDifficulty
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingDifficulty() *blockingDifficulty {
	return &blockingDifficulty{started: make(chan struct{}), release: make(chan struct{})}
}

func (d *blockingDifficulty) Difficulty(ctx context.Context, beatmap *domain.Beatmap, rulesetID int, list []mods.Mod, obs domain.StrainObserver) (*domain.DifficultyAttributes, error) {
	d.once.Do(func() { close(d.started) })
	<-d.release
	return d.countingDifficulty.Difficulty(ctx, beatmap, rulesetID, list, obs)
}

// flatPerformance awards pp equal to the great count.
type flatPerformance struct{}

func (flatPerformance) Performance(_ context.Context, score domain.CanonicalScore, attrs *domain.DifficultyAttributes) (float64, error) {
	if attrs == nil {
		return 0, errors.New("missing attributes")
	}
	return float64(score.Statistics[domain.HitGreat]), nil
}

func osuScore(id, beatmapID int64, great int, acronyms ...string) domain.RawScore {
	return domain.RawScore{
		ScoreID:   id,
		UserID:    7,
		BeatmapID: beatmapID,
		Statistics: map[string]int{
			"great": great,
			"ok":    3,
			"meh":   0,
			"miss":  1,
		},
		Accuracy: 0.98,
		MaxCombo: 400,
		Mods:     acronyms,
	}
}

var osu = ruleset.Osu
