package domain

import (
	"fmt"
	"time"

	"pp-tracker/internal/mods"
)

type MapModsKey struct {
	MapID int64
	Mods  mods.Mask
}

func (k MapModsKey) String() string {
	return fmt.Sprintf("%d/%d", k.MapID, uint64(k.Mods))
}

// DifficultyAttributes is the cached difficulty vector of one beatmap under
// one legacy mod combination.
type DifficultyAttributes struct {
	Key MapModsKey

	StarRating float64

	AimSR           float64
	AimDiff         float64
	AimHiddenFactor float64

	TapSR           float64
	TapDiff         float64
	StreamNoteCount float64
	MashTapDiff     float64

	FingerControlSR   float64
	FingerControlDiff float64

	FlashlightSR   float64
	FlashlightDiff float64
	SliderFactor   float64

	CheeseNoteCount float64

	Length            float64
	ApproachRate      float64
	OverallDifficulty float64
	CircleSize        float64
	DrainRate         float64
	MaxCombo          int

	ComboThroughputs []float64
	// MissThroughputs[i] pairs with MissCounts[i]
	MissThroughputs []float64
	MissCounts      []float64
	// CheeseLevels[i] pairs with CheeseFactors[i]
	CheeseLevels  []float64
	CheeseFactors []float64

	UpdatedAt time.Time
}

// Aligned reports whether co-indexed sequences have matching lengths.
func (a *DifficultyAttributes) Aligned() bool {
	return len(a.MissThroughputs) == len(a.MissCounts) &&
		len(a.CheeseLevels) == len(a.CheeseFactors)
}

type HitResult string

const (
	HitPerfect       HitResult = "perfect"
	HitGreat         HitResult = "great"
	HitGood          HitResult = "good"
	HitOk            HitResult = "ok"
	HitMeh           HitResult = "meh"
	HitMiss          HitResult = "miss"
	HitLargeTickHit  HitResult = "large_tick_hit"
	HitSmallTickHit  HitResult = "small_tick_hit"
	HitSmallTickMiss HitResult = "small_tick_miss"
)

// RawScore is a score as returned by the remote API.
type RawScore struct {
	ScoreID    int64
	UserID     int64
	BeatmapID  int64
	Statistics map[string]int
	Accuracy   float64
	MaxCombo   int
	TotalScore int64
	Mods       []string
	LivePP     *float64
}

type CanonicalScore struct {
	ScoreID    int64
	UserID     int64
	BeatmapID  int64
	RulesetID  int
	Statistics map[HitResult]int
	Mods       []mods.Mod
	MaxCombo   int
	Accuracy   float64
	TotalScore int64
}

type ScoredPlay struct {
	Score       CanonicalScore
	SourceIndex int
	Key         MapModsKey
	LocalPP     float64
	LivePP      float64
}

type WeightedAggregate struct {
	TotalLocal float64
	TotalLive  float64
	Bonus      float64
}

// Beatmap is an undecoded beatmap file; calculators own decoding.
type Beatmap struct {
	ID   int64
	Data []byte
}

type Player struct {
	UserID   int64
	Username string
	Country  string
	LivePP   float64
	Rank     int
}

// StrainObserver receives per-object strain samples from a difficulty pass.
type StrainObserver interface {
	RecordSample(skill string, index int, value float64)
}

type NopObserver struct{}

func (NopObserver) RecordSample(string, int, float64) {}
