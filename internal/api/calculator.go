package api

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"pp-tracker/internal/config"
	"pp-tracker/internal/domain"
	"pp-tracker/internal/mods"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// CalculatorClient reaches the difficulty and performance calculators
// hosted by the calculator sidecar.
type CalculatorClient struct {
	baseURL string
	client  *fasthttp.Client
	logger  zerolog.Logger
}

func NewCalculatorClient(cfg *config.Config, logger zerolog.Logger) *CalculatorClient {
	return &CalculatorClient{
		baseURL: strings.TrimRight(cfg.CalculatorURL, "/"),
		client:  newHTTPClient(),
		logger:  logger,
	}
}

// AttributesPayload is the wire form of domain.DifficultyAttributes.
type AttributesPayload struct {
	MapID     int64  `json:"map_id,omitempty"`
	Mods      uint64 `json:"mods"`
	ModString string `json:"mod_string,omitempty"`

	StarRating        float64 `json:"star_rating"`
	AimSR             float64 `json:"aim_sr"`
	AimDiff           float64 `json:"aim_diff"`
	AimHiddenFactor   float64 `json:"aim_hidden_factor"`
	TapSR             float64 `json:"tap_sr"`
	TapDiff           float64 `json:"tap_diff"`
	StreamNoteCount   float64 `json:"stream_note_count"`
	MashTapDiff       float64 `json:"mash_tap_diff"`
	FingerControlSR   float64 `json:"finger_control_sr"`
	FingerControlDiff float64 `json:"finger_control_diff"`
	FlashlightSR      float64 `json:"flashlight_sr"`
	FlashlightDiff    float64 `json:"flashlight_diff"`
	SliderFactor      float64 `json:"slider_factor"`
	CheeseNoteCount   float64 `json:"cheese_note_count"`
	Length            float64 `json:"length"`
	ApproachRate      float64 `json:"approach_rate"`
	OverallDifficulty float64 `json:"overall_difficulty"`
	CircleSize        float64 `json:"circle_size"`
	DrainRate         float64 `json:"drain_rate"`
	MaxCombo          int     `json:"max_combo"`

	ComboThroughputs []float64 `json:"combo_throughputs"`
	MissThroughputs  []float64 `json:"miss_throughputs"`
	MissCounts       []float64 `json:"miss_counts"`
	CheeseLevels     []float64 `json:"cheese_levels"`
	CheeseFactors    []float64 `json:"cheese_factors"`

	UpdatedAt string `json:"updated_at,omitempty"`
}

func EncodeAttributes(a *domain.DifficultyAttributes) AttributesPayload {
	p := AttributesPayload{
		MapID:             a.Key.MapID,
		Mods:              uint64(a.Key.Mods),
		ModString:         a.Key.Mods.String(),
		StarRating:        a.StarRating,
		AimSR:             a.AimSR,
		AimDiff:           a.AimDiff,
		AimHiddenFactor:   a.AimHiddenFactor,
		TapSR:             a.TapSR,
		TapDiff:           a.TapDiff,
		StreamNoteCount:   a.StreamNoteCount,
		MashTapDiff:       a.MashTapDiff,
		FingerControlSR:   a.FingerControlSR,
		FingerControlDiff: a.FingerControlDiff,
		FlashlightSR:      a.FlashlightSR,
		FlashlightDiff:    a.FlashlightDiff,
		SliderFactor:      a.SliderFactor,
		CheeseNoteCount:   a.CheeseNoteCount,
		Length:            a.Length,
		ApproachRate:      a.ApproachRate,
		OverallDifficulty: a.OverallDifficulty,
		CircleSize:        a.CircleSize,
		DrainRate:         a.DrainRate,
		MaxCombo:          a.MaxCombo,
		ComboThroughputs:  a.ComboThroughputs,
		MissThroughputs:   a.MissThroughputs,
		MissCounts:        a.MissCounts,
		CheeseLevels:      a.CheeseLevels,
		CheeseFactors:     a.CheeseFactors,
	}
	if !a.UpdatedAt.IsZero() {
		p.UpdatedAt = a.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return p
}

func (p AttributesPayload) decode() *domain.DifficultyAttributes {
	return &domain.DifficultyAttributes{
		Key:               domain.MapModsKey{MapID: p.MapID, Mods: mods.Mask(p.Mods)},
		StarRating:        p.StarRating,
		AimSR:             p.AimSR,
		AimDiff:           p.AimDiff,
		AimHiddenFactor:   p.AimHiddenFactor,
		TapSR:             p.TapSR,
		TapDiff:           p.TapDiff,
		StreamNoteCount:   p.StreamNoteCount,
		MashTapDiff:       p.MashTapDiff,
		FingerControlSR:   p.FingerControlSR,
		FingerControlDiff: p.FingerControlDiff,
		FlashlightSR:      p.FlashlightSR,
		FlashlightDiff:    p.FlashlightDiff,
		SliderFactor:      p.SliderFactor,
		CheeseNoteCount:   p.CheeseNoteCount,
		Length:            p.Length,
		ApproachRate:      p.ApproachRate,
		OverallDifficulty: p.OverallDifficulty,
		CircleSize:        p.CircleSize,
		DrainRate:         p.DrainRate,
		MaxCombo:          p.MaxCombo,
		ComboThroughputs:  p.ComboThroughputs,
		MissThroughputs:   p.MissThroughputs,
		MissCounts:        p.MissCounts,
		CheeseLevels:      p.CheeseLevels,
		CheeseFactors:     p.CheeseFactors,
	}
}

type difficultyRequest struct {
	BeatmapID      int64    `json:"beatmap_id"`
	RulesetID      int      `json:"ruleset_id"`
	Mods           []string `json:"mods"`
	Beatmap        []byte   `json:"beatmap"`
	CaptureStrains bool     `json:"capture_strains"`
}

type difficultyResponse struct {
	Attributes AttributesPayload    `json:"attributes"`
	Strains    map[string][]float64 `json:"strains"`
}

type performanceRequest struct {
	RulesetID  int               `json:"ruleset_id"`
	Score      scorePayload      `json:"score"`
	Attributes AttributesPayload `json:"attributes"`
}

type scorePayload struct {
	Statistics map[string]int `json:"statistics"`
	MaxCombo   int            `json:"max_combo"`
	Accuracy   float64        `json:"accuracy"`
	TotalScore int64          `json:"total_score"`
	Mods       []string       `json:"mods"`
}

type performanceResponse struct {
	PP float64 `json:"pp"`
}

func acronyms(list []mods.Mod) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.Acronym()
	}
	return out
}

// Difficulty asks the sidecar for the attributes of beatmap under list and
// replays any returned strain samples into obs, skills in name order.
func (c *CalculatorClient) Difficulty(ctx context.Context, beatmap *domain.Beatmap, rulesetID int, list []mods.Mod, obs domain.StrainObserver) (*domain.DifficultyAttributes, error) {
	capture := obs != nil
	if _, nop := obs.(domain.NopObserver); nop {
		capture = false
	}

	resp, err := postJSON[difficultyResponse](ctx, c.client, c.baseURL+"/difficulty", difficultyRequest{
		BeatmapID:      beatmap.ID,
		RulesetID:      rulesetID,
		Mods:           acronyms(list),
		Beatmap:        beatmap.Data,
		CaptureStrains: capture,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: difficulty for beatmap %d: %w", domain.ErrCalculator, beatmap.ID, err)
	}

	if capture {
		for _, skill := range slices.Sorted(maps.Keys(resp.Strains)) {
			for i, v := range resp.Strains[skill] {
				obs.RecordSample(skill, i, v)
			}
		}
	}

	attrs := resp.Attributes.decode()
	attrs.Key = domain.MapModsKey{MapID: beatmap.ID, Mods: mods.Encode(list)}
	c.logger.Debug().
		Str("key", attrs.Key.String()).
		Float64("stars", attrs.StarRating).
		Int("strain_skills", len(resp.Strains)).
		Msg("difficulty calculated")
	return attrs, nil
}

func (c *CalculatorClient) Performance(ctx context.Context, score domain.CanonicalScore, attrs *domain.DifficultyAttributes) (float64, error) {
	stats := make(map[string]int, len(score.Statistics))
	for k, v := range score.Statistics {
		stats[string(k)] = v
	}

	resp, err := postJSON[performanceResponse](ctx, c.client, c.baseURL+"/performance", performanceRequest{
		RulesetID: score.RulesetID,
		Score: scorePayload{
			Statistics: stats,
			MaxCombo:   score.MaxCombo,
			Accuracy:   score.Accuracy,
			TotalScore: score.TotalScore,
			Mods:       acronyms(score.Mods),
		},
		Attributes: EncodeAttributes(attrs),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: performance for score %d: %w", domain.ErrCalculator, score.ScoreID, err)
	}
	return resp.PP, nil
}
