package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pp-tracker/internal/domain"
	"pp-tracker/internal/mods"

	"github.com/rs/zerolog"
)

const attributeColumns = `map_id, mods, updated_at, max_combo,
	star_rating, aim_sr, aim_diff, aim_hidden_factor,
	tap_sr, tap_diff, stream_note_count, mash_tap_diff,
	finger_control_sr, finger_control_diff,
	flashlight_sr, flashlight_diff, slider_factor, cheese_note_count,
	length, approach_rate, overall_difficulty, circle_size, drain_rate,
	combo_throughputs, miss_throughputs, miss_counts, cheese_levels, cheese_factors`

const getAttributes = `SELECT ` + attributeColumns + `
FROM difficulty_attributes
WHERE map_id = ? AND mods = ?`

const upsertAttributes = `INSERT INTO difficulty_attributes (` + attributeColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (map_id, mods) DO UPDATE SET
	updated_at = excluded.updated_at,
	max_combo = excluded.max_combo,
	star_rating = excluded.star_rating,
	aim_sr = excluded.aim_sr,
	aim_diff = excluded.aim_diff,
	aim_hidden_factor = excluded.aim_hidden_factor,
	tap_sr = excluded.tap_sr,
	tap_diff = excluded.tap_diff,
	stream_note_count = excluded.stream_note_count,
	mash_tap_diff = excluded.mash_tap_diff,
	finger_control_sr = excluded.finger_control_sr,
	finger_control_diff = excluded.finger_control_diff,
	flashlight_sr = excluded.flashlight_sr,
	flashlight_diff = excluded.flashlight_diff,
	slider_factor = excluded.slider_factor,
	cheese_note_count = excluded.cheese_note_count,
	length = excluded.length,
	approach_rate = excluded.approach_rate,
	overall_difficulty = excluded.overall_difficulty,
	circle_size = excluded.circle_size,
	drain_rate = excluded.drain_rate,
	combo_throughputs = excluded.combo_throughputs,
	miss_throughputs = excluded.miss_throughputs,
	miss_counts = excluded.miss_counts,
	cheese_levels = excluded.cheese_levels,
	cheese_factors = excluded.cheese_factors`

type AttributeRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAttributeRepository(sqlDB *sql.DB, logger zerolog.Logger) *AttributeRepository {
	return &AttributeRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Get returns the cached attributes for key, or nil when none are stored.
func (r *AttributeRepository) Get(ctx context.Context, key domain.MapModsKey) (*domain.DifficultyAttributes, error) {
	var (
		a                                           domain.DifficultyAttributes
		mapID, mask, maxCombo                       int64
		comboTPs, missTPs, missCounts, levels, facs string
	)

	err := r.db.QueryRowContext(ctx, getAttributes, key.MapID, int64(key.Mods)).Scan(
		&mapID, &mask, &a.UpdatedAt, &maxCombo,
		&a.StarRating, &a.AimSR, &a.AimDiff, &a.AimHiddenFactor,
		&a.TapSR, &a.TapDiff, &a.StreamNoteCount, &a.MashTapDiff,
		&a.FingerControlSR, &a.FingerControlDiff,
		&a.FlashlightSR, &a.FlashlightDiff, &a.SliderFactor, &a.CheeseNoteCount,
		&a.Length, &a.ApproachRate, &a.OverallDifficulty, &a.CircleSize, &a.DrainRate,
		&comboTPs, &missTPs, &missCounts, &levels, &facs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error().Err(err).Str("key", key.String()).Msg("failed to read attributes")
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrStorage, key, err)
	}

	a.Key = domain.MapModsKey{MapID: mapID, Mods: mods.Mask(mask)}
	a.MaxCombo = int(maxCombo)

	sequences := []struct {
		name string
		text string
		dst  *[]float64
	}{
		{"combo_throughputs", comboTPs, &a.ComboThroughputs},
		{"miss_throughputs", missTPs, &a.MissThroughputs},
		{"miss_counts", missCounts, &a.MissCounts},
		{"cheese_levels", levels, &a.CheeseLevels},
		{"cheese_factors", facs, &a.CheeseFactors},
	}
	for _, s := range sequences {
		values, err := DecodeSequence(s.text)
		if err != nil {
			r.logger.Warn().Err(err).Str("key", key.String()).Str("column", s.name).Msg("corrupt attribute sequence")
			return nil, fmt.Errorf("decode %s for %s: %w", s.name, key, err)
		}
		*s.dst = values
	}

	if !a.Aligned() {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrFormat, key, domain.ErrMisalignedSequences)
	}

	return &a, nil
}

// Put upserts attrs by its key; the last write wins. A zero UpdatedAt is
// stamped with the current time.
func (r *AttributeRepository) Put(ctx context.Context, attrs *domain.DifficultyAttributes) error {
	if !attrs.Aligned() {
		return fmt.Errorf("put %s: %w", attrs.Key, domain.ErrMisalignedSequences)
	}
	if attrs.UpdatedAt.IsZero() {
		attrs.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertAttributes,
		attrs.Key.MapID, int64(attrs.Key.Mods), attrs.UpdatedAt.UTC(), int64(attrs.MaxCombo),
		attrs.StarRating, attrs.AimSR, attrs.AimDiff, attrs.AimHiddenFactor,
		attrs.TapSR, attrs.TapDiff, attrs.StreamNoteCount, attrs.MashTapDiff,
		attrs.FingerControlSR, attrs.FingerControlDiff,
		attrs.FlashlightSR, attrs.FlashlightDiff, attrs.SliderFactor, attrs.CheeseNoteCount,
		attrs.Length, attrs.ApproachRate, attrs.OverallDifficulty, attrs.CircleSize, attrs.DrainRate,
		EncodeSequence(attrs.ComboThroughputs),
		EncodeSequence(attrs.MissThroughputs),
		EncodeSequence(attrs.MissCounts),
		EncodeSequence(attrs.CheeseLevels),
		EncodeSequence(attrs.CheeseFactors),
	)
	if err != nil {
		r.logger.Error().Err(err).Str("key", attrs.Key.String()).Msg("failed to upsert attributes")
		return fmt.Errorf("%w: put %s: %w", domain.ErrStorage, attrs.Key, err)
	}

	r.logger.Debug().
		Int64("map_id", attrs.Key.MapID).
		Str("mods", attrs.Key.Mods.String()).
		Msg("attributes stored")
	return nil
}

func (r *AttributeRepository) Delete(ctx context.Context, key domain.MapModsKey) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM difficulty_attributes WHERE map_id = ? AND mods = ?`, key.MapID, int64(key.Mods))
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", domain.ErrStorage, key, err)
	}
	return nil
}

// Prune deletes every record last updated before cutoff.
func (r *AttributeRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM difficulty_attributes WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %w", domain.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %w", domain.ErrStorage, err)
	}
	r.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("pruned stale attributes")
	return n, nil
}

func (r *AttributeRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM difficulty_attributes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrStorage, err)
	}
	return n, nil
}
