package service

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"pp-tracker/internal/domain"
	"pp-tracker/internal/mods"
	"pp-tracker/internal/ruleset"
)

// Normalize validates a remote score against rs and converts it into the
// form calculators consume.
func Normalize(raw domain.RawScore, rs ruleset.Ruleset) (domain.CanonicalScore, error) {
	stats := make(map[domain.HitResult]int, len(rs.Statistics))
	for _, result := range slices.Sorted(maps.Keys(rs.Statistics)) {
		count, ok := lookupStatistic(raw.Statistics, rs.Statistics[result])
		if !ok {
			return domain.CanonicalScore{}, fmt.Errorf("%w: %s for score %d", domain.ErrMissingStatistic, result, raw.ScoreID)
		}
		if count < 0 {
			return domain.CanonicalScore{}, fmt.Errorf("%w: negative %s count %d", domain.ErrInvalidScore, result, count)
		}
		stats[result] = count
	}

	if raw.MaxCombo < 0 {
		return domain.CanonicalScore{}, fmt.Errorf("%w: negative combo %d", domain.ErrInvalidScore, raw.MaxCombo)
	}

	list := make([]mods.Mod, 0, len(raw.Mods))
	for _, acronym := range raw.Mods {
		acronym = strings.TrimSpace(acronym)
		if acronym == "" || strings.EqualFold(acronym, "None") {
			continue
		}
		m, ok := mods.Parse(acronym)
		if !ok || !rs.Supports(m) {
			return domain.CanonicalScore{}, fmt.Errorf("%w: %q in %s", domain.ErrUnknownMod, acronym, rs.ShortName)
		}
		if !slices.Contains(list, m) {
			list = append(list, m)
		}
	}

	return domain.CanonicalScore{
		ScoreID:    raw.ScoreID,
		UserID:     raw.UserID,
		BeatmapID:  raw.BeatmapID,
		RulesetID:  rs.ID,
		Statistics: stats,
		Mods:       list,
		MaxCombo:   raw.MaxCombo,
		Accuracy:   raw.Accuracy,
		TotalScore: raw.TotalScore,
	}, nil
}

func lookupStatistic(stats map[string]int, keys []string) (int, bool) {
	for _, k := range keys {
		if v, ok := stats[k]; ok {
			return v, true
		}
	}
	return 0, false
}
