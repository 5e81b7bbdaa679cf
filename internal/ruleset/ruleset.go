// Package ruleset describes the statistics and mods each game mode accepts.
package ruleset

import (
	"fmt"
	"strings"

	"pp-tracker/internal/domain"
	"pp-tracker/internal/mods"
)

type Ruleset struct {
	ID        int
	ShortName string

	// Statistics maps each required hit result to the keys the remote API
	// may use for it, modern name first.
	Statistics map[domain.HitResult][]string

	Mods []mods.Mod
}

// Supports reports whether m is in the ruleset's known-mods table.
func (r Ruleset) Supports(m mods.Mod) bool {
	for _, known := range r.Mods {
		if known == m {
			return true
		}
	}
	return false
}

var common = []mods.Mod{
	mods.NoFail, mods.Easy, mods.Hidden, mods.HardRock, mods.SuddenDeath,
	mods.Perfect, mods.DoubleTime, mods.Nightcore, mods.HalfTime, mods.Daycore,
	mods.Flashlight, mods.Relax, mods.Autoplay, mods.Cinema, mods.ScoreV2,
	mods.DifficultyAdjust, mods.Classic, mods.Muted, mods.WindUp, mods.WindDown,
}

func with(extra ...mods.Mod) []mods.Mod {
	out := make([]mods.Mod, 0, len(common)+len(extra))
	out = append(out, common...)
	return append(out, extra...)
}

var (
	Osu = Ruleset{
		ID:        0,
		ShortName: "osu",
		Statistics: map[domain.HitResult][]string{
			domain.HitGreat: {"great", "count_300"},
			domain.HitOk:    {"ok", "count_100"},
			domain.HitMeh:   {"meh", "count_50"},
			domain.HitMiss:  {"miss", "count_miss"},
		},
		Mods: with(mods.TouchDevice, mods.SpunOut, mods.Autopilot, mods.Target,
			mods.Mirror, mods.Traceable, mods.Blinds, mods.StrictTracking,
			mods.Deflate, mods.Grow),
	}

	Taiko = Ruleset{
		ID:        1,
		ShortName: "taiko",
		Statistics: map[domain.HitResult][]string{
			domain.HitGreat: {"great", "count_300"},
			domain.HitOk:    {"ok", "count_100"},
			domain.HitMiss:  {"miss", "count_miss"},
		},
		Mods: with(mods.Random),
	}

	Catch = Ruleset{
		ID:        2,
		ShortName: "fruits",
		Statistics: map[domain.HitResult][]string{
			domain.HitGreat:         {"great", "count_300"},
			domain.HitLargeTickHit:  {"large_tick_hit", "count_100"},
			domain.HitSmallTickHit:  {"small_tick_hit", "count_50"},
			domain.HitSmallTickMiss: {"small_tick_miss", "count_katu"},
			domain.HitMiss:          {"miss", "count_miss"},
		},
		Mods: with(mods.Mirror),
	}

	Mania = Ruleset{
		ID:        3,
		ShortName: "mania",
		Statistics: map[domain.HitResult][]string{
			domain.HitPerfect: {"perfect", "count_geki"},
			domain.HitGreat:   {"great", "count_300"},
			domain.HitGood:    {"good", "count_katu"},
			domain.HitOk:      {"ok", "count_100"},
			domain.HitMeh:     {"meh", "count_50"},
			domain.HitMiss:    {"miss", "count_miss"},
		},
		Mods: with(mods.FadeIn, mods.Random, mods.Mirror, mods.KeyCoop,
			mods.Key1, mods.Key2, mods.Key3, mods.Key4, mods.Key5,
			mods.Key6, mods.Key7, mods.Key8, mods.Key9),
	}
)

var all = []Ruleset{Osu, Taiko, Catch, Mania}

// Lookup finds a ruleset by short name ("osu", "taiko", "fruits", "mania").
func Lookup(name string) (Ruleset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Osu, nil
	}
	for _, r := range all {
		if r.ShortName == name {
			return r, nil
		}
	}
	return Ruleset{}, fmt.Errorf("unknown ruleset %q", name)
}
