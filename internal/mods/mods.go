// Package mods converts between the legacy mods bitmask and structured mod lists.
package mods

import (
	"strconv"
	"strings"
)

// Mod is a closed enumeration of gameplay modifiers across all rulesets.
type Mod uint8

const (
	Invalid Mod = iota
	NoFail
	Easy
	TouchDevice
	Hidden
	HardRock
	SuddenDeath
	DoubleTime
	Relax
	HalfTime
	Nightcore
	Flashlight
	Autoplay
	SpunOut
	Autopilot
	Perfect
	Key4
	Key5
	Key6
	Key7
	Key8
	FadeIn
	Random
	Cinema
	Target
	Key9
	KeyCoop
	Key1
	Key3
	Key2
	ScoreV2
	Mirror

	// no legacy bit
	DifficultyAdjust
	Classic
	Traceable
	Muted
	WindUp
	WindDown
	Daycore
	Blinds
	StrictTracking
	Deflate
	Grow
)

// Mask is the legacy fixed-width mods bitset.
type Mask uint64

type modInfo struct {
	acronym string
	bits    Mask
}

var table = map[Mod]modInfo{
	NoFail:           {"NF", 1 << 0},
	Easy:             {"EZ", 1 << 1},
	TouchDevice:      {"TD", 1 << 2},
	Hidden:           {"HD", 1 << 3},
	HardRock:         {"HR", 1 << 4},
	SuddenDeath:      {"SD", 1 << 5},
	DoubleTime:       {"DT", 1 << 6},
	Relax:            {"RX", 1 << 7},
	HalfTime:         {"HT", 1 << 8},
	Nightcore:        {"NC", 1<<9 | 1<<6},
	Flashlight:       {"FL", 1 << 10},
	Autoplay:         {"AT", 1 << 11},
	SpunOut:          {"SO", 1 << 12},
	Autopilot:        {"AP", 1 << 13},
	Perfect:          {"PF", 1<<14 | 1<<5},
	Key4:             {"4K", 1 << 15},
	Key5:             {"5K", 1 << 16},
	Key6:             {"6K", 1 << 17},
	Key7:             {"7K", 1 << 18},
	Key8:             {"8K", 1 << 19},
	FadeIn:           {"FI", 1 << 20},
	Random:           {"RD", 1 << 21},
	Cinema:           {"CN", 1 << 22},
	Target:           {"TP", 1 << 23},
	Key9:             {"9K", 1 << 24},
	KeyCoop:          {"CO", 1 << 25},
	Key1:             {"1K", 1 << 26},
	Key3:             {"3K", 1 << 27},
	Key2:             {"2K", 1 << 28},
	ScoreV2:          {"V2", 1 << 29},
	Mirror:           {"MR", 1 << 30},
	DifficultyAdjust: {"DA", 0},
	Classic:          {"CL", 0},
	Traceable:        {"TC", 0},
	Muted:            {"MU", 0},
	WindUp:           {"WU", 0},
	WindDown:         {"WD", 0},
	Daycore:          {"DC", 0},
	Blinds:           {"BL", 0},
	StrictTracking:   {"ST", 0},
	Deflate:          {"DF", 0},
	Grow:             {"GR", 0},
}

// ownBit is the single bit that identifies a mod when decoding; for NC and
// PF this is the high bit, the lower one belongs to DT and SD.
var ownBit = map[Mod]Mask{
	Nightcore: 1 << 9,
	Perfect:   1 << 14,
}

// legacyOrder fixes the decode output order.
var legacyOrder = []Mod{
	Nightcore, DoubleTime, Autopilot, Autoplay, Easy, Flashlight, HalfTime,
	HardRock, Hidden, NoFail, Perfect, Relax, SpunOut, SuddenDeath, Target,
	TouchDevice, FadeIn, Random, Cinema, Mirror, ScoreV2, KeyCoop,
	Key1, Key2, Key3, Key4, Key5, Key6, Key7, Key8, Key9,
}

// precedence lists mods that suppress another mod when both decode from the
// same mask. The legacy converter keeps SD alongside PF; here it is dropped
// because Encode(PF) always carries the SD bit.
var precedence = map[Mod]Mod{
	DoubleTime:  Nightcore,
	SuddenDeath: Perfect,
}

var byAcronym = func() map[string]Mod {
	m := make(map[string]Mod, len(table))
	for mod, info := range table {
		m[info.acronym] = mod
	}
	return m
}()

// Acronym returns the two-letter acronym, or "??" for Invalid.
func (m Mod) Acronym() string {
	if info, ok := table[m]; ok {
		return info.acronym
	}
	return "??"
}

func (m Mod) String() string { return m.Acronym() }

// Legacy reports whether m has a representation in the legacy bitmask.
func (m Mod) Legacy() bool {
	return table[m].bits != 0
}

// Parse resolves an acronym case-insensitively.
func Parse(acronym string) (Mod, bool) {
	m, ok := byAcronym[strings.ToUpper(strings.TrimSpace(acronym))]
	return m, ok
}

// ParseMask accepts either a numeric legacy mask ("72") or concatenated
// acronyms ("HDDT", "HD,DT", "+HDNC"). "NM" and "" mean no mods.
func ParseMask(s string) (Mask, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Mask(n), true
	}

	s = strings.NewReplacer(",", "", "+", "", " ", "").Replace(strings.ToUpper(s))
	if s == "" || s == "NM" {
		return 0, true
	}
	if len(s)%2 != 0 {
		return 0, false
	}
	list := make([]Mod, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		m, ok := Parse(s[i : i+2])
		if !ok {
			return 0, false
		}
		list = append(list, m)
	}
	return Encode(list), true
}

// Encode maps each mod to its legacy bits. Mods without a legacy bit are
// dropped, so Encode is lossy.
func Encode(list []Mod) Mask {
	var mask Mask
	for _, m := range list {
		mask |= table[m].bits
	}
	return mask
}

// Decode expands a mask into mods in legacyOrder, applying the precedence
// table so that e.g. NC and DT never both appear.
func Decode(mask Mask) []Mod {
	present := make(map[Mod]bool)
	for _, m := range legacyOrder {
		if mask&identifyingBit(m) != 0 {
			present[m] = true
		}
	}

	out := make([]Mod, 0, len(present))
	for _, m := range legacyOrder {
		if !present[m] {
			continue
		}
		if winner, ok := precedence[m]; ok && present[winner] {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Has reports whether every bit of m is set.
func (mask Mask) Has(m Mod) bool {
	bits := table[m].bits
	return bits != 0 && mask&bits == bits
}

// String renders the decoded acronyms, "NM" for no mods.
func (mask Mask) String() string {
	list := Decode(mask)
	if len(list) == 0 {
		return "NM"
	}
	var sb strings.Builder
	for _, m := range list {
		sb.WriteString(m.Acronym())
	}
	return sb.String()
}

func identifyingBit(m Mod) Mask {
	if bit, ok := ownBit[m]; ok {
		return bit
	}
	return table[m].bits
}
