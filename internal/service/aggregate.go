package service

import (
	"cmp"
	"math"
	"slices"

	"pp-tracker/internal/constants"
	"pp-tracker/internal/domain"
)

// WeightedTotal sums values decayed by 0.95 per rank. The input must
// already be sorted in descending order.
func WeightedTotal(valuesDescending []float64) float64 {
	total := 0.0
	for i, v := range valuesDescending {
		total += v * math.Pow(constants.PPWeightDecay, float64(i))
	}
	return total
}

// ComputeBonus approximates the share of a live total not explained by the
// visible plays. It is a compatibility heuristic, not an exact
// reconstruction of the ranking formula.
func ComputeBonus(liveTotal, nonBonusLiveWeightedTotal float64) float64 {
	return liveTotal - nonBonusLiveWeightedTotal
}

// Aggregate weights a player's plays twice, once by recomputed pp and once
// by live pp, and carries the live bonus over to the local total.
func Aggregate(plays []domain.ScoredPlay, liveTotal float64) domain.WeightedAggregate {
	local := make([]float64, len(plays))
	live := make([]float64, len(plays))
	for i, p := range plays {
		local[i] = p.LocalPP
		live[i] = p.LivePP
	}
	descending := func(a, b float64) int { return cmp.Compare(b, a) }
	slices.SortStableFunc(local, descending)
	slices.SortStableFunc(live, descending)

	bonus := ComputeBonus(liveTotal, WeightedTotal(live))
	return domain.WeightedAggregate{
		TotalLocal: WeightedTotal(local) + bonus,
		TotalLive:  liveTotal,
		Bonus:      bonus,
	}
}
