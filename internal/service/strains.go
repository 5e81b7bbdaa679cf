package service

import (
	"maps"
	"slices"
	"sync"
)

// StrainRecorder collects strain samples per skill, indexed by hit object.
type StrainRecorder struct {
	mu      sync.Mutex
	samples map[string][]float64
}

func NewStrainRecorder() *StrainRecorder {
	return &StrainRecorder{samples: make(map[string][]float64)}
}

func (r *StrainRecorder) RecordSample(skill string, index int, value float64) {
	if index < 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.samples[skill]
	if index >= len(s) {
		s = append(s, make([]float64, index+1-len(s))...)
	}
	s[index] = value
	r.samples[skill] = s
}

// Samples returns a copy of the samples recorded for skill.
func (r *StrainRecorder) Samples(skill string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.samples[skill])
}

func (r *StrainRecorder) Skills() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.samples))
}

func (r *StrainRecorder) All() map[string][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]float64, len(r.samples))
	for skill, s := range r.samples {
		out[skill] = slices.Clone(s)
	}
	return out
}
