// Package split builds train/validation splits by sampling validation
// records without replacement, with probability proportional to a per-label
// weight.
package split

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// DefaultRatio is the validation share used when none is configured.
const DefaultRatio = 0.2

var (
	// ErrMissingStatistic is returned when a label has no entry in the
	// submission statistics.
	ErrMissingStatistic = errors.New("missing label statistic")
	// ErrInsufficientWeight is returned when fewer records carry a positive
	// weight than the validation sample needs.
	ErrInsufficientWeight = errors.New("insufficient positive weight")
	// ErrInvalidRatio is returned for a ratio outside [0, 1).
	ErrInvalidRatio = errors.New("ratio must be in [0, 1)")
)

// Policy turns record labels into sampling weights.
type Policy interface {
	Name() string
	Weights(labels []int) ([]float64, error)
}

// SubmissionCounts weights a record by how often its label was predicted
// in prior submission files.
type SubmissionCounts struct {
	Counts map[int]int
}

func (SubmissionCounts) Name() string { return "submissions" }

func (p SubmissionCounts) Weights(labels []int) ([]float64, error) {
	w := make([]float64, len(labels))
	for i, l := range labels {
		c, ok := p.Counts[l]
		if !ok {
			return nil, errors.Wrapf(ErrMissingStatistic, "label %d (record %d)", l, i)
		}
		w[i] = float64(c)
	}
	return w, nil
}

// InverseFrequency weights a record by one over the number of records in the
// dataset sharing its label, which evens out the class balance of the
// validation set.
type InverseFrequency struct{}

func (InverseFrequency) Name() string { return "inverse" }

func (InverseFrequency) Weights(labels []int) ([]float64, error) {
	counts := make(map[int]int)
	for _, l := range labels {
		counts[l]++
	}
	w := make([]float64, len(labels))
	for i, l := range labels {
		w[i] = 1 / float64(counts[l])
	}
	return w, nil
}

// Uniform gives every record the same weight.
type Uniform struct{}

func (Uniform) Name() string { return "uniform" }

func (Uniform) Weights(labels []int) ([]float64, error) {
	w := make([]float64, len(labels))
	for i := range w {
		w[i] = 1
	}
	return w, nil
}

// SampleSize returns floor(n*ratio).
func SampleSize(n int, ratio float64) int {
	return int(math.Floor(float64(n) * ratio))
}

// Split draws floor(n*ratio) validation indices without replacement using
// the weights produced by policy. valid is in draw order; train holds the
// remaining indices in ascending order. A fixed seed gives identical splits.
func Split(labels []int, ratio float64, policy Policy, seed int64) (train, valid []int, err error) {
	if ratio < 0 || ratio >= 1 || math.IsNaN(ratio) {
		return nil, nil, errors.Wrapf(ErrInvalidRatio, "got %v", ratio)
	}
	weights, err := policy.Weights(labels)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s weights", policy.Name())
	}

	rng := rand.New(rand.NewSource(seed))
	valid, err = Sample(weights, SampleSize(len(labels), ratio), rng)
	if err != nil {
		return nil, nil, err
	}
	return Complement(len(labels), valid), valid, nil
}

// Sample draws k distinct indices with probability proportional to weights
// (Efraimidis-Spirakis). Each index with a positive weight gets the key
// log(u)/w for u uniform in (0, 1]; the k largest keys win and are returned
// in descending key order. Zero or negative weights are never drawn.
func Sample(weights []float64, k int, rng *rand.Rand) ([]int, error) {
	if k < 0 {
		return nil, errors.Errorf("negative sample size %d", k)
	}

	type keyed struct {
		idx int
		key float64
	}
	candidates := make([]keyed, 0, len(weights))
	for i, w := range weights {
		if !(w > 0) || math.IsInf(w, 0) {
			continue
		}
		u := 1 - rng.Float64()
		candidates = append(candidates, keyed{idx: i, key: math.Log(u) / w})
	}
	if len(candidates) < k {
		return nil, errors.Wrapf(ErrInsufficientWeight, "need %d records, %d have positive weight", k, len(candidates))
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].key > candidates[b].key
	})
	out := make([]int, k)
	for i := range out {
		out[i] = candidates[i].idx
	}
	return out, nil
}

// Complement returns the indices of [0, n) not in picked, ascending.
func Complement(n int, picked []int) []int {
	taken := make([]bool, n)
	for _, i := range picked {
		if i >= 0 && i < n {
			taken[i] = true
		}
	}
	out := make([]int, 0, max(n-len(picked), 0))
	for i := range n {
		if !taken[i] {
			out = append(out, i)
		}
	}
	return out
}

// Select returns xs[idx[0]], xs[idx[1]], ...
func Select[T any](xs []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}

// ParsePolicy maps a configured policy name to a Policy. The submissions
// policy needs counts and returns an empty SubmissionCounts to be filled.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "submissions":
		return SubmissionCounts{}, nil
	case "inverse":
		return InverseFrequency{}, nil
	case "uniform", "":
		return Uniform{}, nil
	default:
		return nil, errors.Errorf("unknown split policy %q", name)
	}
}
