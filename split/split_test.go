package split

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/relex/labels"
)

func syntheticLabels(n, classes int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i % classes
	}
	return out
}

func TestSplit_DeterministicDisjointCover(t *testing.T) {
	lbls := syntheticLabels(100, 4)
	counts := SubmissionCounts{Counts: map[int]int{0: 50, 1: 20, 2: 5, 3: 1}}

	for _, p := range []Policy{counts, InverseFrequency{}, Uniform{}} {
		t.Run(p.Name(), func(t *testing.T) {
			train, valid, err := Split(lbls, 0.2, p, 7)
			require.NoError(t, err)
			assert.Len(t, valid, 20)
			assert.Len(t, train, 80)

			train2, valid2, err := Split(lbls, 0.2, p, 7)
			require.NoError(t, err)
			assert.Equal(t, train, train2)
			assert.Equal(t, valid, valid2)

			all := append(append([]int{}, train...), valid...)
			sort.Ints(all)
			for i, v := range all {
				require.Equal(t, i, v, "indices must cover [0,n) exactly once")
			}
			assert.True(t, sort.IntsAreSorted(train))
		})
	}
}

func TestSplit_SampleSizeFloors(t *testing.T) {
	train, valid, err := Split(syntheticLabels(7, 2), 0.5, Uniform{}, 1)
	require.NoError(t, err)
	assert.Len(t, valid, 3)
	assert.Len(t, train, 4)

	train, valid, err = Split(syntheticLabels(7, 2), 0, Uniform{}, 1)
	require.NoError(t, err)
	assert.Empty(t, valid)
	assert.Len(t, train, 7)

	_, _, err = Split(syntheticLabels(7, 2), 1, Uniform{}, 1)
	assert.True(t, errors.Is(err, ErrInvalidRatio), "got %v", err)
}

func TestSplit_MissingStatistic(t *testing.T) {
	_, _, err := Split([]int{0, 1, 2}, 0.2, SubmissionCounts{Counts: map[int]int{0: 3, 1: 1}}, 1)
	assert.True(t, errors.Is(err, ErrMissingStatistic), "got %v", err)
}

func TestSample_ZeroWeightNeverDrawn(t *testing.T) {
	weights := []float64{0, 1, 0, 2, 0, 3}
	rng := rand.New(rand.NewSource(3))
	for range 50 {
		got, err := Sample(weights, 3, rng)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int{1, 3, 5}, got)
	}

	_, err := Sample(weights, 4, rng)
	assert.True(t, errors.Is(err, ErrInsufficientWeight), "got %v", err)
}

func TestSample_FavoursHeavyWeights(t *testing.T) {
	weights := []float64{1, 100}
	rng := rand.New(rand.NewSource(11))
	heavy := 0
	for range 1000 {
		got, err := Sample(weights, 1, rng)
		require.NoError(t, err)
		if got[0] == 1 {
			heavy++
		}
	}
	assert.Greater(t, heavy, 950)
}

func writeSubmission(t *testing.T, dir string, i int, preds []string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,pred_label,probs\n")
	for j, p := range preds {
		b.WriteString(strings.Join([]string{string(rune('a' + j)), p, `"[0.5, 0.5]"`}, ","))
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, SubmissionFileName(i)), []byte(b.String()), 0644))
}

func TestLoadSubmissionCounts(t *testing.T) {
	dict, err := labels.New([]string{"no_relation", "org:founded", "per:title"})
	require.NoError(t, err)

	dir := t.TempDir()
	for i := 1; i <= NumSubmissionFiles; i++ {
		writeSubmission(t, dir, i, []string{"no_relation", "org:founded", "no_relation"})
	}

	counts, err := LoadSubmissionCounts(dir, DefaultSubmissionFiles(), dict)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 20, 1: 10, 2: 0}, counts)

	// never predicted labels weigh zero and are never sampled
	lbls := []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}
	_, valid, err := Split(lbls, 0.5, SubmissionCounts{Counts: counts}, 5)
	require.NoError(t, err)
	for _, v := range valid {
		assert.NotEqual(t, 2, lbls[v])
	}
}

func TestLoadSubmissionCounts_Errors(t *testing.T) {
	dict, err := labels.New([]string{"no_relation"})
	require.NoError(t, err)

	dir := t.TempDir()
	writeSubmission(t, dir, 1, []string{"no_relation"})
	_, err = LoadSubmissionCounts(dir, DefaultSubmissionFiles(), dict)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	writeSubmission(t, dir, 2, []string{"per:title"})
	_, err = LoadSubmissionCounts(dir, []string{SubmissionFileName(1), SubmissionFileName(2)}, dict)
	assert.True(t, errors.Is(err, labels.ErrUnknownLabel), "got %v", err)
}

func TestSubmissionFileName(t *testing.T) {
	assert.Equal(t, "output (1).csv", SubmissionFileName(1))
	files := DefaultSubmissionFiles()
	require.Len(t, files, 10)
	assert.Equal(t, "output (10).csv", files[9])
}
