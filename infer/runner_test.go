package infer

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/relex/datasets"
)

// sumClassifier scores each row from its unpadded tokens only, so results
// must not depend on how records are grouped into batches.
type sumClassifier struct {
	evaluated bool
	calls     int
	closed    bool
}

func (c *sumClassifier) Eval() { c.evaluated = true }

func (c *sumClassifier) Logits(_ context.Context, b *datasets.Batch) ([][]float32, error) {
	c.calls++
	out := make([][]float32, b.Size)
	for i := range b.Size {
		ids, mask := b.Row(b.InputIDs, i), b.Row(b.AttentionMask, i)
		var total, length float32
		for j := range ids {
			if mask[j] == 1 {
				total += float32(ids[j] % 7)
				length++
			}
		}
		out[i] = []float32{total / 10, length / 3, 1}
	}
	return out, nil
}

func (c *sumClassifier) Close() error {
	c.closed = true
	return nil
}

func fixtureDataset(t *testing.T, n int) *datasets.RelationDataset {
	t.Helper()
	examples := make([]datasets.Example, n)
	for i := range examples {
		l := 3 + i%5
		ex := datasets.Example{
			InputIDs:      make([]int64, l),
			AttentionMask: make([]int64, l),
			TokenTypeIDs:  make([]int64, l),
			E1Mask:        make([]int64, l),
			E2Mask:        make([]int64, l),
		}
		for j := range l {
			ex.InputIDs[j] = int64(i*13 + j*5)
			ex.AttentionMask[j] = 1
		}
		examples[i] = ex
	}
	ds, err := datasets.NewRelationDataset(examples, 1)
	require.NoError(t, err)
	return ds
}

func TestRun_BatchSizeInvariant(t *testing.T) {
	ds := fixtureDataset(t, 10)

	m1 := &sumClassifier{}
	preds1, probs1, err := Run(context.Background(), m1, ds, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, m1.calls)
	assert.True(t, m1.evaluated)

	m64 := &sumClassifier{}
	preds64, probs64, err := Run(context.Background(), m64, ds, 64)
	require.NoError(t, err)
	assert.Equal(t, 1, m64.calls)

	m3 := &sumClassifier{}
	preds3, probs3, err := Run(context.Background(), m3, ds, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, m3.calls)

	require.Len(t, preds1, 10)
	assert.Equal(t, preds1, preds64)
	assert.Equal(t, preds1, preds3)
	for i := range probs1 {
		assert.InDeltaSlice(t, probs1[i], probs64[i], 1e-6)
		assert.InDeltaSlice(t, probs1[i], probs3[i], 1e-6)
	}
}

func TestRun_ShuffleDoesNotReorderOutput(t *testing.T) {
	ds := fixtureDataset(t, 10)
	want, _, err := Run(context.Background(), &sumClassifier{}, ds, 4)
	require.NoError(t, err)

	ds.Shuffle(99)
	got, _, err := Run(context.Background(), &sumClassifier{}, ds, 4)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRun_Errors(t *testing.T) {
	ds := fixtureDataset(t, 3)

	_, _, err := Run(context.Background(), &sumClassifier{}, ds, 0)
	assert.True(t, errors.Is(err, ErrBadBatchSize), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Run(ctx, &sumClassifier{}, ds, 1)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestRun_Empty(t *testing.T) {
	ds, err := datasets.NewRelationDataset(nil, 1)
	require.NoError(t, err)
	preds, probs, err := Run(context.Background(), &sumClassifier{}, ds, 8)
	require.NoError(t, err)
	assert.Empty(t, preds)
	assert.Empty(t, probs)
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float32{1000, 1000})
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, p, 1e-6)

	p = Softmax([]float32{0, 1, 2})
	var sum float32
	for _, v := range p {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-5)
	assert.Equal(t, 2, Argmax(p))
	assert.Equal(t, -1, Argmax(nil))
	assert.Equal(t, 0, Argmax([]float32{0.5, 0.5}))
}

func TestAutoSelector(t *testing.T) {
	var reason error
	s := AutoSelector{
		Probe:      func(Device) error { return errors.New("no driver") },
		OnFallback: func(err error) { reason = err },
	}
	assert.Equal(t, Device{Kind: CPU}, s.Select())
	assert.Error(t, reason)

	s = AutoSelector{Probe: func(Device) error { return nil }}
	assert.Equal(t, Device{Kind: CUDA}, s.Select())

	sel, err := NewSelector("cuda:1", nil)
	require.NoError(t, err)
	assert.Equal(t, "cuda:1", sel.Select().String())

	_, err = ParseDevice("tpu")
	assert.Error(t, err)
}
