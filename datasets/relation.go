package datasets

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// RelationDataset is a fixed-size, indexable view over tokenized examples.
// The examples themselves are never modified; Shuffle only permutes the
// iteration order used by Yield.
type RelationDataset struct {
	// BatchSize is the number of examples returned per Yield call.
	BatchSize int
	// PadID fills input_ids past the end of shorter examples.
	PadID int64

	examples []Example
	order    []int
	cursor   int
	rand     *rand.Rand
}

var _ Dataset = (*RelationDataset)(nil)

// NewRelationDataset wraps examples. Every example must be internally
// consistent (all per-token slices of equal length).
func NewRelationDataset(examples []Example, batchSize int) (*RelationDataset, error) {
	for i, ex := range examples {
		n := ex.Len()
		if len(ex.AttentionMask) != n || len(ex.TokenTypeIDs) != n || len(ex.E1Mask) != n || len(ex.E2Mask) != n {
			return nil, fmt.Errorf("example %d has ragged fields", i)
		}
	}
	if batchSize < 1 {
		batchSize = 1
	}
	d := &RelationDataset{
		BatchSize: batchSize,
		examples:  examples,
		rand:      rand.New(rand.NewSource(0)),
	}
	d.order = sequentialOrder(len(examples))
	return d, nil
}

func sequentialOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// Len returns the number of examples.
func (d *RelationDataset) Len() int {
	return len(d.examples)
}

// Example returns the example at idx in original order.
func (d *RelationDataset) Example(idx int) (Example, error) {
	if idx < 0 || idx >= len(d.examples) {
		return Example{}, fmt.Errorf("index %d out of range [0, %d)", idx, len(d.examples))
	}
	return d.examples[idx], nil
}

// Get returns the example at idx as named fields.
func (d *RelationDataset) Get(idx int) (map[string]any, error) {
	ex, err := d.Example(idx)
	if err != nil {
		return nil, err
	}
	return ex.Fields(), nil
}

// HasLabels reports whether every example carries a label.
func (d *RelationDataset) HasLabels() bool {
	if len(d.examples) == 0 {
		return false
	}
	for _, ex := range d.examples {
		if !ex.HasLabel {
			return false
		}
	}
	return true
}

// Batch gathers the examples at indices into a padded batch.
func (d *RelationDataset) Batch(indices []int) (*Batch, error) {
	batch := make([]Example, len(indices))
	for i, idx := range indices {
		ex, err := d.Example(idx)
		if err != nil {
			return nil, err
		}
		batch[i] = ex
	}
	return MakeBatch(batch, d.PadID)
}

// Shuffle permutes the iteration order with a deterministic seed and
// restarts iteration.
func (d *RelationDataset) Shuffle(seed int64) {
	d.rand.Seed(seed)
	d.order = sequentialOrder(len(d.examples))
	d.rand.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
	d.cursor = 0
}

// Sequential restores the original order and restarts iteration.
func (d *RelationDataset) Sequential() {
	d.order = sequentialOrder(len(d.examples))
	d.cursor = 0
}

// Order returns a copy of the current iteration order.
func (d *RelationDataset) Order() []int {
	out := make([]int, len(d.order))
	copy(out, d.order)
	return out
}

// Name returns the name of the dataset
func (d *RelationDataset) Name() string {
	return "RelationDataset"
}

// Yield returns the next batch of data for the gomlx Dataset interface.
// Inputs are input_ids, attention_mask, token_type_ids, e1_mask and e2_mask;
// labels are returned only when the examples carry them. io.EOF marks the
// end of the epoch.
func (d *RelationDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.cursor >= len(d.order) {
		return nil, nil, nil, io.EOF
	}
	end := min(d.cursor+d.BatchSize, len(d.order))
	b, err := d.Batch(d.order[d.cursor:end])
	if err != nil {
		return nil, nil, nil, err
	}
	d.cursor = end

	inputs, lab := b.ToGomlxTensors()
	if lab != nil {
		labels = []*tensors.Tensor{lab}
	}
	return d, inputs, labels, nil
}

// Reset restarts iteration for a new epoch without changing the order.
func (d *RelationDataset) Reset() {
	d.cursor = 0
}

// Batch stores a padded batch in flat row-major buffers of shape
// [Size, SeqLen]. Labels has one entry per row and is nil when the examples
// are unlabeled.
type Batch struct {
	Size   int
	SeqLen int

	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	E1Mask        []int64
	E2Mask        []int64
	Labels        []int64
}

// MakeBatch pads examples to the longest one. Padding positions get padID in
// input_ids and zero everywhere else.
func MakeBatch(examples []Example, padID int64) (*Batch, error) {
	b := &Batch{Size: len(examples)}
	if len(examples) == 0 {
		return b, nil
	}

	labeled := examples[0].HasLabel
	for i, ex := range examples {
		if ex.HasLabel != labeled {
			return nil, fmt.Errorf("example %d: mixed labeled and unlabeled examples", i)
		}
		b.SeqLen = max(b.SeqLen, ex.Len())
	}

	size := b.Size * b.SeqLen
	b.InputIDs = make([]int64, size)
	b.AttentionMask = make([]int64, size)
	b.TokenTypeIDs = make([]int64, size)
	b.E1Mask = make([]int64, size)
	b.E2Mask = make([]int64, size)
	if labeled {
		b.Labels = make([]int64, b.Size)
	}

	for i, ex := range examples {
		row := i * b.SeqLen
		copy(b.InputIDs[row:], ex.InputIDs)
		for j := ex.Len(); j < b.SeqLen; j++ {
			b.InputIDs[row+j] = padID
		}
		copy(b.AttentionMask[row:], ex.AttentionMask)
		copy(b.TokenTypeIDs[row:], ex.TokenTypeIDs)
		copy(b.E1Mask[row:], ex.E1Mask)
		copy(b.E2Mask[row:], ex.E2Mask)
		if labeled {
			b.Labels[i] = int64(ex.Label)
		}
	}
	return b, nil
}

// Row returns the i-th row of a flat [Size, SeqLen] buffer.
func (b *Batch) Row(buf []int64, i int) []int64 {
	return buf[i*b.SeqLen : (i+1)*b.SeqLen]
}

// Shape returns the dimensions of every per-token buffer.
func (b *Batch) Shape() []int64 {
	return []int64{int64(b.Size), int64(b.SeqLen)}
}

// ToGomlxTensors converts the batch to gomlx tensors: the five per-token
// inputs as [Size, SeqLen] and the labels as [Size] (nil when unlabeled).
func (b *Batch) ToGomlxTensors() (inputs []*tensors.Tensor, labels *tensors.Tensor) {
	for _, buf := range [][]int64{b.InputIDs, b.AttentionMask, b.TokenTypeIDs, b.E1Mask, b.E2Mask} {
		inputs = append(inputs, tensors.FromAnyValue(b.rows(buf)))
	}
	if b.Labels != nil {
		labels = tensors.FromAnyValue(b.Labels)
	}
	return inputs, labels
}

func (b *Batch) rows(buf []int64) [][]int64 {
	rows := make([][]int64, b.Size)
	for i := range b.Size {
		rows[i] = b.Row(buf, i)
	}
	return rows
}
