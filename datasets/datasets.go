package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package turns the relation extraction CSV tables into examples that
// a sentence-pair classifier can consume.
//
// Layout and intended usage:
//
// DataHelper
//   - Reads the raw table once (id, sentence, subject_entity, object_entity,
//     label) and never mutates it.
//   - Preprocess extracts the entity words from their stringified structure
//     and, in train mode, converts labels through a labels.Dictionary.
//   - Tokenize builds "subject[SEP]object" / sentence pairs, runs them
//     through a Tokenizer with truncation and derives one mask per entity.
//
// RelationDataset
//   - Fixed-size, indexable view over the tokenized examples.
//   - Batch pads a set of examples to a common length in flat int64 buffers,
//     which convert directly into gomlx tensors.
//   - Iterates sequentially for inference and in a seeded shuffled order for
//     training-mode batching.

// Dataset is the contract the batching layer relies on.
type Dataset interface {
	Len() int
	Example(i int) (Example, error)
	Batch(indices []int) (*Batch, error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}

// Example is one tokenized record. All per-token slices have the same length.
type Example struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	E1Mask        []int64
	E2Mask        []int64

	// Label is only meaningful when HasLabel is set (train mode).
	Label    int
	HasLabel bool
}

// Len returns the number of tokens in the example.
func (e Example) Len() int { return len(e.InputIDs) }

// Fields returns the example as a field-name -> value mapping, mirroring the
// column names the model expects.
func (e Example) Fields() map[string]any {
	m := map[string]any{
		"input_ids":      e.InputIDs,
		"attention_mask": e.AttentionMask,
		"token_type_ids": e.TokenTypeIDs,
		"e1_mask":        e.E1Mask,
		"e2_mask":        e.E2Mask,
	}
	if e.HasLabel {
		m["labels"] = e.Label
	}
	return m
}
