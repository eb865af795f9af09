// Package infer runs batched forward passes of a relation classifier over a
// dataset and turns logits into labels and probabilities.
package infer

import (
	"context"

	"github.com/Noofbiz/relex/datasets"
)

// Classifier produces one row of logits per batch row.
type Classifier interface {
	Logits(ctx context.Context, b *datasets.Batch) ([][]float32, error)
	Close() error
}

// Evaluator is implemented by classifiers that distinguish training and
// evaluation behaviour. Run calls Eval before the first batch.
type Evaluator interface {
	Eval()
}

// Loader opens the checkpoint stored in dir on the given device.
type Loader interface {
	Load(dir string, dev Device) (Classifier, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(dir string, dev Device) (Classifier, error)

func (f LoaderFunc) Load(dir string, dev Device) (Classifier, error) {
	return f(dir, dev)
}
