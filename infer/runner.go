package infer

import (
	"context"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
	"go.uber.org/zap"

	"github.com/Noofbiz/relex/datasets"
)

// ErrBadBatchSize is returned for a batch size below one.
var ErrBadBatchSize = errors.New("batch size must be at least 1")

type options struct {
	progress string
	logger   *zap.Logger
}

// Option configures Run.
type Option func(*options)

// WithProgress shows a terminal progress bar labelled desc.
func WithProgress(desc string) Option {
	return func(o *options) { o.progress = desc }
}

// WithLogger sets the logger used for run summaries.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run performs inference over ds in sequential order. Batch i covers records
// [i*batchSize, min((i+1)*batchSize, n)); the returned slices are aligned
// with the dataset order regardless of batch size. probs holds the softmax of
// each logits row and preds its arg-max.
func Run(ctx context.Context, model Classifier, ds datasets.Dataset, batchSize int, opts ...Option) (preds []int, probs [][]float32, err error) {
	if batchSize < 1 {
		return nil, nil, errors.Wrapf(ErrBadBatchSize, "got %d", batchSize)
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	if ev, ok := model.(Evaluator); ok {
		ev.Eval()
	}

	n := ds.Len()
	nBatches := (n + batchSize - 1) / batchSize
	preds = make([]int, 0, n)
	probs = make([][]float32, 0, n)
	numClasses := -1

	step := func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := i * batchSize
		end := min(start+batchSize, n)
		indices := make([]int, end-start)
		for j := range indices {
			indices[j] = start + j
		}

		b, err := ds.Batch(indices)
		if err != nil {
			return errors.Wrapf(err, "batch %d", i)
		}
		logits, err := model.Logits(ctx, b)
		if err != nil {
			return errors.Wrapf(err, "forward batch %d", i)
		}
		if len(logits) != len(indices) {
			return errors.Errorf("batch %d: model returned %d rows for %d records", i, len(logits), len(indices))
		}
		for _, row := range logits {
			if numClasses < 0 {
				numClasses = len(row)
			}
			if len(row) != numClasses || numClasses == 0 {
				return errors.Errorf("batch %d: logits width %d, expected %d", i, len(row), numClasses)
			}
			p := Softmax(row)
			probs = append(probs, p)
			preds = append(preds, Argmax(p))
		}
		return nil
	}

	if o.progress != "" && nBatches > 0 {
		var stepErr error
		err = tqdm.With(iterators.Interval(0, nBatches), o.progress, func(c interface{}) (brk bool) {
			if stepErr = step(c.(int)); stepErr != nil {
				return true
			}
			return false
		})
		if stepErr != nil {
			err = stepErr
		}
	} else {
		for i := range nBatches {
			if err = step(i); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, nil, err
	}

	o.logger.Debug("inference finished",
		zap.String("records", humanize.Comma(int64(n))),
		zap.Int("batches", nBatches),
		zap.Int("batch_size", batchSize))
	return preds, probs, nil
}

// Softmax returns the normalised exponentials of logits. The maximum is
// subtracted first so large logits do not overflow.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	mx := logits[0]
	for _, v := range logits[1:] {
		mx = max(mx, v)
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - mx))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// Argmax returns the index of the largest value, the first one on ties.
// It returns -1 for an empty slice.
func Argmax(xs []float32) int {
	best := -1
	for i, v := range xs {
		if best < 0 || v > xs[best] {
			best = i
		}
	}
	return best
}
