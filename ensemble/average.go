package ensemble

import (
	"github.com/pkg/errors"

	"github.com/Noofbiz/relex/infer"
)

// Average returns the element-wise mean of the fold probability matrices.
// Every fold must have the same number of records and every record the
// same number of classes.
func Average(folds [][][]float32) ([][]float32, error) {
	if len(folds) == 0 {
		return nil, errors.Wrap(ErrConfig, "no fold predictions to average")
	}
	n := len(folds[0])
	classes := -1
	for k, fold := range folds {
		if len(fold) != n {
			return nil, errors.Wrapf(ErrFoldMismatch, "fold %d has %d records, fold 0 has %d", k, len(fold), n)
		}
		for i, row := range fold {
			if classes < 0 {
				classes = len(row)
			}
			if len(row) != classes {
				return nil, errors.Wrapf(ErrFoldMismatch, "fold %d record %d has %d classes, expected %d", k, i, len(row), classes)
			}
		}
	}

	out := make([][]float32, n)
	inv := 1 / float64(len(folds))
	for i := range out {
		sum := make([]float64, classes)
		for _, fold := range folds {
			for c, v := range fold[i] {
				sum[c] += float64(v)
			}
		}
		row := make([]float32, classes)
		for c := range row {
			row[c] = float32(sum[c] * inv)
		}
		out[i] = row
	}
	return out, nil
}

// Argmax returns the arg-max of every row.
func Argmax(probs [][]float32) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		out[i] = infer.Argmax(p)
	}
	return out
}
