package ensemble

import (
	"github.com/pkg/errors"

	"github.com/Noofbiz/relex/labels"
)

// Merge averages submission files that were written earlier, without
// running any model. All files must list the same ids in the same order.
func Merge(paths []string) (ids []string, probs [][]float32, err error) {
	if len(paths) == 0 {
		return nil, nil, errors.Wrap(ErrConfig, "no submission files to merge")
	}

	folds := make([][][]float32, len(paths))
	for k, path := range paths {
		rows, err := ReadCSV(path)
		if err != nil {
			return nil, nil, err
		}
		if k == 0 {
			ids = make([]string, len(rows))
			for i, r := range rows {
				ids[i] = r.ID
			}
		} else {
			if len(rows) != len(ids) {
				return nil, nil, errors.Wrapf(ErrFoldMismatch, "%s has %d rows, %s has %d", path, len(rows), paths[0], len(ids))
			}
			for i, r := range rows {
				if r.ID != ids[i] {
					return nil, nil, errors.Wrapf(ErrFoldMismatch, "%s row %d has id %q, expected %q", path, i+1, r.ID, ids[i])
				}
			}
		}
		fold := make([][]float32, len(rows))
		for i, r := range rows {
			fold[i] = []float32(r.Probs)
		}
		folds[k] = fold
	}

	probs, err = Average(folds)
	if err != nil {
		return nil, nil, err
	}
	return ids, probs, nil
}

// MergeRows merges paths and labels the averaged predictions with dict.
func MergeRows(paths []string, dict *labels.Dictionary) ([]Row, error) {
	ids, probs, err := Merge(paths)
	if err != nil {
		return nil, err
	}
	return BuildRows(ids, probs, dict)
}
