package split

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/Noofbiz/relex/labels"
)

// NumSubmissionFiles is how many prior submission files feed the statistic.
const NumSubmissionFiles = 10

// ErrNotFound is returned when a submission file is missing.
var ErrNotFound = errors.New("submission file not found")

// SubmissionFileName returns the name of the i-th (1-based) submission file.
func SubmissionFileName(i int) string {
	return fmt.Sprintf("output (%d).csv", i)
}

// DefaultSubmissionFiles lists output (1).csv through output (10).csv.
func DefaultSubmissionFiles() []string {
	files := make([]string, NumSubmissionFiles)
	for i := range files {
		files[i] = SubmissionFileName(i + 1)
	}
	return files
}

type submissionRow struct {
	PredLabel string `csv:"pred_label"`
}

// LoadSubmissionCounts totals the pred_label column over files in dir. Every
// dictionary label starts at zero, so labels never predicted get weight 0
// rather than a missing statistic.
func LoadSubmissionCounts(dir string, files []string, dict *labels.Dictionary) (map[int]int, error) {
	counts := make(map[int]int, dict.Len())
	for i := range dict.Len() {
		counts[i] = 0
	}

	for _, name := range files {
		path := filepath.Join(dir, name)
		rows, err := readSubmission(path)
		if err != nil {
			return nil, err
		}
		for j, r := range rows {
			idx, err := dict.Index(r.PredLabel)
			if err != nil {
				return nil, errors.Wrapf(err, "%s row %d", path, j+1)
			}
			counts[idx]++
		}
	}
	return counts, nil
}

func readSubmission(path string) ([]submissionRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	var rows []submissionRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	return rows, nil
}
