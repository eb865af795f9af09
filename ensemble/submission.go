package ensemble

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/Noofbiz/relex/labels"
)

// Probs is a probability vector rendered in CSV as "[p0, p1, ...]".
type Probs []float32

// MarshalCSV implements gocsv.TypeMarshaller.
func (p Probs) MarshalCSV() (string, error) {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (p *Probs) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return errors.Errorf("probability vector %q is not bracketed", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		*p = Probs{}
		return nil
	}
	fields := strings.Split(body, ",")
	out := make(Probs, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return errors.Wrapf(err, "probability %d", i)
		}
		out[i] = float32(v)
	}
	*p = out
	return nil
}

// Row is one line of a submission file.
type Row struct {
	ID        string `csv:"id"`
	PredLabel string `csv:"pred_label"`
	Probs     Probs  `csv:"probs"`
}

// BuildRows pairs record ids with the arg-max label and the probabilities.
func BuildRows(ids []string, probs [][]float32, dict *labels.Dictionary) ([]Row, error) {
	if len(ids) != len(probs) {
		return nil, errors.Errorf("%d ids for %d predictions", len(ids), len(probs))
	}
	preds := Argmax(probs)
	names, err := dict.Labels(preds)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(ids))
	for i := range rows {
		rows[i] = Row{ID: ids[i], PredLabel: names[i], Probs: Probs(probs[i])}
	}
	return rows, nil
}

// WriteCSV writes rows as a submission CSV.
func WriteCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}

// ReadCSV reads a submission CSV written by WriteCSV.
func ReadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	var rows []Row
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	return rows, nil
}

// ParquetRow is the parquet schema of a submission.
type ParquetRow struct {
	ID        string    `parquet:"id"`
	PredLabel string    `parquet:"pred_label"`
	Probs     []float32 `parquet:"probs"`
}

// WriteParquet writes rows as a parquet file.
func WriteParquet(path string, rows []Row) error {
	out := make([]ParquetRow, len(rows))
	for i, r := range rows {
		out[i] = ParquetRow{ID: r.ID, PredLabel: r.PredLabel, Probs: []float32(r.Probs)}
	}
	if err := parquet.WriteFile(path, out); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// Sink writes submissions into a directory, as CSV and optionally parquet.
type Sink struct {
	Dir     string
	Parquet bool
}

// Write stores rows under name (a .csv file name) and returns the paths
// written.
func (s Sink) Write(name string, rows []Row) ([]string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", s.Dir)
	}
	path := filepath.Join(s.Dir, name)
	if err := WriteCSV(path, rows); err != nil {
		return nil, err
	}
	files := []string{path}
	if s.Parquet {
		pq := strings.TrimSuffix(path, filepath.Ext(path)) + ".parquet"
		if err := WriteParquet(pq, rows); err != nil {
			return nil, err
		}
		files = append(files, pq)
	}
	return files, nil
}
