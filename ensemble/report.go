package ensemble

import (
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ManifestFile and ChartFile are written next to the submissions.
const (
	ManifestFile = "manifest.json"
	ChartFile    = "label_distribution.png"
)

// Summary describes a set of predictions.
type Summary struct {
	Records int `json:"records"`

	// Top-class probability statistics.
	MeanTopProb   float64 `json:"mean_top_prob"`
	MedianTopProb float64 `json:"median_top_prob"`
	P10TopProb    float64 `json:"p10_top_prob"`

	// FoldAgreement is the share of records where every fold predicted the
	// final label. It is 1 for a single checkpoint.
	FoldAgreement float64 `json:"fold_agreement"`

	LabelCounts map[string]int `json:"label_counts"`
}

// Summarize computes statistics for rows. foldPreds holds the per-fold class
// indices and final the class indices of rows; either may be nil.
func Summarize(rows []Row, foldPreds [][]int, final []int) (Summary, error) {
	s := Summary{Records: len(rows), LabelCounts: map[string]int{}, FoldAgreement: 1}
	if len(rows) == 0 {
		return s, nil
	}

	top := make(stats.Float64Data, len(rows))
	for i, r := range rows {
		s.LabelCounts[r.PredLabel]++
		for _, p := range r.Probs {
			top[i] = max(top[i], float64(p))
		}
	}

	var err error
	if s.MeanTopProb, err = stats.Mean(top); err != nil {
		return s, errors.Wrap(err, "mean top probability")
	}
	if s.MedianTopProb, err = stats.Median(top); err != nil {
		return s, errors.Wrap(err, "median top probability")
	}
	if s.P10TopProb, err = stats.PercentileNearestRank(top, 10); err != nil {
		return s, errors.Wrap(err, "10th percentile top probability")
	}

	if len(foldPreds) > 0 && len(final) == len(rows) {
		agree := make(stats.Float64Data, len(final))
		for i, want := range final {
			agree[i] = 1
			for _, fold := range foldPreds {
				if i >= len(fold) || fold[i] != want {
					agree[i] = 0
					break
				}
			}
		}
		if s.FoldAgreement, err = stats.Mean(agree); err != nil {
			return s, errors.Wrap(err, "fold agreement")
		}
	}
	return s, nil
}

// Manifest records what a run produced.
type Manifest struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Mode      Mode      `json:"mode"`
	Folds     []string  `json:"folds"`
	Device    string    `json:"device"`
	Files     []string  `json:"files"`
	Summary   Summary   `json:"summary"`
}

// WriteManifest writes m as indented JSON to dir/manifest.json.
func WriteManifest(dir string, m Manifest) (string, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode manifest")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	return path, nil
}

// PlotLabelDistribution writes a bar chart of predicted label counts. Bars
// follow order; labels never predicted are drawn as empty bars.
func PlotLabelDistribution(path string, counts map[string]int, order []string) error {
	p := plot.New()
	p.Title.Text = "Predicted label distribution"
	p.Y.Label.Text = "records"

	values := make(plotter.Values, len(order))
	for i, l := range order {
		values[i] = float64(counts[l])
	}
	bars, err := plotter.NewBarChart(values, vg.Points(8))
	if err != nil {
		return err
	}
	bars.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.Add(plotter.NewGrid())
	p.NominalX(order...)
	p.X.Tick.Label.Rotation = 1.2
	p.X.Tick.Label.XAlign = -1.0

	width := max(8*vg.Inch, vg.Length(len(order))*12)
	if err := p.Save(width, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	return nil
}
