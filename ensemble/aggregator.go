package ensemble

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Noofbiz/relex/datasets"
	"github.com/Noofbiz/relex/infer"
	"github.com/Noofbiz/relex/labels"
)

// Aggregator runs a Plan against a dataset.
type Aggregator struct {
	Loader    infer.Loader
	Devices   infer.DeviceSelector
	Dict      *labels.Dictionary
	BatchSize int
	Sink      Sink

	// Progress shows a progress bar per fold.
	Progress bool
	// Chart writes label_distribution.png for the final predictions.
	Chart bool

	Logger *zap.Logger
}

// FoldResult holds one checkpoint's predictions.
type FoldResult struct {
	Name  string
	Preds []int
	Probs [][]float32
	Files []string
}

// Result is the outcome of a run.
type Result struct {
	RunID    string
	Device   infer.Device
	Folds    []FoldResult
	Final    []Row
	Files    []string
	Summary  Summary
	Manifest string
}

// Run loads each checkpoint of plan in turn, writes its submission and, in
// KFold mode, writes the averaged submission. ids must align with ds. Each
// model is closed before the next one loads. Any failure aborts the run.
func (a *Aggregator) Run(ctx context.Context, plan Plan, ds datasets.Dataset, ids []string) (*Result, error) {
	log := a.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if a.Loader == nil || a.Dict == nil {
		return nil, errors.Wrap(ErrConfig, "aggregator needs a loader and a label dictionary")
	}
	if err := plan.Check(); err != nil {
		return nil, err
	}
	if len(ids) != ds.Len() {
		return nil, errors.Errorf("%d ids for %d dataset records", len(ids), ds.Len())
	}

	dev := infer.Device{Kind: infer.CPU}
	if a.Devices != nil {
		dev = a.Devices.Select()
	}
	res := &Result{RunID: uuid.NewString(), Device: dev}
	log = log.With(zap.String("run_id", res.RunID))
	log.Info("starting inference",
		zap.String("mode", string(plan.Mode)),
		zap.Int("checkpoints", len(plan.Folds())),
		zap.String("records", humanize.Comma(int64(ds.Len()))),
		zap.Stringer("device", dev))

	var foldProbs [][][]float32
	var foldPreds [][]int
	var final []int
	for _, fold := range plan.Folds() {
		fr, err := a.runFold(ctx, fold, dev, ds, ids, log)
		if err != nil {
			return nil, errors.Wrapf(err, "fold %s", fold.Name)
		}
		res.Folds = append(res.Folds, *fr)
		res.Files = append(res.Files, fr.Files...)
		foldProbs = append(foldProbs, fr.Probs)
		foldPreds = append(foldPreds, fr.Preds)
		final = fr.Preds
	}

	finalProbs := foldProbs[len(foldProbs)-1]
	if plan.Mode == KFold {
		avg, err := Average(foldProbs)
		if err != nil {
			return nil, err
		}
		finalProbs = avg
		final = Argmax(avg)
	}
	rows, err := BuildRows(ids, finalProbs, a.Dict)
	if err != nil {
		return nil, err
	}
	res.Final = rows

	if plan.Mode == KFold {
		files, err := a.Sink.Write(EnsembleFile(len(foldProbs)), rows)
		if err != nil {
			return nil, err
		}
		res.Files = append(res.Files, files...)
		log.Info("wrote ensemble submission", zap.Strings("files", files))
	}

	res.Summary, err = Summarize(rows, foldPreds, final)
	if err != nil {
		return nil, err
	}

	if a.Chart && a.Dict.Len() > 0 {
		chart := filepath.Join(a.Sink.Dir, ChartFile)
		if err := PlotLabelDistribution(chart, res.Summary.LabelCounts, a.Dict.All()); err != nil {
			return nil, err
		}
		res.Files = append(res.Files, chart)
	}

	foldNames := make([]string, len(res.Folds))
	for i, f := range res.Folds {
		foldNames[i] = f.Name
	}
	res.Manifest, err = WriteManifest(a.Sink.Dir, Manifest{
		RunID:     res.RunID,
		CreatedAt: time.Now().UTC(),
		Mode:      plan.Mode,
		Folds:     foldNames,
		Device:    dev.String(),
		Files:     res.Files,
		Summary:   res.Summary,
	})
	if err != nil {
		return nil, err
	}

	log.Info("inference finished",
		zap.Float64("mean_top_prob", res.Summary.MeanTopProb),
		zap.Float64("fold_agreement", res.Summary.FoldAgreement),
		zap.String("manifest", res.Manifest))
	return res, nil
}

func (a *Aggregator) runFold(ctx context.Context, fold Fold, dev infer.Device, ds datasets.Dataset, ids []string, log *zap.Logger) (*FoldResult, error) {
	start := time.Now()
	model, err := a.Loader.Load(fold.Dir, dev)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", fold.Dir)
	}

	opts := []infer.Option{infer.WithLogger(log)}
	if a.Progress {
		opts = append(opts, infer.WithProgress(fold.Name))
	}
	preds, probs, err := infer.Run(ctx, model, ds, a.BatchSize, opts...)
	// release the checkpoint before the next one is loaded
	if cerr := model.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "close model")
	}
	if err != nil {
		return nil, err
	}

	rows, err := BuildRows(ids, probs, a.Dict)
	if err != nil {
		return nil, err
	}
	files, err := a.Sink.Write(fold.SubmissionFile(), rows)
	if err != nil {
		return nil, err
	}
	log.Info("fold finished",
		zap.String("fold", fold.Name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Strings("files", files))
	return &FoldResult{Name: fold.Name, Preds: preds, Probs: probs, Files: files}, nil
}
