// Package ensemble runs one inference pass per cross-validation fold, writes
// a submission per fold and averages the fold probabilities into a combined
// submission.
package ensemble

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var (
	// ErrConfig is returned for an unusable plan: unknown mode, no folds or a
	// missing checkpoint directory.
	ErrConfig = errors.New("ensemble configuration error")
	// ErrFoldMismatch is returned when fold predictions disagree in record
	// count or class dimensionality.
	ErrFoldMismatch = errors.New("fold predictions disagree in shape")
)

// Mode selects between cross-validated and single-checkpoint inference.
type Mode string

const (
	KFold  Mode = "kfold"
	Single Mode = "single"
)

// Plan lists the checkpoints of a run.
type Plan struct {
	Mode Mode
	// NSplits is the number of folds in KFold mode.
	NSplits int
	// ModelDir holds one sub-directory per checkpoint.
	ModelDir string
	// SingleName is the checkpoint sub-directory in Single mode.
	SingleName string
}

// Fold is one checkpoint of a plan.
type Fold struct {
	Name string
	Dir  string
}

// SubmissionFile returns the per-fold output name, e.g. 0_fold_submission.csv.
func (f Fold) SubmissionFile() string {
	return f.Name + "_submission.csv"
}

// EnsembleFile returns the name of the averaged output for n folds.
func EnsembleFile(n int) string {
	return fmt.Sprintf("%d_folds_submission.csv", n)
}

// FoldName returns the directory name of fold k.
func FoldName(k int) string {
	return fmt.Sprintf("%d_fold", k)
}

// Validate checks the plan without touching the filesystem.
func (p Plan) Validate() error {
	switch p.Mode {
	case KFold:
		if p.NSplits < 1 {
			return errors.Wrapf(ErrConfig, "n_splits must be positive, got %d", p.NSplits)
		}
	case Single:
		if p.SingleName == "" {
			return errors.Wrap(ErrConfig, "single mode needs a checkpoint name")
		}
	default:
		return errors.Wrapf(ErrConfig, "unknown mode %q", p.Mode)
	}
	return nil
}

// Folds returns the checkpoints in execution order.
func (p Plan) Folds() []Fold {
	if p.Mode == Single {
		return []Fold{{Name: p.SingleName, Dir: filepath.Join(p.ModelDir, p.SingleName)}}
	}
	folds := make([]Fold, p.NSplits)
	for k := range folds {
		name := FoldName(k)
		folds[k] = Fold{Name: name, Dir: filepath.Join(p.ModelDir, name)}
	}
	return folds
}

// Dirs returns the checkpoint directories in execution order.
func (p Plan) Dirs() []string {
	folds := p.Folds()
	dirs := make([]string, len(folds))
	for i, f := range folds {
		dirs[i] = f.Dir
	}
	return dirs
}

// Check validates the plan and confirms every checkpoint directory exists,
// so a run never fails halfway on a missing fold.
func (p Plan) Check() error {
	if err := p.Validate(); err != nil {
		return err
	}
	for _, dir := range p.Dirs() {
		info, err := os.Stat(dir)
		if err != nil {
			return errors.Wrapf(ErrConfig, "checkpoint %s: %v", dir, err)
		}
		if !info.IsDir() {
			return errors.Wrapf(ErrConfig, "checkpoint %s is not a directory", dir)
		}
	}
	return nil
}
