package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noofbiz/relex/ensemble"
)

var (
	mergeOutput string

	mergeCmd = &cobra.Command{
		Use:   "merge <submission.csv>...",
		Short: "Average existing fold submissions without running a model",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runMerge,
	}
)

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVar(&mergeOutput, "out", "", "output file name (default {n}_folds_submission.csv)")
}

func runMerge(cmd *cobra.Command, args []string) error {
	dict, err := loadDictionary()
	if err != nil {
		return err
	}
	rows, err := ensemble.MergeRows(args, dict)
	if err != nil {
		return err
	}

	name := mergeOutput
	if name == "" {
		name = ensemble.EnsembleFile(len(args))
	}
	sink := ensemble.Sink{Dir: cfg.Output.Dir, Parquet: cfg.Output.Parquet}
	files, err := sink.Write(name, rows)
	if err != nil {
		return err
	}

	summary, err := ensemble.Summarize(rows, nil, nil)
	if err != nil {
		return err
	}
	logger.Info("merged submissions",
		zap.Int("inputs", len(args)),
		zap.Int("records", summary.Records),
		zap.Float64("mean_top_prob", summary.MeanTopProb),
		zap.Strings("files", files))
	return nil
}
