package main

import (
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Noofbiz/relex/datasets"
	"github.com/Noofbiz/relex/labels"
	"github.com/Noofbiz/relex/split"
)

// Output names of the split command.
const (
	trainSplitFile = "train_split.csv"
	validSplitFile = "valid_split.csv"
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a training table into train and validation sets",
	Long: `Draw a validation set without replacement, weighting every record by its
label. The submissions policy weights a label by how often it was predicted in
"output (1).csv" .. "output (10).csv" under the submission directory; the
inverse policy uses one over the label's frequency in the table itself; the
uniform policy draws a plain random sample.`,
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)

	splitCmd.Flags().String("train-path", "", "training table (CSV)")
	splitCmd.Flags().String("submission-dir", "", "directory holding the prior submission files")
	splitCmd.Flags().Float64("ratio", 0, "validation share in [0, 1)")
	splitCmd.Flags().String("policy", "", "submissions, inverse or uniform")
	splitCmd.Flags().Int64("seed", 0, "random seed")
	splitCmd.Flags().String("output-dir", "", "directory for train_split.csv and valid_split.csv")

	viper.BindPFlag("data.train_path", splitCmd.Flags().Lookup("train-path"))
	viper.BindPFlag("data.submission_dir", splitCmd.Flags().Lookup("submission-dir"))
	viper.BindPFlag("split.ratio", splitCmd.Flags().Lookup("ratio"))
	viper.BindPFlag("split.policy", splitCmd.Flags().Lookup("policy"))
	viper.BindPFlag("split.seed", splitCmd.Flags().Lookup("seed"))
	viper.BindPFlag("split.output_dir", splitCmd.Flags().Lookup("output-dir"))
}

func runSplit(cmd *cobra.Command, args []string) error {
	dict, err := loadDictionary()
	if err != nil {
		return err
	}

	helper, err := datasets.NewDataHelper(cfg.Data.TrainPath)
	if err != nil {
		return err
	}
	logger.Debug("read training table",
		zap.String("path", cfg.Data.TrainPath),
		zap.String("rows", humanize.Comma(int64(len(helper.Raw())))))
	pre, err := helper.Preprocess(datasets.ModeTrain, dict)
	if err != nil {
		return err
	}

	policy, err := splitPolicy(dict)
	if err != nil {
		return err
	}
	train, valid, err := split.Split(pre.Labels, cfg.Split.Ratio, policy, cfg.Split.Seed)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Split.OutputDir, 0755); err != nil {
		return err
	}
	raw := helper.Raw()
	trainPath := filepath.Join(cfg.Split.OutputDir, trainSplitFile)
	validPath := filepath.Join(cfg.Split.OutputDir, validSplitFile)
	if err := datasets.WriteRecords(trainPath, split.Select(raw, train)); err != nil {
		return err
	}
	if err := datasets.WriteRecords(validPath, split.Select(raw, valid)); err != nil {
		return err
	}

	logger.Info("split written",
		zap.String("policy", policy.Name()),
		zap.Int64("seed", cfg.Split.Seed),
		zap.String("train", humanize.Comma(int64(len(train)))),
		zap.String("valid", humanize.Comma(int64(len(valid)))),
		zap.String("train_path", trainPath),
		zap.String("valid_path", validPath))
	return nil
}

func splitPolicy(dict *labels.Dictionary) (split.Policy, error) {
	policy, err := split.ParsePolicy(cfg.Split.Policy)
	if err != nil {
		return nil, err
	}
	if _, ok := policy.(split.SubmissionCounts); !ok {
		return policy, nil
	}
	counts, err := split.LoadSubmissionCounts(cfg.Data.SubmissionDir, split.DefaultSubmissionFiles(), dict)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded submission statistics",
		zap.String("dir", cfg.Data.SubmissionDir),
		zap.Int("labels", len(counts)))
	return split.SubmissionCounts{Counts: counts}, nil
}
