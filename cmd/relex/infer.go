package main

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Noofbiz/relex/datasets"
	"github.com/Noofbiz/relex/ensemble"
	"github.com/Noofbiz/relex/infer"
	"github.com/Noofbiz/relex/labels"
	"github.com/Noofbiz/relex/onnx"
	"github.com/Noofbiz/relex/simple"
)

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Run fold or single-checkpoint inference over a test table",
	Long: `Run the relation classifier over the test table.

In kfold mode every checkpoint {model-dir}/{k}_fold is run in turn and writes
{k}_fold_submission.csv; the fold probabilities are then averaged into
{n}_folds_submission.csv. In single mode {model-dir}/{single-name} is run and
writes {single-name}_submission.csv.

The onnx backend runs exported transformer checkpoints (model.onnx). The
simple backend loads model.gob checkpoints of the small pure-Go reference
classifier; nothing in relex trains them, so it serves tests and pipeline
dry runs rather than real predictions.`,
	RunE: runInfer,
}

func init() {
	rootCmd.AddCommand(inferCmd)

	inferCmd.Flags().String("test-path", "", "test table (CSV)")
	inferCmd.Flags().String("model-dir", "", "directory holding the checkpoints")
	inferCmd.Flags().String("backend", "", "checkpoint backend: onnx, or simple (reference classifier for tests and dry runs)")
	inferCmd.Flags().String("tokenizer", "", "tokenizer.json file or directory")
	inferCmd.Flags().Int("max-length", 0, "maximum tokens per example")
	inferCmd.Flags().String("mode", "", "kfold or single")
	inferCmd.Flags().Int("n-splits", 0, "number of folds in kfold mode")
	inferCmd.Flags().String("single-name", "", "checkpoint name in single mode")
	inferCmd.Flags().Int("batch-size", 0, "inference batch size")
	inferCmd.Flags().String("device", "", "auto, cpu, cuda or cuda:N")
	inferCmd.Flags().String("output-dir", "", "directory for submissions")
	inferCmd.Flags().Bool("parquet", false, "also write parquet submissions")

	viper.BindPFlag("data.test_path", inferCmd.Flags().Lookup("test-path"))
	viper.BindPFlag("model.dir", inferCmd.Flags().Lookup("model-dir"))
	viper.BindPFlag("model.backend", inferCmd.Flags().Lookup("backend"))
	viper.BindPFlag("model.tokenizer", inferCmd.Flags().Lookup("tokenizer"))
	viper.BindPFlag("model.max_length", inferCmd.Flags().Lookup("max-length"))
	viper.BindPFlag("inference.mode", inferCmd.Flags().Lookup("mode"))
	viper.BindPFlag("inference.n_splits", inferCmd.Flags().Lookup("n-splits"))
	viper.BindPFlag("inference.single_name", inferCmd.Flags().Lookup("single-name"))
	viper.BindPFlag("inference.batch_size", inferCmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("inference.device", inferCmd.Flags().Lookup("device"))
	viper.BindPFlag("output.dir", inferCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("output.parquet", inferCmd.Flags().Lookup("parquet"))
}

func runInfer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	dict, err := loadDictionary()
	if err != nil {
		return err
	}

	plan := ensemble.Plan{
		Mode:       ensemble.Mode(cfg.Inference.Mode),
		NSplits:    cfg.Inference.NSplits,
		ModelDir:   cfg.Model.Dir,
		SingleName: cfg.Inference.SingleName,
	}
	// fail on a missing fold before the slow tokenization step
	if err := plan.Check(); err != nil {
		return err
	}

	ds, ids, err := buildTestDataset(dict)
	if err != nil {
		return err
	}

	loader, probe, err := newLoader(dict)
	if err != nil {
		return err
	}
	if cfg.Model.Backend == "onnx" {
		defer func() {
			if err := onnx.Shutdown(); err != nil {
				logger.Warn("onnxruntime shutdown", zap.Error(err))
			}
		}()
	}

	selector, err := newSelector(probe)
	if err != nil {
		return err
	}

	agg := &ensemble.Aggregator{
		Loader:    loader,
		Devices:   selector,
		Dict:      dict,
		BatchSize: cfg.Inference.BatchSize,
		Sink:      ensemble.Sink{Dir: cfg.Output.Dir, Parquet: cfg.Output.Parquet},
		Progress:  cfg.Inference.Progress,
		Chart:     cfg.Output.Chart,
		Logger:    logger,
	}
	res, err := agg.Run(ctx, plan, ds, ids)
	if err != nil {
		return err
	}
	logger.Info("inference done",
		zap.String("run_id", res.RunID),
		zap.Int("files", len(res.Files)))
	return nil
}

// buildTestDataset reads, preprocesses and tokenizes the test table.
func buildTestDataset(dict *labels.Dictionary) (*datasets.RelationDataset, []string, error) {
	helper, err := datasets.NewDataHelper(cfg.Data.TestPath)
	if err != nil {
		return nil, nil, err
	}
	pre, err := helper.Preprocess(datasets.ModeInference, dict)
	if err != nil {
		return nil, nil, err
	}
	tok, err := datasets.LoadPretrained(cfg.Model.Tokenizer, cfg.Model.MaxLength)
	if err != nil {
		return nil, nil, err
	}
	examples, err := helper.Tokenize(pre, tok)
	if err != nil {
		return nil, nil, err
	}
	ds, err := datasets.NewRelationDataset(examples, cfg.Inference.BatchSize)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("test data ready",
		zap.String("path", cfg.Data.TestPath),
		zap.String("records", humanize.Comma(int64(ds.Len()))),
		zap.Int("max_length", tok.MaxLength()))
	return ds, helper.IDs(), nil
}

func newLoader(dict *labels.Dictionary) (infer.Loader, func(infer.Device) error, error) {
	switch cfg.Model.Backend {
	case "onnx":
		oc := onnx.Config{
			SharedLibraryPath: cfg.Model.OnnxLibrary,
			IntraOpThreads:    cfg.Model.IntraOpThreads,
			Inputs:            cfg.Model.Inputs,
			NumLabels:         dict.Len(),
		}
		return onnx.Loader{Config: oc}, onnx.ProbeCUDA(oc), nil
	case "simple":
		logger.Warn("simple backend selected: reference classifier, predictions are only as good as the model.gob supplied")
		return simple.Loader{}, nil, nil
	default:
		return nil, nil, errors.Errorf("unknown backend %q", cfg.Model.Backend)
	}
}

func newSelector(probe func(infer.Device) error) (infer.DeviceSelector, error) {
	if cfg.Inference.Device == "auto" || cfg.Inference.Device == "" {
		return infer.AutoSelector{
			Probe: probe,
			OnFallback: func(err error) {
				logger.Warn("cuda unavailable, running on cpu", zap.Error(err))
			},
		}, nil
	}
	return infer.NewSelector(cfg.Inference.Device, probe)
}
