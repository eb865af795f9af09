package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ErrConfig is returned for configuration that cannot be used.
var ErrConfig = errors.New("configuration error")

// EnvPrefix prefixes every environment override, e.g. RELEX_INFERENCE_BATCH_SIZE.
const EnvPrefix = "RELEX"

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Input tables and label dictionary
	Data DataConfig `mapstructure:"data"`

	// Checkpoints and tokenizer
	Model ModelConfig `mapstructure:"model"`

	// Batch inference and ensembling
	Inference InferenceConfig `mapstructure:"inference"`

	// Where predictions are written
	Output OutputConfig `mapstructure:"output"`

	// Train/validation split
	Split SplitConfig `mapstructure:"split"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// DataConfig locates the input files.
type DataConfig struct {
	TestPath      string `mapstructure:"test_path"`
	TrainPath     string `mapstructure:"train_path"`
	Dictionary    string `mapstructure:"dictionary"`
	SubmissionDir string `mapstructure:"submission_dir"`
}

// ModelConfig describes the checkpoints.
type ModelConfig struct {
	Backend   string `mapstructure:"backend"` // onnx, or simple for the reference classifier
	Dir       string `mapstructure:"dir"`
	Tokenizer string `mapstructure:"tokenizer"`
	MaxLength int    `mapstructure:"max_length"`

	// ONNX Runtime settings
	OnnxLibrary    string   `mapstructure:"onnx_library"`
	IntraOpThreads int      `mapstructure:"intra_op_threads"`
	Inputs         []string `mapstructure:"inputs"`
}

// InferenceConfig controls the inference run.
type InferenceConfig struct {
	Mode       string `mapstructure:"mode"` // kfold, single
	NSplits    int    `mapstructure:"n_splits"`
	SingleName string `mapstructure:"single_name"`
	BatchSize  int    `mapstructure:"batch_size"`
	Device     string `mapstructure:"device"` // auto, cpu, cuda, cuda:N
	Progress   bool   `mapstructure:"progress"`
}

// OutputConfig controls the produced files.
type OutputConfig struct {
	Dir     string `mapstructure:"dir"`
	Parquet bool   `mapstructure:"parquet"`
	Chart   bool   `mapstructure:"chart"`
}

// SplitConfig controls the train/validation split.
type SplitConfig struct {
	Ratio     float64 `mapstructure:"ratio"`
	Policy    string  `mapstructure:"policy"` // submissions, inverse, uniform
	Seed      int64   `mapstructure:"seed"`
	OutputDir string  `mapstructure:"output_dir"`
}

// Load decodes configuration from v after applying defaults and environment
// overrides. Flags bound to v take precedence over both.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(ErrConfig, "unable to decode config: %v", err)
	}
	return cfg, nil
}

// ReadFile loads the YAML config file at path into v. An empty path is a
// no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(ErrConfig, "read %s: %v", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Data defaults
	v.SetDefault("data.test_path", "dataset/test/test_data.csv")
	v.SetDefault("data.train_path", "dataset/train/train.csv")
	v.SetDefault("data.dictionary", "data/dict_label_to_num.gob")
	v.SetDefault("data.submission_dir", "submissions")

	// Model defaults
	v.SetDefault("model.backend", "onnx")
	v.SetDefault("model.dir", "best_model")
	v.SetDefault("model.tokenizer", "best_model/tokenizer.json")
	v.SetDefault("model.max_length", 256)
	v.SetDefault("model.onnx_library", "")
	v.SetDefault("model.intra_op_threads", 0)
	v.SetDefault("model.inputs", []string{"input_ids", "attention_mask", "e1_mask", "e2_mask"})

	// Inference defaults
	v.SetDefault("inference.mode", "kfold")
	v.SetDefault("inference.n_splits", 5)
	v.SetDefault("inference.single_name", "plain")
	v.SetDefault("inference.batch_size", 64)
	v.SetDefault("inference.device", "auto")
	v.SetDefault("inference.progress", true)

	// Output defaults
	v.SetDefault("output.dir", "prediction")
	v.SetDefault("output.parquet", false)
	v.SetDefault("output.chart", true)

	// Split defaults
	v.SetDefault("split.ratio", 0.2)
	v.SetDefault("split.policy", "submissions")
	v.SetDefault("split.seed", 42)
	v.SetDefault("split.output_dir", "dataset/train")
}

// Validate checks the values every command relies on.
func (c *Config) Validate() error {
	var problems []string
	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, "log.format must be json or console")
	}
	switch c.Model.Backend {
	case "onnx", "simple":
	default:
		problems = append(problems, "model.backend must be onnx or simple")
	}
	if c.Model.MaxLength < 1 {
		problems = append(problems, "model.max_length must be positive")
	}
	switch c.Inference.Mode {
	case "kfold":
		if c.Inference.NSplits < 1 {
			problems = append(problems, "inference.n_splits must be positive")
		}
	case "single":
		if c.Inference.SingleName == "" {
			problems = append(problems, "inference.single_name is required in single mode")
		}
	default:
		problems = append(problems, "inference.mode must be kfold or single")
	}
	if c.Inference.BatchSize < 1 {
		problems = append(problems, "inference.batch_size must be at least 1")
	}
	if c.Split.Ratio < 0 || c.Split.Ratio >= 1 {
		problems = append(problems, "split.ratio must be in [0, 1)")
	}
	switch c.Split.Policy {
	case "submissions", "inverse", "uniform":
	default:
		problems = append(problems, "split.policy must be submissions, inverse or uniform")
	}
	if c.Data.Dictionary == "" {
		problems = append(problems, "data.dictionary is required")
	}
	if len(problems) > 0 {
		return errors.Wrap(ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}
