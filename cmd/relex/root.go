package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Noofbiz/relex/config"
	"github.com/Noofbiz/relex/labels"
	"github.com/Noofbiz/relex/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  = zap.NewNop()

	rootCmd = &cobra.Command{
		Use:   "relex",
		Short: "Relation extraction inference and data preparation",
		Long: `relex runs a fine-tuned relation classifier over sentence / entity-pair
records, one checkpoint per cross-validation fold or a single checkpoint,
averages the fold probabilities and writes submission files.

It also prepares train/validation splits weighted by the label frequencies
of earlier submissions, and manages the label dictionary.

Configuration can be provided through a YAML config file, RELEX_*
environment variables or command-line flags.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, console)")
	rootCmd.PersistentFlags().String("dictionary", "", "label dictionary (.gob, .json or .yaml)")

	// Bind flags to viper
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("data.dictionary", rootCmd.PersistentFlags().Lookup("dictionary"))
}

// initConfig reads the config file, environment variables and flags, then
// builds the logger.
func initConfig(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	if err := config.ReadFile(v, cfgFile); err != nil {
		return err
	}
	c, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	l, err := logging.New(c.Log.Level, c.Log.Format)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	if cfgFile != "" {
		logger.Debug("using config file", zap.String("path", cfgFile))
	}
	return nil
}

// errorLogger returns the command logger, or a console logger at info level
// when the configuration never loaded.
func errorLogger() *zap.Logger {
	if cfg != nil {
		return logger
	}
	l, err := logging.New("info", "console")
	if err != nil {
		return logger
	}
	return l
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadDictionary loads the configured label dictionary once for the command.
func loadDictionary() (*labels.Dictionary, error) {
	dict, err := labels.Load(cfg.Data.Dictionary)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded label dictionary",
		zap.String("path", cfg.Data.Dictionary),
		zap.Int("labels", dict.Len()))
	return dict, nil
}
