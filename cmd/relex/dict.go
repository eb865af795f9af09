package main

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noofbiz/relex/datasets"
	"github.com/Noofbiz/relex/labels"
)

// noRelation is placed at index 0 when present.
const noRelation = "no_relation"

var (
	dictFrom string

	dictCmd = &cobra.Command{
		Use:   "dict",
		Short: "Build or inspect the label dictionary",
	}

	dictBuildCmd = &cobra.Command{
		Use:   "build [label]...",
		Short: "Write a label dictionary from a training table or explicit labels",
		Long: `Write the dictionary to the configured path. Labels come from the label
column of --from, sorted with no_relation first, or from the arguments in the
given order. The extension of the path selects gob, json or yaml.`,
		RunE: runDictBuild,
	}

	dictShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the label dictionary",
		Args:  cobra.NoArgs,
		RunE:  runDictShow,
	}
)

func init() {
	rootCmd.AddCommand(dictCmd)
	dictCmd.AddCommand(dictBuildCmd, dictShowCmd)

	dictBuildCmd.Flags().StringVar(&dictFrom, "from", "", "training table to collect labels from")
}

func runDictBuild(cmd *cobra.Command, args []string) error {
	names := args
	if dictFrom != "" {
		if len(args) > 0 {
			return errors.New("pass either --from or labels, not both")
		}
		recs, err := datasets.ReadRecords(dictFrom)
		if err != nil {
			return err
		}
		names = collectLabels(recs)
	}
	if len(names) == 0 {
		return errors.New("no labels given")
	}

	dict, err := labels.New(names)
	if err != nil {
		return err
	}
	if err := dict.Save(cfg.Data.Dictionary); err != nil {
		return err
	}
	logger.Info("wrote label dictionary",
		zap.String("path", cfg.Data.Dictionary),
		zap.Int("labels", dict.Len()))
	return nil
}

// collectLabels returns the distinct non-empty labels, sorted, with
// no_relation first.
func collectLabels(recs []datasets.Record) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range recs {
		if r.Label == "" || seen[r.Label] {
			continue
		}
		seen[r.Label] = true
		out = append(out, r.Label)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i] == noRelation) != (out[j] == noRelation) {
			return out[i] == noRelation
		}
		return out[i] < out[j]
	})
	return out
}

func runDictShow(cmd *cobra.Command, args []string) error {
	dict, err := loadDictionary()
	if err != nil {
		return err
	}
	for i, l := range dict.All() {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, l)
	}
	return nil
}
