package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rasher/reddit-modbot/internal/config"
	"github.com/rasher/reddit-modbot/pkg/adapters/fs"
	"github.com/rasher/reddit-modbot/pkg/field"
	"github.com/rasher/reddit-modbot/pkg/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the rules in evaluation order",
	Long:  `Loads the rules directory and prints each rule with its conditions in the order they are evaluated. Files that fail to parse are listed last.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRules(cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func runRules(c config.Config, out io.Writer) error {
	dir, err := filepath.Abs(c.Rules.Dir)
	if err != nil {
		return err
	}
	paths, err := fs.ScanRules(dir, c.Rules.Pattern)
	if err != nil {
		return err
	}

	store := rules.NewStore(field.DefaultIn(c.Location()), rules.WithLogger(slog.Default()))
	failed := map[string]error{}
	var failedOrder []string
	for _, path := range paths {
		if _, err := store.Load(path); err != nil {
			failed[path] = err
			failedOrder = append(failedOrder, path)
		}
	}

	for i, rule := range store.Snapshot().Rules {
		rel, _ := filepath.Rel(dir, rule.Source)
		fmt.Fprintf(out, "%d. %s\n", i+1, rel)
		for _, cond := range rule.Conditions {
			fmt.Fprintf(out, "     %s: %s\n", cond.Key, cond.Pattern)
		}
		for _, list := range rule.ActionLists() {
			fmt.Fprintf(out, "     -> %s\n", list)
		}
	}
	for _, path := range failedOrder {
		fmt.Fprintf(out, "!  %v\n", failed[path])
	}
	return nil
}
