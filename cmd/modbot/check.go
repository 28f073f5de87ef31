package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rasher/reddit-modbot/internal/config"
	"github.com/rasher/reddit-modbot/pkg/action"
	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/field"
	"github.com/rasher/reddit-modbot/pkg/match"
	"github.com/rasher/reddit-modbot/pkg/rules"
)

var errNoMatch = errors.New("rule did not match")

var checkCmd = &cobra.Command{
	Use:   "check [rule-file] [item.json]",
	Short: "Test one rule against one item",
	Long: `Parses a rule file and matches it against an item given as a JSON file
("-" reads stdin). Prints the captured groups and exits non-zero when the
rule does not match. The rule's actions are logged, not performed, and
nothing is marked seen.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), cfg, args[0], args[1], cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(ctx context.Context, c config.Config, rulePath, itemPath string, stdin io.Reader, out io.Writer) error {
	reg := field.DefaultIn(c.Location())

	f, err := os.Open(rulePath)
	if err != nil {
		return err
	}
	defer f.Close()
	rule, err := rules.Parse(rules.Canonical(rulePath), f)
	if err != nil {
		return err
	}
	if err := rules.Compile(rule, reg, rules.DefaultMatchTimeout); err != nil {
		return err
	}

	in := stdin
	if itemPath != "-" {
		itemFile, err := os.Open(itemPath)
		if err != nil {
			return err
		}
		defer itemFile.Close()
		in = itemFile
	}
	var item core.Item
	if err := json.NewDecoder(in).Decode(&item); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	captures, ok := match.Rule(&item, rule, reg)
	if !ok {
		return errNoMatch
	}
	dryRun := action.NewDispatcher(action.NewDryRun(slog.Default()), action.WithBell(io.Discard))
	if err := dryRun.Apply(ctx, &item, rule, captures); err != nil {
		slog.Warn("actions would fail", "error", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(captures)
}
