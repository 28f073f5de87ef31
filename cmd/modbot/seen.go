package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/seen"
)

var seenContext string

var seenCmd = &cobra.Command{
	Use:   "seen",
	Short: "Inspect and maintain the seen store",
}

var seenHasCmd = &cobra.Command{
	Use:   "has [item-id]",
	Short: "Report whether an item was already evaluated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := core.Context(seenContext)
		if !c.Valid() {
			return fmt.Errorf("unknown context %q", seenContext)
		}
		ctx := cmd.Context()
		logger := slog.Default().With("component", "seen")

		backend, err := openSeen(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		tracker, err := seen.NewTracker(ctx, backend.storage, seen.WithLogger(logger))
		if err != nil {
			return err
		}
		if tracker.HasSeen(args[0], c) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s seen in %s\n", args[0], c)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s not seen in %s\n", args[0], c)
		return nil
	},
}

var seenCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the seen log without duplicate lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Seen.DSN != "" {
			return errors.New("compact applies to the seen log only")
		}
		ctx := cmd.Context()
		backend, err := openSeen(ctx, cfg, slog.Default().With("component", "seen"))
		if err != nil {
			return err
		}
		defer backend.Close()

		n, err := backend.log.Compact(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries\n", backend.log.Path, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seenCmd)
	seenCmd.AddCommand(seenHasCmd, seenCompactCmd)
	seenHasCmd.Flags().StringVar(&seenContext, "context", string(core.ContextStream), "Evaluation context: stream or queue")
}
