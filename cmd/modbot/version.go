package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rasher/reddit-modbot"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of modbot",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "modbot version %s\n", modbot.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
