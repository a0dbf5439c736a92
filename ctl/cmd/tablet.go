// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cmd

import (
	"github.com/TabletDB/tabletmeta/ctl/operation"
	"github.com/spf13/cobra"
)

var tabletCmd = &cobra.Command{
	Use:     "tablet",
	Aliases: []string{"t"},
	Short:   "Tablet operations",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var tabletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered tablets and their health",
	Run: func(cmd *cobra.Command, args []string) {
		operation.TabletsList()
	},
}

var leaderCmd = &cobra.Command{
	Use:   "leader",
	Short: "Show the current name server leader",
	Run: func(cmd *cobra.Command, args []string) {
		operation.LeaderShow()
	},
}

func init() {
	tabletCmd.AddCommand(tabletListCmd)
	rootCmd.AddCommand(tabletCmd, leaderCmd)
}
