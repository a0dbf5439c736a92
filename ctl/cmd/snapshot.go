// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cmd

import (
	"github.com/TabletDB/tabletmeta/ctl/operation"
	"github.com/spf13/cobra"
)

var (
	snapshotTable string
	snapshotPID   uint32
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Make a snapshot of one partition of a table",
	Run: func(cmd *cobra.Command, args []string) {
		operation.SnapshotMake(snapshotTable, snapshotPID)
	},
}

func init() {
	snapshotCmd.Flags().StringVarP(&snapshotTable, "name", "n", "", "table name")
	snapshotCmd.Flags().Uint32Var(&snapshotPID, "pid", 0, "partition id")
	rootCmd.AddCommand(snapshotCmd)
}
