// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cmd

import (
	"github.com/TabletDB/tabletmeta/ctl/operation"
	"github.com/spf13/cobra"
)

var (
	tableName       string
	tableTTL        uint64
	tablePartitions string
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Table catalog operations",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var tableCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a table",
	Run: func(cmd *cobra.Command, args []string) {
		operation.TableCreate(tableName, tableTTL, tablePartitions)
	},
}

func init() {
	tableCreateCmd.Flags().StringVarP(&tableName, "name", "n", "", "table name")
	tableCreateCmd.Flags().Uint64Var(&tableTTL, "ttl", 0, "table ttl")
	tableCreateCmd.Flags().StringVarP(&tablePartitions, "partitions", "p", "", "partition list, e.g. 0:10.0.0.1:9090:leader,0:10.0.0.2:9090:follower")
	tableCmd.AddCommand(tableCreateCmd)
	rootCmd.AddCommand(tableCmd)
}
