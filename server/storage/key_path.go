// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"fmt"
	"path"
)

const (
	// PathLeader is the distributed-lock contention node.
	PathLeader = "leader"
	// PathTable is the directory of table catalog entries, keyed by name.
	// Its child "data" is reserved for the index and op subtrees below.
	PathTable = "table"
	// PathTableIndex holds the next table id as a decimal string.
	PathTableIndex = "table/data/table_index"
	// PathOpIndex holds the next op id as a decimal string.
	PathOpIndex = "table/data/op_index"
	// PathOpTask is the directory of per-op nodes, keyed by op id.
	PathOpTask = "table/data/op_task"
	// PathNodes is the directory where tablets register their endpoints.
	PathNodes = "nodes"

	// ReservedTableChild is the child of PathTable that is not a table entry.
	ReservedTableChild = "data"
)

func TableKey(name string) string {
	return path.Join(PathTable, name)
}

func OpTaskKey(opID uint64) string {
	return path.Join(PathOpTask, fmt.Sprintf("%d", opID))
}
