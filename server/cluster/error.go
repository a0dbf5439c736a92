// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cluster

import "github.com/TabletDB/tabletmeta/pkg/coderr"

// The descriptions below are client-facing messages of the admin RPC surface
// and must stay byte-stable.
var (
	ErrNotLeader             = coderr.NewCodeError(coderr.Unavailable, "nameserver is not leader")
	ErrGetTableInfo          = coderr.NewCodeError(coderr.NotFound, "get table info failed")
	ErrPartitionNotExist     = coderr.NewCodeError(coderr.NotFound, "partition not exisit")
	ErrTabletNotOnline       = coderr.NewCodeError(coderr.Unavailable, "tablet is not online")
	ErrSetOpIndexNode        = coderr.NewCodeError(coderr.Internal, "set op index node failed")
	ErrCreateOpNode          = coderr.NewCodeError(coderr.Internal, "create op node failed")
	ErrTableAlreadyExists    = coderr.NewCodeError(coderr.Conflict, "table is already exisit!")
	ErrGetTableIndexNode     = coderr.NewCodeError(coderr.Internal, "get table index node failed")
	ErrSetTableIndexNode     = coderr.NewCodeError(coderr.Internal, "set table index node failed")
	ErrCreateTableNode       = coderr.NewCodeError(coderr.Internal, "create table node failed")
	ErrInvalidTablePartition = coderr.NewCodeError(coderr.BadRequest, "invalid table partition")
	ErrDecodeOpNode          = coderr.NewCodeError(coderr.Internal, "decode op node failed")
	ErrDecodeTableNode       = coderr.NewCodeError(coderr.Internal, "decode table node failed")
)
