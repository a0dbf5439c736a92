// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package storage

import "github.com/TabletDB/tabletmeta/pkg/coderr"

var (
	ErrNodeNotFound      = coderr.NewCodeError(coderr.NotFound, "storage node not found")
	ErrNodeAlreadyExists = coderr.NewCodeError(coderr.Conflict, "storage node already exists")
	ErrGetNode           = coderr.NewCodeError(coderr.Internal, "get storage node")
	ErrSetNode           = coderr.NewCodeError(coderr.Internal, "set storage node")
	ErrCreateNode        = coderr.NewCodeError(coderr.Internal, "create storage node")
	ErrDeleteNode        = coderr.NewCodeError(coderr.Internal, "delete storage node")
	ErrListChildren      = coderr.NewCodeError(coderr.Internal, "list storage children")
	ErrWatchChildren     = coderr.NewCodeError(coderr.Internal, "watch storage children")
)
