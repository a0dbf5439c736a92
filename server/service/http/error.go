// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package http

import "github.com/TabletDB/tabletmeta/pkg/coderr"

var (
	ErrParseRequest = coderr.NewCodeError(coderr.BadRequest, "parse request params")
	ErrFlowLimit    = coderr.NewCodeError(coderr.Unavailable, "request is rejected by flow limiter")
	ErrGetLeader    = coderr.NewCodeError(coderr.Internal, "get leader")
)
