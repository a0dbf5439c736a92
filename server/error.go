// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package server

import "github.com/TabletDB/tabletmeta/pkg/coderr"

var (
	ErrCreateEtcdClient = coderr.NewCodeError(coderr.Internal, "create etcd client")
	ErrStartHTTPService = coderr.NewCodeError(coderr.Internal, "start http service")
)
