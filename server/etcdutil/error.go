// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package etcdutil

import "github.com/TabletDB/tabletmeta/pkg/coderr"

var (
	ErrEtcdKVGet         = coderr.NewCodeError(coderr.Internal, "etcd KV get failed")
	ErrEtcdKVGetResponse = coderr.NewCodeError(coderr.Internal, "etcd KV get returns invalid result")
	ErrEtcdKVGetNotFound = coderr.NewCodeError(coderr.NotFound, "etcd KV get value not found")
	ErrEtcdKVPut         = coderr.NewCodeError(coderr.Internal, "etcd KV put failed")
	ErrEtcdKVDelete      = coderr.NewCodeError(coderr.Internal, "etcd KV delete failed")
)
