// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package id

import (
	"context"
	"testing"
	"time"

	"github.com/TabletDB/tabletmeta/pkg/log"
	"github.com/TabletDB/tabletmeta/server/etcdutil"
	"github.com/TabletDB/tabletmeta/server/storage"
	"github.com/stretchr/testify/require"
)

const defaultRequestTimeout = time.Second * 10

func TestIndexLoadOrInit(t *testing.T) {
	r := require.New(t)
	_, client, closeSrv := etcdutil.PrepareEtcdServerAndClient(t)
	defer closeSrv()

	s := storage.NewEtcdStorage(client, "/tabletmeta/test", defaultRequestTimeout)
	idx := NewIndex(log.GetLogger(), s, storage.PathTableIndex)
	ctx := context.Background()

	// Cold start: the index is created with the initial value.
	val, err := idx.LoadOrInit(ctx)
	r.NoError(err)
	r.Equal(uint64(1), val)

	r.NoError(idx.Store(ctx, 5))

	// A second LoadOrInit must observe the stored value, not re-init.
	val, err = idx.LoadOrInit(ctx)
	r.NoError(err)
	r.Equal(uint64(5), val)

	val, err = idx.Load(ctx)
	r.NoError(err)
	r.Equal(uint64(5), val)
}

func TestIndexDecodeFailure(t *testing.T) {
	r := require.New(t)
	_, client, closeSrv := etcdutil.PrepareEtcdServerAndClient(t)
	defer closeSrv()

	s := storage.NewEtcdStorage(client, "/tabletmeta/test", defaultRequestTimeout)
	ctx := context.Background()
	r.NoError(s.Create(ctx, storage.PathOpIndex, "not-a-number"))

	idx := NewIndex(log.GetLogger(), s, storage.PathOpIndex)
	_, err := idx.Load(ctx)
	r.Error(err)
}
