// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package storage

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/TabletDB/tabletmeta/pkg/coderr"
	"github.com/TabletDB/tabletmeta/server/etcdutil"
	"github.com/pingcap/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/clientv3util"
	"go.uber.org/zap"
)

const (
	delimiter = "/"

	listChildrenBatchSize = 100
)

type etcdStorage struct {
	client   *clientv3.Client
	rootPath string

	requestTimeout time.Duration
}

// NewEtcdStorage creates a Storage over an etcd cluster, rooted at rootPath.
func NewEtcdStorage(client *clientv3.Client, rootPath string, requestTimeout time.Duration) Storage {
	return &etcdStorage{
		client:         client,
		rootPath:       rootPath,
		requestTimeout: requestTimeout,
	}
}

func (s *etcdStorage) key(path string) string {
	return strings.Join([]string{s.rootPath, path}, delimiter)
}

func (s *etcdStorage) GetValue(ctx context.Context, path string) (string, error) {
	key := s.key(path)

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	val, err := etcdutil.Get(ctx, s.client, key)
	if err != nil {
		if coderr.Is(err, coderr.NotFound) {
			return "", ErrNodeNotFound.WithCausef("key:%s", key)
		}
		return "", ErrGetNode.WithCause(err)
	}
	return val, nil
}

func (s *etcdStorage) SetValue(ctx context.Context, path string, value string) error {
	key := s.key(path)

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	resp, err := s.client.Txn(ctx).
		If(clientv3util.KeyExists(key)).
		Then(clientv3.OpPut(key, value)).
		Commit()
	if err != nil {
		e := ErrSetNode.WithCause(err)
		log.Error("save to etcd meet error", zap.String("key", key), zap.String("value", value), zap.Error(e))
		return e
	}
	if !resp.Succeeded {
		return ErrNodeNotFound.WithCausef("key:%s", key)
	}
	return nil
}

func (s *etcdStorage) Create(ctx context.Context, path string, value string) error {
	key := s.key(path)

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	resp, err := s.client.Txn(ctx).
		If(clientv3util.KeyMissing(key)).
		Then(clientv3.OpPut(key, value)).
		Commit()
	if err != nil {
		e := ErrCreateNode.WithCause(err)
		log.Error("save to etcd meet error", zap.String("key", key), zap.String("value", value), zap.Error(e))
		return e
	}
	if !resp.Succeeded {
		return ErrNodeAlreadyExists.WithCausef("key:%s", key)
	}
	return nil
}

func (s *etcdStorage) Delete(ctx context.Context, path string) error {
	key := s.key(path)

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	_, err := s.client.Delete(ctx, key)
	if err != nil {
		e := ErrDeleteNode.WithCause(err)
		log.Error("remove from etcd meet error", zap.String("key", key), zap.Error(e))
		return e
	}
	return nil
}

func (s *etcdStorage) ListChildren(ctx context.Context, path string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	return s.listChildren(ctx, path)
}

func (s *etcdStorage) listChildren(ctx context.Context, path string) ([]string, error) {
	prefix := s.key(path) + delimiter
	endKey := clientv3.GetPrefixRangeEnd(prefix)

	seen := make(map[string]struct{})
	children := make([]string, 0, 8)
	do := func(key string, _ []byte) error {
		rest := strings.TrimPrefix(key, prefix)
		// A grandchild key contributes its first segment only.
		child := rest
		if idx := strings.Index(rest, delimiter); idx >= 0 {
			child = rest[:idx]
		}
		if child == "" {
			return nil
		}
		if _, ok := seen[child]; ok {
			return nil
		}
		seen[child] = struct{}{}
		children = append(children, child)
		return nil
	}

	if err := etcdutil.Scan(ctx, s.client, prefix, endKey, listChildrenBatchSize, do); err != nil {
		return nil, ErrListChildren.WithCause(err)
	}
	sort.Strings(children)
	return children, nil
}

// WatchChildren turns the one-shot watch semantics of the underlying store
// into a stream of membership snapshots: after every change under path the
// current children are re-listed and delivered on the returned channel.
func (s *etcdStorage) WatchChildren(ctx context.Context, path string) (<-chan []string, error) {
	prefix := s.key(path) + delimiter
	snapshots := make(chan []string, 1)

	respChan := s.client.Watch(ctx, prefix, clientv3.WithPrefix())
	go func() {
		defer close(snapshots)
		for resp := range respChan {
			if resp.Canceled {
				log.Warn("children watch cancelled", zap.String("prefix", prefix))
				return
			}
			if len(resp.Events) == 0 {
				continue
			}

			listCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
			children, err := s.listChildren(listCtx, path)
			cancel()
			if err != nil {
				log.Error("list children after watch event failed", zap.String("prefix", prefix), zap.Error(err))
				continue
			}

			select {
			case snapshots <- children:
			case <-ctx.Done():
				return
			}
		}
	}()

	return snapshots, nil
}

func (s *etcdStorage) IsConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	_, err := s.client.Get(ctx, s.rootPath)
	return err == nil
}
