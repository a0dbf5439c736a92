// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package member

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/TabletDB/tabletmeta/pkg/log"
	"github.com/pkg/errors"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Member campaigns for the leadership of the name-server cluster on the
// well-known lock path. The lock identity payload carries the process
// endpoint for observability.
type Member struct {
	Name       string
	Endpoint   string
	leaderKey  string
	etcdCli    *clientv3.Client
	rpcTimeout time.Duration
	logger     *zap.Logger

	leaderL sync.RWMutex
	leader  *LeaderInfo
}

// LeaderInfo is the value stored at the lock path by the current leader.
type LeaderInfo struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

func formatLeaderKey(rootPath string) string {
	return fmt.Sprintf("%s/leader", rootPath)
}

func NewMember(rootPath string, name, endpoint string, etcdCli *clientv3.Client, rpcTimeout time.Duration) *Member {
	leaderKey := formatLeaderKey(rootPath)
	logger := log.With(zap.String("node-name", name), zap.String("endpoint", endpoint))
	return &Member{
		Name:       name,
		Endpoint:   endpoint,
		leaderKey:  leaderKey,
		etcdCli:    etcdCli,
		rpcTimeout: rpcTimeout,
		logger:     logger,

		leaderL: sync.RWMutex{},
		leader:  nil,
	}
}

// GetLeader gets the current leader of the cluster.
// GetLeaderResp.Leader == nil if no leader found.
func (m *Member) GetLeader(ctx context.Context) (GetLeaderResp, error) {
	ctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	resp, err := m.etcdCli.Get(ctx, m.leaderKey)
	if err != nil {
		return GetLeaderResp{}, ErrGetLeader.WithCause(err)
	}
	if len(resp.Kvs) > 1 {
		return GetLeaderResp{}, ErrMultipleLeader
	}
	if len(resp.Kvs) == 0 {
		return GetLeaderResp{Leader: nil, Revision: 0, IsLocal: false}, nil
	}

	leaderKv := resp.Kvs[0]
	leader := &LeaderInfo{}
	if err := json.Unmarshal(leaderKv.Value, leader); err != nil {
		return GetLeaderResp{}, ErrInvalidLeaderValue.WithCause(err)
	}

	return GetLeaderResp{Leader: leader, Revision: leaderKv.ModRevision, IsLocal: leader.Endpoint == m.Endpoint}, nil
}

// GetLeaderAddr gets the leader address of the cluster with memory cache.
// Returns an error if no leader is known.
func (m *Member) GetLeaderAddr(_ context.Context) (GetLeaderAddrResp, error) {
	m.leaderL.RLock()
	defer m.leaderL.RUnlock()

	if m.leader == nil {
		return GetLeaderAddrResp{LeaderEndpoint: "", IsLocal: false}, errors.WithMessage(ErrGetLeader, "no leader found")
	}
	return GetLeaderAddrResp{
		LeaderEndpoint: m.leader.Endpoint,
		IsLocal:        m.leader.Endpoint == m.Endpoint,
	}, nil
}

func (m *Member) setCachedLeader(leader *LeaderInfo) {
	m.leaderL.Lock()
	defer m.leaderL.Unlock()
	m.leader = leader
}

// ResetLeader deletes the lock node held by this member.
func (m *Member) ResetLeader(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	if _, err := m.etcdCli.Delete(ctx, m.leaderKey); err != nil {
		return ErrResetLeader.WithCause(err)
	}
	m.setCachedLeader(nil)
	return nil
}

// WaitForLeaderChange blocks until the lock node is deleted or ctx is done.
func (m *Member) WaitForLeaderChange(ctx context.Context, revision int64) {
	watcher := clientv3.NewWatcher(m.etcdCli)
	defer func() {
		if err := watcher.Close(); err != nil {
			m.logger.Error("close watcher failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		wch := watcher.Watch(ctx, m.leaderKey, clientv3.WithRev(revision))
		for resp := range wch {
			// Meet compacted error, use the compact revision.
			if resp.CompactRevision != 0 {
				m.logger.Warn("required revision has been compacted, use the compact revision",
					zap.Int64("required-revision", revision),
					zap.Int64("compact-revision", resp.CompactRevision))
				revision = resp.CompactRevision
				break
			}

			if resp.Canceled {
				m.logger.Error("watcher is cancelled", zap.Int64("revision", revision), zap.String("leader-key", m.leaderKey))
				return
			}

			for _, ev := range resp.Events {
				if ev.Type == mvccpb.DELETE {
					m.logger.Info("current leader is deleted", zap.String("leader-key", m.leaderKey))
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// CampaignAndKeepLeader tries to acquire the lock by writing the lock node
// under a lease, and on success keeps the lease alive until it expires or ctx
// is done. The callbacks fire exactly once per successful campaign:
// AfterElected right after acquisition, BeforeTransfer right before this
// method returns, so the two always alternate strictly.
func (m *Member) CampaignAndKeepLeader(ctx context.Context, leaseTTLSec int64, callbacks LeadershipEventCallbacks) error {
	leaderVal, err := m.Marshal()
	if err != nil {
		return err
	}

	rawLease := clientv3.NewLease(m.etcdCli)
	newLease := newLease(rawLease, leaseTTLSec)
	closeLeaseOnce := sync.Once{}
	closeLease := func() {
		ctx1, cancel := context.WithTimeout(context.Background(), m.rpcTimeout)
		defer cancel()
		if err := newLease.Close(ctx1); err != nil {
			m.logger.Error("close lease failed", zap.Error(err))
		}
	}
	defer closeLeaseOnce.Do(closeLease)

	ctx1, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	if err := newLease.Grant(ctx1); err != nil {
		return err
	}

	// The lock node must not exist, so its CreateRevision is 0.
	cmp := clientv3.Compare(clientv3.CreateRevision(m.leaderKey), "=", 0)
	ctx1, cancel = context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	resp, err := m.etcdCli.
		Txn(ctx1).
		If(cmp).
		Then(clientv3.OpPut(m.leaderKey, leaderVal, clientv3.WithLease(newLease.ID))).
		Commit()
	if err != nil {
		return ErrTxnPutLeader.WithCause(err)
	} else if !resp.Succeeded {
		return ErrTxnPutLeader.WithCausef("txn put leader failed, resp:%v", resp)
	}

	m.logger.Info("[SetLeader]", zap.String("leader-key", m.leaderKey), zap.String("leader", m.Name))
	m.setCachedLeader(&LeaderInfo{Name: m.Name, Endpoint: m.Endpoint})

	if callbacks != nil {
		callbacks.AfterElected(ctx)
		// The leadership is given up when this method returns.
		defer func() {
			callbacks.BeforeTransfer(ctx)
		}()
	}
	defer m.setCachedLeader(nil)

	// Keep the leadership by renewing the lease periodically after success in campaigning leader.
	keepAliveDone := make(chan struct{})
	go func() {
		newLease.KeepAlive(ctx)
		close(keepAliveDone)
		closeLeaseOnce.Do(closeLease)
	}()
	defer func() {
		<-keepAliveDone
	}()

	leaderCheckTicker := time.NewTicker(leaderCheckInterval)
	defer leaderCheckTicker.Stop()

	for {
		select {
		case <-leaderCheckTicker.C:
			if newLease.IsExpired() {
				m.logger.Info("no longer a leader because lease has expired")
				return nil
			}
		case <-ctx.Done():
			m.logger.Info("server is closed")
			return nil
		}
	}
}

const leaderCheckInterval = time.Duration(100) * time.Millisecond

func (m *Member) Marshal() (string, error) {
	bs, err := json.Marshal(&LeaderInfo{Name: m.Name, Endpoint: m.Endpoint})
	if err != nil {
		return "", ErrMarshalMember.WithCause(err)
	}

	return string(bs), nil
}

type GetLeaderResp struct {
	Leader   *LeaderInfo
	Revision int64
	IsLocal  bool
}

type GetLeaderAddrResp struct {
	LeaderEndpoint string
	IsLocal        bool
}
