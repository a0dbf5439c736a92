// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package member

import (
	"context"
	"time"

	"github.com/TabletDB/tabletmeta/pkg/log"
	"go.uber.org/zap"
)

const (
	watchLeaderFailInterval = time.Duration(200) * time.Millisecond

	waitReasonFailEtcd = "fail to access etcd"
	waitReasonNoWait   = ""
)

type WatchContext interface {
	ShouldStop() bool
}

// LeadershipEventCallbacks is the injected entry point pair invoked on lock
// acquisition and loss. Callers get a strict L,U,L,U alternation: an
// AfterElected is always paired with exactly one later BeforeTransfer.
type LeadershipEventCallbacks interface {
	AfterElected(ctx context.Context)
	BeforeTransfer(ctx context.Context)
}

type LeaderWatcher struct {
	watchCtx    WatchContext
	self        *Member
	leaseTTLSec int64
}

func NewLeaderWatcher(ctx WatchContext, self *Member, leaseTTLSec int64) *LeaderWatcher {
	return &LeaderWatcher{
		ctx,
		self,
		leaseTTLSec,
	}
}

// Watch drives the campaign loop:
//  1. If a leader exists, wait for the lock node to disappear.
//  2. If no leader exists, campaign; the winner keeps the leadership lease
//     alive and the losers go back to waiting.
//
// The callbacks are triggered around the held-leadership span.
func (l *LeaderWatcher) Watch(ctx context.Context, callbacks LeadershipEventCallbacks) {
	var wait string
	logger := log.With(zap.String("self", l.self.Name))

	for {
		if l.watchCtx.ShouldStop() {
			logger.Warn("stop watching leader because of server is closed")
			return
		}

		select {
		case <-ctx.Done():
			logger.Warn("stop watching leader because ctx is done")
			return
		default:
		}

		if wait != waitReasonNoWait {
			logger.Warn("sleep a while during watch", zap.String("wait-reason", wait))
			time.Sleep(watchLeaderFailInterval)
			wait = waitReasonNoWait
		}

		// Check whether a leader exists.
		leaderResp, err := l.self.GetLeader(ctx)
		if err != nil {
			logger.Error("fail to get leader", zap.Error(err))
			wait = waitReasonFailEtcd
			continue
		}

		if leaderResp.Leader == nil {
			// No leader. Campaign and block until the leadership is lost.
			if err := l.self.CampaignAndKeepLeader(ctx, l.leaseTTLSec, callbacks); err != nil {
				logger.Error("fail to campaign and keep leader", zap.Error(err))
				wait = waitReasonFailEtcd
			} else {
				logger.Info("stop keeping leader")
			}
			continue
		}

		// A leader exists. Block until the lock node changes.
		l.self.WaitForLeaderChange(ctx, leaderResp.Revision)
		logger.Warn("leader changes and stop watching")
	}
}
