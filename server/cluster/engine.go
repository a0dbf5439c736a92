// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cluster

import (
	"context"
	"time"

	"github.com/TabletDB/tabletmeta/pkg/assert"
	"github.com/TabletDB/tabletmeta/server/storage"
	"github.com/TabletDB/tabletmeta/server/tablet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runTaskWorker executes task callables submitted by the driver. RPC failures
// are not propagated; they show up as the absence of a status advance and are
// retried on later driver rounds.
func (m *Manager) runTaskWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-m.taskCh:
			if err := task.run(ctx); err != nil {
				m.logger.Warn("task rpc failed",
					zap.Uint64("opID", task.OpID),
					zap.String("taskType", string(task.TaskType)),
					zap.String("endpoint", task.Endpoint),
					zap.Error(err))
			}
		}
	}
}

// updateTaskStatusLoop polls the healthy tablets for cumulative task status
// and copies matching reports into the head task of each op.
func (m *Manager) updateTaskStatusLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.GetTaskStatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !m.running() {
			return
		}
		m.updateTaskStatus(ctx)
	}
}

func (m *Manager) updateTaskStatus(ctx context.Context) {
	m.mu.Lock()
	clients := m.healthyClientsLocked()
	m.mu.Unlock()

	replies := make([][]tablet.TaskStatusEntry, len(clients))
	g, gctx := errgroup.WithContext(ctx)
	for i, client := range clients {
		i, client := i, client
		g.Go(func() error {
			entries, err := client.GetTaskStatus(gctx)
			if err != nil {
				m.logger.Warn("get task status failed", zap.String("endpoint", client.Endpoint()), zap.Error(err))
				return nil
			}
			replies[i] = entries
			return nil
		})
	}
	// The group never returns an error; failed tablets just report nothing.
	_ = g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entries := range replies {
		for _, entry := range entries {
			op, ok := m.taskMap[entry.OpID]
			if !ok {
				m.logger.Warn("cannot find op in task map", zap.Uint64("opID", entry.OpID))
				continue
			}
			if len(op.Tasks) == 0 {
				continue
			}
			head := op.Tasks[0]
			// Reports for a later step or another op do not touch the head.
			if head.TaskType != entry.TaskType {
				continue
			}
			head.ApplyStatus(entry.Status)
		}
	}
}

// processTask is the driver loop: advance each op's FIFO, submit the head
// task of every live op to the worker pool, then publish the durable head
// task types and reap finished ops, all outside the lock.
func (m *Manager) processTask(ctx context.Context) {
	for {
		var runOps []uint64

		m.mu.Lock()
		for len(m.taskMap) == 0 && m.running() && ctx.Err() == nil {
			m.cv.Wait()
		}
		if !m.running() || ctx.Err() != nil {
			m.mu.Unlock()
			return
		}

		for opID, op := range m.taskMap {
			if len(op.Tasks) == 0 {
				continue
			}
			switch op.Tasks[0].Status() {
			case tablet.TaskStatusDone:
				op.Tasks = op.Tasks[1:]
			case tablet.TaskStatusFailed:
				// A failed head parks the op for operator intervention; the
				// reaper leaves it alone because the FIFO is non-empty.
				continue
			}
			if len(op.Tasks) == 0 {
				m.logger.Info("operation finished", zap.Uint64("opID", opID))
				continue
			}

			head := op.Tasks[0]
			assert.Assertf(head.OpID == op.OpInfo.OpID, "task %d filed under op %d", head.OpID, op.OpInfo.OpID)
			if head.Status() == tablet.TaskStatusDoing {
				m.submitTask(head)
				runOps = append(runOps, opID)
			}
		}
		m.mu.Unlock()

		m.publishTaskTypes(ctx, runOps)
		m.reapFinishedOps(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.DriverInterval):
		}
	}
}

// submitTask hands a task callable to the worker pool. Submission is
// best-effort at-most-once per driver round per op; duplicates are tolerated
// because the tablet RPC is idempotent at the (opID, taskType) level.
func (m *Manager) submitTask(task *Task) {
	select {
	case m.taskCh <- task:
	default:
		m.logger.Warn("task queue full, retry next round", zap.Uint64("opID", task.OpID))
	}
}

// publishTaskTypes rewrites the durable node of each listed op with its
// current head task type, so recovery resumes at the correct step. Runs after
// the scheduling decisions, establishing a happens-before between the state
// decision and the durable publish.
func (m *Manager) publishTaskTypes(ctx context.Context, opIDs []uint64) {
	for _, opID := range opIDs {
		m.mu.Lock()
		op, ok := m.taskMap[opID]
		if !ok || len(op.Tasks) == 0 {
			m.mu.Unlock()
			m.logger.Warn("cannot find op to publish", zap.Uint64("opID", opID))
			continue
		}
		op.OpInfo.TaskType = op.Tasks[0].TaskType
		value, err := encodeOpInfo(&op.OpInfo)
		m.mu.Unlock()
		if err != nil {
			m.logger.Error("encode op info failed", zap.Uint64("opID", opID), zap.Error(err))
			continue
		}

		if err := m.storage.SetValue(ctx, storage.OpTaskKey(opID), value); err != nil {
			m.logger.Warn("publish op status failed", zap.Uint64("opID", opID), zap.Error(err))
		}
	}
}

// reapFinishedOps removes ops whose FIFO is empty: every healthy tablet must
// acknowledge DeleteOPTask before the durable node and the in-memory entry
// go away. Any failure keeps the op for the next round.
func (m *Manager) reapFinishedOps(ctx context.Context) {
	m.mu.Lock()
	var doneOps []uint64
	for opID, op := range m.taskMap {
		if len(op.Tasks) == 0 {
			doneOps = append(doneOps, opID)
		}
	}
	if len(doneOps) == 0 {
		m.mu.Unlock()
		return
	}
	clients := m.healthyClientsLocked()
	m.mu.Unlock()

	hasFailed := false
	for _, client := range clients {
		if err := client.DeleteOPTask(ctx, doneOps); err != nil {
			m.logger.Warn("tablet delete op failed", zap.String("endpoint", client.Endpoint()), zap.Error(err))
			hasFailed = true
		}
	}
	if hasFailed {
		return
	}

	for _, opID := range doneOps {
		if err := m.storage.Delete(ctx, storage.OpTaskKey(opID)); err != nil {
			m.logger.Warn("delete op node failed", zap.Uint64("opID", opID), zap.Error(err))
			continue
		}
		m.mu.Lock()
		delete(m.taskMap, opID)
		m.mu.Unlock()
		m.logger.Info("operation reaped", zap.Uint64("opID", opID))
	}
}
