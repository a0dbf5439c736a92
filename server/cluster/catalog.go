// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cluster

import (
	"context"
	"encoding/json"

	"github.com/TabletDB/tabletmeta/pkg/coderr"
	"github.com/TabletDB/tabletmeta/server/storage"
	"github.com/TabletDB/tabletmeta/server/tablet"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CreateTable registers a new table in the catalog:
//  1. Reject duplicate names.
//  2. Read the durable table index and write back index+1; nothing in memory
//     changes if either step fails, so a crash leaves at worst an orphan
//     durable record.
//  3. Persist the catalog node keyed by name with tid = the read index.
//  4. Insert into the in-memory catalog and enqueue one durable
//     create-partition op per partition replica.
func (m *Manager) CreateTable(ctx context.Context, meta TableMeta) error {
	if !m.running() {
		return ErrNotLeader
	}
	if err := validateTableMeta(meta); err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.tables[meta.Name]; ok {
		m.mu.Unlock()
		return errors.WithMessagef(ErrTableAlreadyExists, "name:%s", meta.Name)
	}
	m.mu.Unlock()

	tableIdx, err := m.tableIndex.Load(ctx)
	if err != nil {
		return ErrGetTableIndexNode.WithCause(err)
	}
	if err := m.tableIndex.Store(ctx, tableIdx+1); err != nil {
		return ErrSetTableIndexNode.WithCause(err)
	}

	meta.TID = uint32(tableIdx)
	value, err := json.Marshal(&meta)
	if err != nil {
		return errors.WithMessage(err, "marshal table meta")
	}
	if err := m.storage.Create(ctx, storage.TableKey(meta.Name), string(value)); err != nil {
		if coderr.Is(err, coderr.Conflict) {
			return errors.WithMessagef(ErrTableAlreadyExists, "name:%s", meta.Name)
		}
		return ErrCreateTableNode.WithCause(err)
	}

	m.mu.Lock()
	stored := meta
	m.tables[meta.Name] = &stored
	m.mu.Unlock()

	m.logger.Info("table created", zap.String("name", meta.Name), zap.Uint32("tid", meta.TID))

	// The tablet-side partition creation goes through the op log like the
	// snapshot path, so failover resumes it instead of losing it.
	m.createTablePartitionOps(ctx, meta)
	return nil
}

// validateTableMeta checks the partition invariants: (pid, endpoint) pairs
// are unique and every partition has exactly one leader replica.
func validateTableMeta(meta TableMeta) error {
	if meta.Name == "" || len(meta.TablePartition) == 0 {
		return ErrInvalidTablePartition.WithCausef("name:%s, partitions:%d", meta.Name, len(meta.TablePartition))
	}

	leaders := make(map[uint32]int)
	replicas := make(map[uint32]map[string]struct{})
	for _, partition := range meta.TablePartition {
		if partition.Endpoint == "" {
			return ErrInvalidTablePartition.WithCausef("empty endpoint, pid:%d", partition.PID)
		}
		if _, ok := replicas[partition.PID]; !ok {
			replicas[partition.PID] = make(map[string]struct{})
		}
		if _, ok := replicas[partition.PID][partition.Endpoint]; ok {
			return ErrInvalidTablePartition.WithCausef("duplicated replica, pid:%d, endpoint:%s", partition.PID, partition.Endpoint)
		}
		replicas[partition.PID][partition.Endpoint] = struct{}{}
		if partition.IsLeader {
			leaders[partition.PID]++
		}
	}
	for pid := range replicas {
		if leaders[pid] != 1 {
			return ErrInvalidTablePartition.WithCausef("pid:%d needs exactly one leader, got:%d", pid, leaders[pid])
		}
	}
	return nil
}

// createTablePartitionOps enqueues one durable op per partition replica,
// followers before leaders so a leader op always carries the full replica
// list. Individual failures are logged and left to operators; the table
// itself is already durable.
func (m *Manager) createTablePartitionOps(ctx context.Context, meta TableMeta) {
	followersByPID := make(map[uint32][]string)
	for _, partition := range meta.TablePartition {
		if !partition.IsLeader {
			followersByPID[partition.PID] = append(followersByPID[partition.PID], partition.Endpoint)
		}
	}

	ordered := make([]TablePartition, 0, len(meta.TablePartition))
	for _, partition := range meta.TablePartition {
		if !partition.IsLeader {
			ordered = append(ordered, partition)
		}
	}
	for _, partition := range meta.TablePartition {
		if partition.IsLeader {
			ordered = append(ordered, partition)
		}
	}

	for _, partition := range ordered {
		payload := CreateTablePartitionPayload{
			Name:     meta.Name,
			TID:      meta.TID,
			PID:      partition.PID,
			TTL:      meta.TTL,
			Endpoint: partition.Endpoint,
			IsLeader: partition.IsLeader,
		}
		if partition.IsLeader {
			payload.ReplicaEndpoints = followersByPID[partition.PID]
		}

		if err := m.enqueueCreateTablePartitionOp(ctx, payload); err != nil {
			m.logger.Error("enqueue create partition op failed",
				zap.String("name", meta.Name), zap.Uint32("pid", partition.PID),
				zap.String("endpoint", partition.Endpoint), zap.Error(err))
		}
	}
}

func (m *Manager) enqueueCreateTablePartitionOp(ctx context.Context, payload CreateTablePartitionPayload) error {
	opID, err := m.allocOpID(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.WithMessage(err, "marshal create partition payload")
	}

	m.mu.Lock()
	client := m.tabletClientLocked(payload.Endpoint)
	m.mu.Unlock()

	op := &OPData{
		OpInfo: OpInfo{
			OpID:     opID,
			OpType:   OpTypeCreateTablePartition,
			TaskType: tablet.TaskTypeCreateTablePartition,
			Data:     data,
		},
	}
	op.Tasks = append(op.Tasks, newTask(opID, OpTypeCreateTablePartition, tablet.TaskTypeCreateTablePartition, payload.Endpoint, createTablePartitionAction(client, payload)))

	return m.createOp(ctx, op)
}
