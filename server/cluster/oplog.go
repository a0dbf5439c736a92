// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cluster

import (
	"context"
	"encoding/json"

	"github.com/TabletDB/tabletmeta/server/storage"
	"github.com/TabletDB/tabletmeta/server/tablet"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MakeSnapshot creates a snapshot operation for one partition of a table:
// resolve the partition's tablet, check it is healthy, durably allocate the
// next op id, persist the op node and only then expose the op to the task
// engine.
func (m *Manager) MakeSnapshot(ctx context.Context, name string, pid uint32) error {
	if !m.running() {
		return ErrNotLeader
	}

	m.mu.Lock()
	meta, ok := m.tables[name]
	if !ok {
		m.mu.Unlock()
		return errors.WithMessagef(ErrGetTableInfo, "name:%s", name)
	}
	tid := meta.TID
	endpoint := ""
	for _, partition := range meta.TablePartition {
		if partition.PID == pid && partition.IsLeader {
			endpoint = partition.Endpoint
			break
		}
	}
	if endpoint == "" {
		m.mu.Unlock()
		return errors.WithMessagef(ErrPartitionNotExist, "name:%s, pid:%d", name, pid)
	}
	info, ok := m.tablets[endpoint]
	if !ok || info.State != TabletStateHealthy {
		m.mu.Unlock()
		return errors.WithMessagef(ErrTabletNotOnline, "endpoint:%s", endpoint)
	}
	client := info.Client
	m.mu.Unlock()

	opID, err := m.allocOpID(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(MakeSnapshotPayload{Name: name, PID: pid})
	if err != nil {
		return errors.WithMessage(err, "marshal snapshot payload")
	}

	op := &OPData{
		OpInfo: OpInfo{
			OpID:     opID,
			OpType:   OpTypeMakeSnapshot,
			TaskType: tablet.TaskTypeMakeSnapshot,
			Data:     payload,
		},
	}
	task := newTask(opID, OpTypeMakeSnapshot, tablet.TaskTypeMakeSnapshot, endpoint, func(ctx context.Context) error {
		return client.MakeSnapshot(ctx, tid, pid)
	})
	op.Tasks = append(op.Tasks, task)

	if err := m.createOp(ctx, op); err != nil {
		return err
	}

	m.logger.Info("snapshot op created",
		zap.Uint64("opID", opID), zap.String("name", name), zap.Uint32("tid", tid), zap.Uint32("pid", pid))
	return nil
}

// allocOpID durably advances the op index and returns the allocated id, which
// always equals the value now stored durably.
func (m *Manager) allocOpID(ctx context.Context) (uint64, error) {
	m.allocMu.Lock()
	defer m.allocMu.Unlock()

	m.mu.Lock()
	next := m.opIndexCached + 1
	m.mu.Unlock()

	if err := m.opIndex.Store(ctx, next); err != nil {
		return 0, ErrSetOpIndexNode.WithCause(err)
	}

	m.mu.Lock()
	m.opIndexCached = next
	m.mu.Unlock()
	return next, nil
}

// createOp persists the op node and then inserts the op into the in-memory
// map, waking the driver.
func (m *Manager) createOp(ctx context.Context, op *OPData) error {
	value, err := encodeOpInfo(&op.OpInfo)
	if err != nil {
		return err
	}
	if err := m.storage.Create(ctx, storage.OpTaskKey(op.OpInfo.OpID), value); err != nil {
		return ErrCreateOpNode.WithCause(err)
	}

	m.mu.Lock()
	m.taskMap[op.OpInfo.OpID] = op
	m.cv.Broadcast()
	m.mu.Unlock()
	return nil
}

// loadTables rehydrates the catalog from the table directory.
func (m *Manager) loadTables(ctx context.Context) error {
	children, err := m.storage.ListChildren(ctx, storage.PathTable)
	if err != nil {
		return errors.WithMessage(err, "list table entries")
	}

	loaded := 0
	for _, name := range children {
		// The data child is the index subtree, not a table.
		if name == storage.ReservedTableChild {
			continue
		}
		value, err := m.storage.GetValue(ctx, storage.TableKey(name))
		if err != nil {
			return errors.WithMessagef(err, "load table entry, name:%s", name)
		}
		meta := &TableMeta{}
		if err := json.Unmarshal([]byte(value), meta); err != nil {
			return ErrDecodeTableNode.WithCausef("name:%s, value:%s", name, value)
		}
		m.mu.Lock()
		m.tables[meta.Name] = meta
		m.mu.Unlock()
		loaded++
	}
	m.logger.Info("table catalog rehydrated", zap.Int("tables", loaded))
	return nil
}

// loadOps rehydrates the op log. Each durable op node carries the task type
// currently at the head of its FIFO, so the rebuilt op resumes at the correct
// step; the poller then reconciles its status against the tablets.
func (m *Manager) loadOps(ctx context.Context) error {
	children, err := m.storage.ListChildren(ctx, storage.PathOpTask)
	if err != nil {
		return errors.WithMessage(err, "list op nodes")
	}

	restored := 0
	for _, child := range children {
		value, err := m.storage.GetValue(ctx, storage.PathOpTask+"/"+child)
		if err != nil {
			return errors.WithMessagef(err, "load op node, id:%s", child)
		}
		opInfo, err := decodeOpInfo(value)
		if err != nil {
			m.logger.Error("skip undecodable op node", zap.String("id", child), zap.Error(err))
			continue
		}

		op, err := m.restoreOp(opInfo)
		if err != nil {
			// The durable node stays; a later leader retries after the catalog
			// or registry catches up.
			m.logger.Error("skip unrestorable op", zap.Uint64("opID", opInfo.OpID), zap.Error(err))
			continue
		}

		m.mu.Lock()
		m.taskMap[op.OpInfo.OpID] = op
		m.cv.Broadcast()
		m.mu.Unlock()
		restored++
	}
	m.logger.Info("op log rehydrated", zap.Int("ops", restored))
	return nil
}

// restoreOp rebuilds the task FIFO of a recovered op by resolving its user
// payload against the catalog and the registry. Tasks are bound at restore
// time, which keeps the durable form free of callables and replay-safe
// across leader transitions.
func (m *Manager) restoreOp(opInfo *OpInfo) (*OPData, error) {
	op := &OPData{OpInfo: *opInfo}

	switch opInfo.OpType {
	case OpTypeMakeSnapshot:
		payload := MakeSnapshotPayload{}
		if err := json.Unmarshal(opInfo.Data, &payload); err != nil {
			return nil, ErrDecodeOpNode.WithCausef("opID:%d", opInfo.OpID)
		}

		m.mu.Lock()
		meta, ok := m.tables[payload.Name]
		if !ok {
			m.mu.Unlock()
			return nil, errors.WithMessagef(ErrGetTableInfo, "restore op, name:%s", payload.Name)
		}
		tid := meta.TID
		endpoint := ""
		for _, partition := range meta.TablePartition {
			if partition.PID == payload.PID && partition.IsLeader {
				endpoint = partition.Endpoint
				break
			}
		}
		if endpoint == "" {
			m.mu.Unlock()
			return nil, errors.WithMessagef(ErrPartitionNotExist, "restore op, name:%s, pid:%d", payload.Name, payload.PID)
		}
		client := m.tabletClientLocked(endpoint)
		m.mu.Unlock()

		pid := payload.PID
		op.Tasks = append(op.Tasks, newTask(opInfo.OpID, opInfo.OpType, tablet.TaskTypeMakeSnapshot, endpoint, func(ctx context.Context) error {
			return client.MakeSnapshot(ctx, tid, pid)
		}))
		return op, nil

	case OpTypeCreateTablePartition:
		payload := CreateTablePartitionPayload{}
		if err := json.Unmarshal(opInfo.Data, &payload); err != nil {
			return nil, ErrDecodeOpNode.WithCausef("opID:%d", opInfo.OpID)
		}

		m.mu.Lock()
		client := m.tabletClientLocked(payload.Endpoint)
		m.mu.Unlock()

		op.Tasks = append(op.Tasks, newTask(opInfo.OpID, opInfo.OpType, tablet.TaskTypeCreateTablePartition, payload.Endpoint, createTablePartitionAction(client, payload)))
		return op, nil
	}

	return nil, ErrDecodeOpNode.WithCausef("unknown op type, opID:%d, opType:%s", opInfo.OpID, opInfo.OpType)
}

func createTablePartitionAction(client tablet.Client, payload CreateTablePartitionPayload) func(ctx context.Context) error {
	request := tablet.CreateTableRequest{
		Name:             payload.Name,
		TID:              payload.TID,
		PID:              payload.PID,
		TTL:              payload.TTL,
		IsLeader:         payload.IsLeader,
		ReplicaEndpoints: payload.ReplicaEndpoints,
	}
	return func(ctx context.Context) error {
		return client.CreateTable(ctx, request)
	}
}

func encodeOpInfo(opInfo *OpInfo) (string, error) {
	bytes, err := json.Marshal(opInfo)
	if err != nil {
		return "", errors.WithMessage(err, "encode op info")
	}
	return string(bytes), nil
}

func decodeOpInfo(value string) (*OpInfo, error) {
	opInfo := &OpInfo{}
	if err := json.Unmarshal([]byte(value), opInfo); err != nil {
		return nil, ErrDecodeOpNode.WithCausef("value:%s", value)
	}
	return opInfo, nil
}
