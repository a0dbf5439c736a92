// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cluster

import (
	"encoding/json"
	"time"

	"github.com/TabletDB/tabletmeta/server/tablet"
)

// TabletState is the health state of a registered tablet.
type TabletState string

const (
	TabletStateHealthy TabletState = "Healthy"
	TabletStateOffline TabletState = "Offline"
)

// TabletInfo is the registry entry for one tablet endpoint. Entries are
// created when a previously unknown endpoint shows up in the membership
// directory and are never removed afterwards; absence only flips the state
// to offline. All fields are guarded by the manager's global lock.
type TabletInfo struct {
	Endpoint string
	State    TabletState
	// CTime is the wall time (ms) of the last transition to healthy.
	CTime  int64
	Client tablet.Client
}

// TabletStatus is one row of a ShowTablet reply.
type TabletStatus struct {
	Endpoint string `json:"endpoint"`
	State    string `json:"state"`
	AgeMs    int64  `json:"ageMs"`
}

// TablePartition describes one replica of one partition of a table.
type TablePartition struct {
	PID      uint32 `json:"pid"`
	Endpoint string `json:"endpoint"`
	IsLeader bool   `json:"isLeader"`
}

// TableMeta is the catalog entry of a table. It is also the durable payload
// stored under the table directory, keyed by name.
type TableMeta struct {
	Name           string           `json:"name"`
	TID            uint32           `json:"tid"`
	TTL            uint64           `json:"ttl"`
	TablePartition []TablePartition `json:"tablePartition"`
}

// OpType names a kind of administrative operation.
type OpType string

const (
	OpTypeMakeSnapshot         OpType = "MakeSnapshotOP"
	OpTypeCreateTablePartition OpType = "CreateTablePartitionOP"
)

// OpInfo is the durable metadata of an operation: identity, the task type
// currently at the head of the FIFO, and the serialized user payload the op
// was created from. It is rewritten on every head advance so that recovery
// can resume at the correct step.
type OpInfo struct {
	OpID     uint64          `json:"opID"`
	OpType   OpType          `json:"opType"`
	TaskType tablet.TaskType `json:"taskType"`
	Data     json.RawMessage `json:"data"`
}

// OPData is an in-flight operation: its durable metadata plus the ordered
// FIFO of remaining tasks. The head task is the one currently in flight; the
// operation is complete when the FIFO is empty.
type OPData struct {
	OpInfo OpInfo
	Tasks  []*Task
}

// MakeSnapshotPayload is the user payload of a MakeSnapshotOP.
type MakeSnapshotPayload struct {
	Name string `json:"name"`
	PID  uint32 `json:"pid"`
}

// CreateTablePartitionPayload is the user payload of a CreateTablePartitionOP.
type CreateTablePartitionPayload struct {
	Name             string   `json:"name"`
	TID              uint32   `json:"tid"`
	PID              uint32   `json:"pid"`
	TTL              uint64   `json:"ttl"`
	Endpoint         string   `json:"endpoint"`
	IsLeader         bool     `json:"isLeader"`
	ReplicaEndpoints []string `json:"replicaEndpoints,omitempty"`
}

func nowMilli() int64 {
	return time.Now().UnixMilli()
}
