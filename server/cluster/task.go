// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cluster

import (
	"context"

	"github.com/TabletDB/tabletmeta/pkg/log"
	"github.com/TabletDB/tabletmeta/server/tablet"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	taskEventFinish = "finish"
	taskEventFail   = "fail"
)

// Task is a single step of an operation, executed as a remote call against
// one tablet. Its status follows a one-way machine: Doing is the only source
// state, Done and Failed are terminal. Stale or regressive poller reports are
// rejected by the machine and ignored.
type Task struct {
	OpID     uint64
	OpType   OpType
	TaskType tablet.TaskType
	Endpoint string

	status *fsm.FSM
	// run performs the tablet-side RPC for this task.
	run func(ctx context.Context) error
}

func newTask(opID uint64, opType OpType, taskType tablet.TaskType, endpoint string, run func(ctx context.Context) error) *Task {
	return &Task{
		OpID:     opID,
		OpType:   opType,
		TaskType: taskType,
		Endpoint: endpoint,
		status: fsm.NewFSM(
			string(tablet.TaskStatusDoing),
			fsm.Events{
				{Name: taskEventFinish, Src: []string{string(tablet.TaskStatusDoing)}, Dst: string(tablet.TaskStatusDone)},
				{Name: taskEventFail, Src: []string{string(tablet.TaskStatusDoing)}, Dst: string(tablet.TaskStatusFailed)},
			},
			fsm.Callbacks{},
		),
		run: run,
	}
}

func (t *Task) Status() tablet.TaskStatus {
	return tablet.TaskStatus(t.status.Current())
}

// ApplyStatus copies a tablet-reported status into the task. Transitions out
// of a terminal state are rejected by the machine.
func (t *Task) ApplyStatus(reported tablet.TaskStatus) {
	var event string
	switch reported {
	case tablet.TaskStatusDone:
		event = taskEventFinish
	case tablet.TaskStatusFailed:
		event = taskEventFail
	case tablet.TaskStatusDoing:
		return
	default:
		log.Warn("unknown task status reported", zap.String("status", string(reported)), zap.Uint64("opID", t.OpID))
		return
	}

	if err := t.status.Event(event); err != nil {
		log.Debug("ignore stale task status report",
			zap.Uint64("opID", t.OpID),
			zap.String("taskType", string(t.TaskType)),
			zap.String("current", t.status.Current()),
			zap.String("reported", string(reported)))
	}
}
