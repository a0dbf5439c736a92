// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package http

import (
	"net/http"

	"github.com/TabletDB/tabletmeta/server/cluster"
	"github.com/TabletDB/tabletmeta/server/limiter"
	"github.com/TabletDB/tabletmeta/server/member"
	"github.com/TabletDB/tabletmeta/server/status"
)

const (
	codeOK    = 0
	codeError = -1
	msgOK     = "ok"

	apiPrefix string = "/api/v1"
)

// response is the wire shape of every admin RPC reply: code 0 with msg "ok"
// on success, code -1 with a stable message otherwise.
type response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

type apiFuncResult struct {
	data interface{}
	err  error
}

func okResult(data interface{}) apiFuncResult {
	return apiFuncResult{
		data: data,
		err:  nil,
	}
}

func errResult(err error) apiFuncResult {
	return apiFuncResult{
		data: nil,
		err:  err,
	}
}

type apiFunc func(r *http.Request) apiFuncResult

type API struct {
	clusterManager *cluster.Manager
	serverStatus   *status.ServerStatus
	flowLimiter    *limiter.FlowLimiter
	member         *member.Member
}

// MakeSnapshotRequest asks for a snapshot of one partition of a table.
type MakeSnapshotRequest struct {
	Name string `json:"name"`
	PID  uint32 `json:"pid"`
}

// CreateTableRequest carries the table meta to register. The tid field is
// assigned by the server and ignored on input.
type CreateTableRequest struct {
	TableMeta cluster.TableMeta `json:"tableMeta"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type LeaderResponse struct {
	LeaderEndpoint string `json:"leaderEndpoint"`
	IsLocal        bool   `json:"isLocal"`
}
