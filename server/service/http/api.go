// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/TabletDB/tabletmeta/pkg/coderr"
	"github.com/TabletDB/tabletmeta/pkg/log"
	"github.com/TabletDB/tabletmeta/server/cluster"
	"github.com/TabletDB/tabletmeta/server/limiter"
	"github.com/TabletDB/tabletmeta/server/member"
	"github.com/TabletDB/tabletmeta/server/status"
	"go.uber.org/zap"
)

func NewAPI(clusterManager *cluster.Manager, serverStatus *status.ServerStatus, flowLimiter *limiter.FlowLimiter, member *member.Member) *API {
	return &API{
		clusterManager: clusterManager,
		serverStatus:   serverStatus,
		flowLimiter:    flowLimiter,
		member:         member,
	}
}

func (a *API) NewAPIRouter() *Router {
	router := New().WithPrefix(apiPrefix).WithInstrumentation(printRequestInsmt)

	// Register API.
	router.Get("/tablets", wrap(a.showTablet))
	router.Post("/table", wrap(a.createTable))
	router.Post("/snapshot", wrap(a.makeSnapshot))
	router.Get("/health", wrap(a.health))
	router.Get("/leader", wrap(a.getLeader))

	return router
}

// showTablet is served by leader and standby alike.
func (a *API) showTablet(req *http.Request) apiFuncResult {
	rows := a.clusterManager.ShowTablet(req.Context())
	return okResult(rows)
}

func (a *API) createTable(req *http.Request) apiFuncResult {
	// Since there may be too many table creation requests, a flow limiter is added here.
	if !a.flowLimiter.Allow() {
		return errResult(ErrFlowLimit)
	}

	var createTableReq CreateTableRequest
	err := json.NewDecoder(req.Body).Decode(&createTableReq)
	if err != nil {
		return errResult(ErrParseRequest.WithCause(err))
	}

	log.Info("[CreateTable]", zap.String("tableName", createTableReq.TableMeta.Name))

	if err := a.clusterManager.CreateTable(req.Context(), createTableReq.TableMeta); err != nil {
		log.Error("create table failed", zap.String("tableName", createTableReq.TableMeta.Name), zap.Error(err))
		return errResult(err)
	}
	return okResult(nil)
}

func (a *API) makeSnapshot(req *http.Request) apiFuncResult {
	var makeSnapshotReq MakeSnapshotRequest
	err := json.NewDecoder(req.Body).Decode(&makeSnapshotReq)
	if err != nil {
		return errResult(ErrParseRequest.WithCause(err))
	}

	log.Info("[MakeSnapshot]", zap.String("tableName", makeSnapshotReq.Name), zap.Uint32("pid", makeSnapshotReq.PID))

	if err := a.clusterManager.MakeSnapshot(req.Context(), makeSnapshotReq.Name, makeSnapshotReq.PID); err != nil {
		log.Error("make snapshot failed", zap.String("tableName", makeSnapshotReq.Name), zap.Uint32("pid", makeSnapshotReq.PID), zap.Error(err))
		return errResult(err)
	}
	return okResult(nil)
}

func (a *API) health(_ *http.Request) apiFuncResult {
	if a.serverStatus.IsRunning() {
		return okResult(HealthResponse{Status: "leader"})
	}
	return okResult(HealthResponse{Status: "standby"})
}

func (a *API) getLeader(req *http.Request) apiFuncResult {
	addr, err := a.member.GetLeaderAddr(req.Context())
	if err != nil {
		log.Error("get leader addr failed", zap.Error(err))
		return errResult(ErrGetLeader.WithCause(err))
	}
	return okResult(LeaderResponse{LeaderEndpoint: addr.LeaderEndpoint, IsLocal: addr.IsLocal})
}

// printRequestInsmt used for printing every request information.
func printRequestInsmt(handlerName string, handler http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		body := ""
		bodyByte, err := io.ReadAll(request.Body)
		if err != nil {
			log.Error("read request body failed", zap.Error(err))
			return
		}
		body = string(bodyByte)
		newBody := io.NopCloser(bytes.NewReader(bodyByte))
		request.Body = newBody
		log.Info("receive http request", zap.String("handlerName", handlerName), zap.String("client host", request.RemoteAddr), zap.String("method", request.Method), zap.String("body", body))
		handler.ServeHTTP(writer, request)
	}
}

func respond(w http.ResponseWriter, data interface{}) {
	b, err := json.Marshal(&response{
		Code: codeOK,
		Msg:  msgOK,
		Data: data,
	})
	if err != nil {
		log.Error("marshal json response failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if n, err := w.Write(b); err != nil {
		log.Error("write response failed", zap.Int("msg", n), zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, apiErr error) {
	msg := apiErr.Error()
	httpCode := http.StatusInternalServerError
	if cerr, ok := coderr.GetCause(apiErr); ok {
		msg = cerr.Desc()
		httpCode = cerr.Code().ToHTTPCode()
	}

	b, err := json.Marshal(&response{
		Code: codeError,
		Msg:  msg,
	})
	if err != nil {
		log.Error("marshal json response failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	if n, err := w.Write(b); err != nil {
		log.Error("write response failed", zap.Int("msg", n), zap.Error(err))
	}
}

func wrap(f apiFunc) http.HandlerFunc {
	hf := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := f(r)
		if result.err != nil {
			respondError(w, result.err)
			return
		}
		respond(w, result.data)
	})
	return hf
}
