// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/TabletDB/tabletmeta/pkg/log"
	"github.com/TabletDB/tabletmeta/server/cluster"
	"github.com/TabletDB/tabletmeta/server/config"
	"github.com/TabletDB/tabletmeta/server/limiter"
	"github.com/TabletDB/tabletmeta/server/member"
	httpservice "github.com/TabletDB/tabletmeta/server/service/http"
	"github.com/TabletDB/tabletmeta/server/status"
	"github.com/TabletDB/tabletmeta/server/storage"
	"github.com/TabletDB/tabletmeta/server/tablet"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Server wires the coordination client, the distributed lock, the cluster
// manager and the admin http service together. It satisfies the leadership
// callback interface of the lock module, so the lock module holds only that
// interface and no reference back to the server.
type Server struct {
	ctx         context.Context
	bgJobCtx    context.Context
	bgJobCancel func()
	bgJobWg     sync.WaitGroup

	cfg *config.Config

	etcdClient     *clientv3.Client
	storage        storage.Storage
	member         *member.Member
	leaderWatcher  *member.LeaderWatcher
	serverStatus   *status.ServerStatus
	clusterManager *cluster.Manager
	flowLimiter    *limiter.FlowLimiter
	httpService    *httpservice.Service
}

// CreateServer creates the server instance without starting any services or background jobs.
func CreateServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	srv := &Server{
		ctx:          ctx,
		cfg:          cfg,
		serverStatus: status.NewServerStatus(),
	}
	return srv, nil
}

// Run runs the services and background jobs.
func (srv *Server) Run() error {
	if err := srv.createEtcdClient(); err != nil {
		return err
	}

	srv.storage = storage.NewEtcdStorage(srv.etcdClient, srv.cfg.RootPath, srv.cfg.EtcdCallTimeout())
	srv.member = member.NewMember(srv.cfg.RootPath, srv.cfg.NodeName, srv.cfg.Endpoint, srv.etcdClient, srv.cfg.EtcdCallTimeout())
	srv.leaderWatcher = member.NewLeaderWatcher(srv, srv.member, srv.cfg.LeaseTTLSec)

	srv.clusterManager = cluster.NewManager(
		log.With(zap.String("endpoint", srv.cfg.Endpoint)),
		srv.storage,
		tablet.NewHTTPClient,
		srv.serverStatus,
		cluster.Options{GetTaskStatusInterval: srv.cfg.GetTaskStatusInterval()},
	)

	srv.flowLimiter = limiter.NewFlowLimiter(srv.cfg.FlowLimiter)

	if err := srv.startHTTPService(); err != nil {
		return err
	}

	srv.startBgJobs()

	return nil
}

func (srv *Server) Close() {
	srv.serverStatus.Set(status.Terminated)

	srv.stopBgJobs()

	if srv.clusterManager != nil {
		srv.clusterManager.Stop()
	}

	if srv.httpService != nil {
		if err := srv.httpService.Stop(); err != nil {
			log.Error("fail to stop http service", zap.Error(err))
		}
	}

	if srv.etcdClient != nil {
		if err := srv.etcdClient.Close(); err != nil {
			log.Error("fail to close etcd client", zap.Error(err))
		}
	}
}

func (srv *Server) createEtcdClient() error {
	lgc := zap.NewProductionConfig()
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   srv.cfg.EtcdEndpointList(),
		DialTimeout: srv.cfg.EtcdDialTimeout(),
		LogConfig:   &lgc,
	})
	if err != nil {
		return ErrCreateEtcdClient.WithCause(err)
	}

	srv.etcdClient = client
	return nil
}

func (srv *Server) startHTTPService() error {
	api := httpservice.NewAPI(srv.clusterManager, srv.serverStatus, srv.flowLimiter, srv.member)
	srv.httpService = httpservice.NewHTTPService(srv.cfg.HTTPPort, srv.cfg.HTTPReadTimeout(), srv.cfg.HTTPWriteTimeout(), api.NewAPIRouter())

	go func() {
		if err := srv.httpService.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("http service exited", zap.Error(err))
		}
	}()
	return nil
}

func (srv *Server) startBgJobs() {
	srv.bgJobCtx, srv.bgJobCancel = context.WithCancel(srv.ctx)

	srv.bgJobWg.Add(2)
	go srv.watchLeader()
	go srv.checkCoordinationSession()
}

func (srv *Server) stopBgJobs() {
	if srv.bgJobCancel != nil {
		srv.bgJobCancel()
	}
	srv.bgJobWg.Wait()
}

// watchLeader campaigns for the lock and drives the leadership lifecycle
// through the callbacks below.
func (srv *Server) watchLeader() {
	defer srv.bgJobWg.Done()
	srv.leaderWatcher.Watch(srv.bgJobCtx, srv)
}

// checkCoordinationSession probes the coordination store at the configured
// keep-alive interval. The etcd client re-dials internally; the probe bounds
// the detection latency of a dead session and leaves an audit trail.
func (srv *Server) checkCoordinationSession() {
	defer srv.bgJobWg.Done()

	ticker := time.NewTicker(srv.cfg.KeepAliveCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-srv.bgJobCtx.Done():
			return
		case <-ticker.C:
		}
		if !srv.storage.IsConnected(srv.bgJobCtx) {
			log.Warn("coordination session unreachable", zap.String("endpoints", srv.cfg.EtcdEndpoints))
		}
	}
}

// ShouldStop implements member.WatchContext.
func (srv *Server) ShouldStop() bool {
	return srv.serverStatus.Get() == status.Terminated
}

// AfterElected implements member.LeadershipEventCallbacks: recover durable
// state and start scheduling.
func (srv *Server) AfterElected(ctx context.Context) {
	srv.clusterManager.Start(ctx)
}

// BeforeTransfer implements member.LeadershipEventCallbacks: demote to a
// passive standby.
func (srv *Server) BeforeTransfer(_ context.Context) {
	srv.clusterManager.Stop()
}
