// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cluster

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TabletDB/tabletmeta/server/id"
	"github.com/TabletDB/tabletmeta/server/status"
	"github.com/TabletDB/tabletmeta/server/storage"
	"github.com/TabletDB/tabletmeta/server/tablet"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultTaskQueueSize = 64

// Options tunes the background activities of the Manager.
type Options struct {
	// GetTaskStatusInterval is the period of the tablet status poller.
	GetTaskStatusInterval time.Duration
	// DriverInterval paces the task driver between scheduling rounds.
	DriverInterval time.Duration
	// TaskWorkers is the size of the pool running task callables.
	TaskWorkers int
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.GetTaskStatusInterval <= 0 {
		opts.GetTaskStatusInterval = time.Second * 2
	}
	if opts.DriverInterval <= 0 {
		opts.DriverInterval = time.Millisecond * 100
	}
	if opts.TaskWorkers <= 0 {
		opts.TaskWorkers = 2
	}
	return opts
}

// Manager owns the in-memory model of the cluster: the tablet registry, the
// table catalog and the operation log, plus the task engine driving ops
// against tablets. The coordination store holds the durable truth; on
// leadership transfer a new leader reconstructs this state from it.
//
// A single coarse mutex guards all three structures, which keeps the
// cross-structure invariants of op creation simple at this scale. The mutex
// is never held across storage or tablet RPC I/O.
type Manager struct {
	logger        *zap.Logger
	storage       storage.Storage
	clientFactory tablet.Factory
	serverStatus  *status.ServerStatus
	opts          Options

	tableIndex *id.Index
	opIndex    *id.Index

	// mu guards tablets, tables, taskMap and opIndexCached. cv signals the
	// driver when the op log becomes non-empty and on demotion.
	mu      sync.Mutex
	cv      *sync.Cond
	tablets map[string]*TabletInfo
	tables  map[string]*TableMeta
	taskMap map[uint64]*OPData
	// opIndexCached mirrors the durable op index; it is advanced only after
	// the durable write succeeded.
	opIndexCached uint64

	// allocMu serializes op id allocation so the durable bump and the cache
	// update form one critical section without holding mu across I/O.
	allocMu sync.Mutex

	bgWg     sync.WaitGroup
	bgCancel context.CancelFunc
	taskCh   chan *Task
}

func NewManager(logger *zap.Logger, s storage.Storage, factory tablet.Factory, serverStatus *status.ServerStatus, opts Options) *Manager {
	m := &Manager{
		logger:        logger,
		storage:       s,
		clientFactory: factory,
		serverStatus:  serverStatus,
		opts:          opts.withDefaults(),

		tableIndex: id.NewIndex(logger, s, storage.PathTableIndex),
		opIndex:    id.NewIndex(logger, s, storage.PathOpIndex),

		tablets: make(map[string]*TabletInfo),
		tables:  make(map[string]*TableMeta),
		taskMap: make(map[uint64]*OPData),
	}
	m.cv = sync.NewCond(&m.mu)
	return m
}

// Start makes this instance the acting leader: recover durable state, mark
// the process running and launch the task engine. Invoked once per lock
// acquisition.
func (m *Manager) Start(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(context.Background())
	m.bgCancel = cancel
	m.taskCh = make(chan *Task, defaultTaskQueueSize)

	if err := m.recover(ctx, bgCtx); err != nil {
		// Mirror the source's tolerance: an incomplete recovery degrades to an
		// empty in-memory state reconciled by the poller, it does not refuse
		// the leadership.
		m.logger.Error("recover from durable state failed", zap.Error(err))
	}

	m.serverStatus.Set(status.StatusRunning)

	for i := 0; i < m.opts.TaskWorkers; i++ {
		m.bgWg.Add(1)
		go func() {
			defer m.bgWg.Done()
			m.runTaskWorker(bgCtx)
		}()
	}

	m.bgWg.Add(1)
	go func() {
		defer m.bgWg.Done()
		m.updateTaskStatusLoop(bgCtx)
	}()

	m.bgWg.Add(1)
	go func() {
		defer m.bgWg.Done()
		m.processTask(bgCtx)
	}()

	m.logger.Info("become the leader name server")
}

// Stop demotes this instance to a passive standby. Background activities exit
// at their next safe check; in-flight tablet RPCs are allowed to complete.
func (m *Manager) Stop() {
	// Do not clobber a Terminated status at process shutdown.
	if m.serverStatus.IsRunning() {
		m.serverStatus.Set(status.StatusWaiting)
	}
	if m.bgCancel != nil {
		m.bgCancel()
	}
	// Bound demotion latency for the driver parked on the condition variable.
	m.cv.Broadcast()
	m.bgWg.Wait()
	m.logger.Info("become the standby name server")
}

// recover reloads the durable indices, seeds the tablet registry, rehydrates
// the catalog and the op log and arms the membership watch. bgCtx outlives
// recovery and bounds the watch.
func (m *Manager) recover(ctx context.Context, bgCtx context.Context) error {
	tableIdx, err := m.tableIndex.LoadOrInit(ctx)
	if err != nil {
		return errors.WithMessage(err, "recover table index")
	}
	opIdx, err := m.opIndex.LoadOrInit(ctx)
	if err != nil {
		return errors.WithMessage(err, "recover op index")
	}
	m.logger.Info("indices recovered", zap.Uint64("tableIndex", tableIdx), zap.Uint64("opIndex", opIdx))

	m.mu.Lock()
	m.opIndexCached = opIdx
	m.mu.Unlock()

	endpoints, err := m.storage.ListChildren(ctx, storage.PathNodes)
	if err != nil {
		return errors.WithMessage(err, "list tablet endpoints")
	}

	m.mu.Lock()
	m.updateTablets(endpoints)
	m.mu.Unlock()

	if err := m.loadTables(ctx); err != nil {
		return errors.WithMessage(err, "rehydrate table catalog")
	}
	if err := m.loadOps(ctx); err != nil {
		return errors.WithMessage(err, "rehydrate op log")
	}

	snapshots, err := m.storage.WatchChildren(bgCtx, storage.PathNodes)
	if err != nil {
		return errors.WithMessage(err, "watch tablet endpoints")
	}
	m.bgWg.Add(1)
	go func() {
		defer m.bgWg.Done()
		m.watchTablets(snapshots)
	}()

	return nil
}

// watchTablets consumes membership snapshots until the watch channel closes
// on demotion.
func (m *Manager) watchTablets(snapshots <-chan []string) {
	for snapshot := range snapshots {
		m.mu.Lock()
		m.updateTablets(snapshot)
		m.mu.Unlock()
	}
}

// updateTablets reconciles the registry against a full membership snapshot.
// The caller must hold mu; watch handling composes with higher-level state
// mutations in the same critical section.
func (m *Manager) updateTablets(endpoints []string) {
	alive := make(map[string]struct{}, len(endpoints))
	for _, endpoint := range endpoints {
		alive[endpoint] = struct{}{}

		info, ok := m.tablets[endpoint]
		if !ok {
			// Register a new tablet.
			m.tablets[endpoint] = &TabletInfo{
				Endpoint: endpoint,
				State:    TabletStateHealthy,
				CTime:    nowMilli(),
				Client:   m.clientFactory(endpoint),
			}
			m.logger.Info("healthy tablet registered", zap.String("endpoint", endpoint))
			continue
		}
		if info.State != TabletStateHealthy {
			info.CTime = nowMilli()
			m.logger.Info("tablet back to healthy", zap.String("endpoint", endpoint))
		}
		info.State = TabletStateHealthy
	}

	// Endpoints absent from the snapshot go offline but are never removed, so
	// history survives membership flapping.
	for endpoint, info := range m.tablets {
		if _, ok := alive[endpoint]; !ok {
			if info.State != TabletStateOffline {
				m.logger.Info("tablet offline", zap.String("endpoint", endpoint))
			}
			info.State = TabletStateOffline
		}
	}
}

// tabletClientLocked resolves the client handle of an endpoint, registering
// an offline entry for endpoints observed only through durable op state.
func (m *Manager) tabletClientLocked(endpoint string) tablet.Client {
	if info, ok := m.tablets[endpoint]; ok {
		return info.Client
	}
	info := &TabletInfo{
		Endpoint: endpoint,
		State:    TabletStateOffline,
		CTime:    nowMilli(),
		Client:   m.clientFactory(endpoint),
	}
	m.tablets[endpoint] = info
	return info.Client
}

// ShowTablet snapshots the registry.
func (m *Manager) ShowTablet(_ context.Context) []TabletStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := nowMilli()
	rows := make([]TabletStatus, 0, len(m.tablets))
	for endpoint, info := range m.tablets {
		rows = append(rows, TabletStatus{
			Endpoint: endpoint,
			State:    string(info.State),
			AgeMs:    now - info.CTime,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Endpoint < rows[j].Endpoint })
	return rows
}

// GetTable returns the catalog entry of a table.
func (m *Manager) GetTable(name string) (TableMeta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.tables[name]
	if !ok {
		return TableMeta{}, false
	}
	return *meta, true
}

func (m *Manager) running() bool {
	return m.serverStatus.IsRunning()
}

// healthyClientsLocked snapshots the clients of all healthy tablets.
func (m *Manager) healthyClientsLocked() []tablet.Client {
	clients := make([]tablet.Client, 0, len(m.tablets))
	for _, info := range m.tablets {
		if info.State != TabletStateHealthy {
			continue
		}
		clients = append(clients, info.Client)
	}
	return clients
}
