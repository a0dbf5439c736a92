// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/TabletDB/tabletmeta/pkg/coderr"
	"github.com/TabletDB/tabletmeta/pkg/log"
	"github.com/TabletDB/tabletmeta/server/etcdutil"
	"github.com/TabletDB/tabletmeta/server/status"
	"github.com/TabletDB/tabletmeta/server/storage"
	"github.com/TabletDB/tabletmeta/server/tablet"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	testRequestTimeout = time.Second * 10
	testWaitTimeout    = time.Second * 15
	testTickInterval   = time.Millisecond * 20

	testEndpoint1 = "10.0.0.1:9090"
	testEndpoint2 = "10.0.0.2:9090"
)

type fakeTabletClient struct {
	endpoint string

	mu               sync.Mutex
	entries          map[uint64]tablet.TaskStatusEntry
	snapshotCalls    int
	createTableCalls []tablet.CreateTableRequest
	deletedOps       [][]uint64
	failDeleteOp     bool
}

func (c *fakeTabletClient) Endpoint() string { return c.endpoint }

func (c *fakeTabletClient) CreateTable(_ context.Context, request tablet.CreateTableRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createTableCalls = append(c.createTableCalls, request)
	return nil
}

func (c *fakeTabletClient) MakeSnapshot(_ context.Context, _, _ uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshotCalls++
	return nil
}

func (c *fakeTabletClient) GetTaskStatus(_ context.Context) ([]tablet.TaskStatusEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]tablet.TaskStatusEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *fakeTabletClient) DeleteOPTask(_ context.Context, opIDs []uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failDeleteOp {
		return errors.New("fake delete op failure")
	}
	c.deletedOps = append(c.deletedOps, append([]uint64{}, opIDs...))
	return nil
}

func (c *fakeTabletClient) reportTask(opID uint64, taskType tablet.TaskType, taskStatus tablet.TaskStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[opID] = tablet.TaskStatusEntry{OpID: opID, TaskType: taskType, Status: taskStatus}
}

func (c *fakeTabletClient) snapshotCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotCalls
}

func (c *fakeTabletClient) deletedOpBatches() [][]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]uint64{}, c.deletedOps...)
}

type fakeFleet struct {
	mu      sync.Mutex
	clients map[string]*fakeTabletClient
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{clients: make(map[string]*fakeTabletClient)}
}

func (f *fakeFleet) factory(endpoint string) tablet.Client {
	return f.client(endpoint)
}

func (f *fakeFleet) client(endpoint string) *fakeTabletClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.clients[endpoint]; ok {
		return client
	}
	client := &fakeTabletClient{
		endpoint: endpoint,
		entries:  make(map[uint64]tablet.TaskStatusEntry),
	}
	f.clients[endpoint] = client
	return client
}

func prepareManager(t *testing.T) (*Manager, storage.Storage, *fakeFleet, func()) {
	_, client, closeSrv := etcdutil.PrepareEtcdServerAndClient(t)
	s := storage.NewEtcdStorage(client, "/tabletmeta/test", testRequestTimeout)
	fleet := newFakeFleet()
	m := NewManager(log.GetLogger(), s, fleet.factory, status.NewServerStatus(), Options{
		GetTaskStatusInterval: time.Millisecond * 50,
		DriverInterval:        time.Millisecond * 20,
	})
	return m, s, fleet, closeSrv
}

func registerTablets(m *Manager, endpoints ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateTablets(endpoints)
}

func insertTable(m *Manager, meta TableMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := meta
	m.tables[meta.Name] = &stored
}

func testTableMeta(name string) TableMeta {
	return TableMeta{
		Name: name,
		TTL:  0,
		TablePartition: []TablePartition{
			{PID: 0, Endpoint: testEndpoint1, IsLeader: true},
			{PID: 0, Endpoint: testEndpoint2, IsLeader: false},
		},
	}
}

// Registry reconciliation: new endpoints become healthy, absent endpoints go
// offline and are never removed, flapping refreshes ctime.
func TestUpdateTablets(t *testing.T) {
	r := require.New(t)
	m, _, _, closeSrv := prepareManager(t)
	defer closeSrv()

	registerTablets(m, testEndpoint1)
	rows := m.ShowTablet(context.Background())
	r.Len(rows, 1)
	r.Equal(testEndpoint1, rows[0].Endpoint)
	r.Equal(string(TabletStateHealthy), rows[0].State)

	// Second fire with one more endpoint.
	registerTablets(m, testEndpoint1, testEndpoint2)
	rows = m.ShowTablet(context.Background())
	r.Len(rows, 2)
	r.Equal(string(TabletStateHealthy), rows[0].State)
	r.Equal(string(TabletStateHealthy), rows[1].State)

	// Same membership set: no state change, ctime untouched.
	m.mu.Lock()
	ctimeBefore := m.tablets[testEndpoint1].CTime
	m.mu.Unlock()
	registerTablets(m, testEndpoint1, testEndpoint2)
	m.mu.Lock()
	r.Equal(ctimeBefore, m.tablets[testEndpoint1].CTime)
	m.mu.Unlock()

	// Last endpoint removed: everything offline, nothing removed.
	registerTablets(m)
	rows = m.ShowTablet(context.Background())
	r.Len(rows, 2)
	r.Equal(string(TabletStateOffline), rows[0].State)
	r.Equal(string(TabletStateOffline), rows[1].State)

	// Flapping back refreshes ctime and the healthy state.
	time.Sleep(time.Millisecond * 5)
	registerTablets(m, testEndpoint1)
	m.mu.Lock()
	r.GreaterOrEqual(m.tablets[testEndpoint1].CTime, ctimeBefore)
	r.Equal(TabletStateHealthy, m.tablets[testEndpoint1].State)
	m.mu.Unlock()
}

// Cold start: both indices are initialized to 1 and the registry is empty.
func TestColdStart(t *testing.T) {
	r := require.New(t)
	m, s, _, closeSrv := prepareManager(t)
	defer closeSrv()
	ctx := context.Background()

	m.Start(ctx)
	defer m.Stop()

	val, err := s.GetValue(ctx, storage.PathTableIndex)
	r.NoError(err)
	r.Equal("1", val)
	val, err = s.GetValue(ctx, storage.PathOpIndex)
	r.NoError(err)
	r.Equal("1", val)

	r.Empty(m.ShowTablet(ctx))
}

// Scenario: create a table, advance the durable index, reject the duplicate.
func TestCreateTable(t *testing.T) {
	r := require.New(t)
	m, s, _, closeSrv := prepareManager(t)
	defer closeSrv()
	ctx := context.Background()

	m.Start(ctx)
	defer m.Stop()
	registerTablets(m, testEndpoint1, testEndpoint2)

	meta := testTableMeta("t1")
	r.NoError(m.CreateTable(ctx, meta))

	// Durable table index advanced from 1 to 2 and the catalog node holds tid 1.
	val, err := s.GetValue(ctx, storage.PathTableIndex)
	r.NoError(err)
	r.Equal("2", val)

	stored, ok := m.GetTable("t1")
	r.True(ok)
	r.Equal(uint32(1), stored.TID)

	nodeVal, err := s.GetValue(ctx, storage.TableKey("t1"))
	r.NoError(err)
	r.Contains(nodeVal, `"tid":1`)

	// One durable create-partition op per replica.
	children, err := s.ListChildren(ctx, storage.PathOpTask)
	r.NoError(err)
	r.Len(children, 2)

	// Duplicate name: conflict, durable index untouched.
	err = m.CreateTable(ctx, meta)
	r.True(coderr.Is(err, coderr.Conflict))
	r.Equal("table is already exisit!", errors.Cause(err).(coderr.CodeError).Desc())
	val, err = s.GetValue(ctx, storage.PathTableIndex)
	r.NoError(err)
	r.Equal("2", val)
}

func TestCreateTableValidation(t *testing.T) {
	r := require.New(t)
	m, _, _, closeSrv := prepareManager(t)
	defer closeSrv()
	ctx := context.Background()

	m.Start(ctx)
	defer m.Stop()

	// Two leaders for one pid.
	err := m.CreateTable(ctx, TableMeta{
		Name: "bad",
		TablePartition: []TablePartition{
			{PID: 0, Endpoint: testEndpoint1, IsLeader: true},
			{PID: 0, Endpoint: testEndpoint2, IsLeader: true},
		},
	})
	r.True(coderr.Is(err, coderr.BadRequest))

	// Duplicated replica of one pid.
	err = m.CreateTable(ctx, TableMeta{
		Name: "bad",
		TablePartition: []TablePartition{
			{PID: 0, Endpoint: testEndpoint1, IsLeader: true},
			{PID: 0, Endpoint: testEndpoint1, IsLeader: false},
		},
	})
	r.True(coderr.Is(err, coderr.BadRequest))
}

func TestMakeSnapshotValidation(t *testing.T) {
	r := require.New(t)
	m, _, _, closeSrv := prepareManager(t)
	defer closeSrv()
	ctx := context.Background()

	// Not leader yet.
	err := m.MakeSnapshot(ctx, "t1", 0)
	r.ErrorIs(errors.Cause(err), ErrNotLeader)

	m.Start(ctx)
	defer m.Stop()

	// Unknown table.
	err = m.MakeSnapshot(ctx, "t1", 0)
	r.ErrorIs(errors.Cause(err), ErrGetTableInfo)

	insertTable(m, testTableMeta("t1"))

	// Unknown partition.
	err = m.MakeSnapshot(ctx, "t1", 7)
	r.ErrorIs(errors.Cause(err), ErrPartitionNotExist)

	// Tablet offline: registered then dropped from membership.
	registerTablets(m, testEndpoint1)
	registerTablets(m)
	err = m.MakeSnapshot(ctx, "t1", 0)
	r.ErrorIs(errors.Cause(err), ErrTabletNotOnline)

	// The op index must not have moved.
	m.mu.Lock()
	r.Equal(uint64(1), m.opIndexCached)
	m.mu.Unlock()
}

// Happy-path snapshot: op 2 is created durably, driven against the tablet,
// completed by the poller and reaped after every healthy tablet acknowledges.
func TestSnapshotLifecycle(t *testing.T) {
	r := require.New(t)
	m, s, fleet, closeSrv := prepareManager(t)
	defer closeSrv()
	ctx := context.Background()

	m.Start(ctx)
	defer m.Stop()
	registerTablets(m, testEndpoint1, testEndpoint2)
	insertTable(m, testTableMeta("t1"))

	r.NoError(m.MakeSnapshot(ctx, "t1", 0))

	// op_index init 1, so the first allocated op id is 2.
	val, err := s.GetValue(ctx, storage.PathOpIndex)
	r.NoError(err)
	r.Equal("2", val)
	_, err = s.GetValue(ctx, storage.OpTaskKey(2))
	r.NoError(err)

	// The driver submits the snapshot call against the partition tablet.
	leaderTablet := fleet.client(testEndpoint1)
	r.Eventually(func() bool {
		return leaderTablet.snapshotCallCount() > 0
	}, testWaitTimeout, testTickInterval)

	// Tablet reports the task done; the op drains and is reaped everywhere.
	leaderTablet.reportTask(2, tablet.TaskTypeMakeSnapshot, tablet.TaskStatusDone)

	r.Eventually(func() bool {
		m.mu.Lock()
		_, inFlight := m.taskMap[2]
		m.mu.Unlock()
		return !inFlight
	}, testWaitTimeout, testTickInterval)

	_, err = s.GetValue(ctx, storage.OpTaskKey(2))
	r.True(coderr.Is(err, coderr.NotFound))

	for _, endpoint := range []string{testEndpoint1, testEndpoint2} {
		batches := fleet.client(endpoint).deletedOpBatches()
		r.NotEmpty(batches, "endpoint %s did not acknowledge", endpoint)
		r.Contains(batches[len(batches)-1], uint64(2))
	}
}

// A tablet refusing DeleteOPTask keeps the op durable until it succeeds.
func TestReaperRetriesUntilAllAck(t *testing.T) {
	r := require.New(t)
	m, s, fleet, closeSrv := prepareManager(t)
	defer closeSrv()
	ctx := context.Background()

	m.Start(ctx)
	defer m.Stop()
	registerTablets(m, testEndpoint1, testEndpoint2)
	insertTable(m, testTableMeta("t1"))

	follower := fleet.client(testEndpoint2)
	follower.mu.Lock()
	follower.failDeleteOp = true
	follower.mu.Unlock()

	r.NoError(m.MakeSnapshot(ctx, "t1", 0))
	fleet.client(testEndpoint1).reportTask(2, tablet.TaskTypeMakeSnapshot, tablet.TaskStatusDone)

	// The FIFO drains but the op is retained while one tablet keeps failing.
	r.Eventually(func() bool {
		m.mu.Lock()
		op, ok := m.taskMap[2]
		empty := ok && len(op.Tasks) == 0
		m.mu.Unlock()
		return empty
	}, testWaitTimeout, testTickInterval)

	time.Sleep(time.Millisecond * 200)
	_, err := s.GetValue(ctx, storage.OpTaskKey(2))
	r.NoError(err)

	// Once the tablet recovers the reaper finishes the job.
	follower.mu.Lock()
	follower.failDeleteOp = false
	follower.mu.Unlock()

	r.Eventually(func() bool {
		m.mu.Lock()
		_, inFlight := m.taskMap[2]
		m.mu.Unlock()
		return !inFlight
	}, testWaitTimeout, testTickInterval)
}

// A failed head task parks the op: the FIFO stops advancing and the op stays.
func TestFailedTaskParksOp(t *testing.T) {
	r := require.New(t)
	m, s, fleet, closeSrv := prepareManager(t)
	defer closeSrv()
	ctx := context.Background()

	m.Start(ctx)
	defer m.Stop()
	registerTablets(m, testEndpoint1, testEndpoint2)
	insertTable(m, testTableMeta("t1"))

	r.NoError(m.MakeSnapshot(ctx, "t1", 0))
	fleet.client(testEndpoint1).reportTask(2, tablet.TaskTypeMakeSnapshot, tablet.TaskStatusFailed)

	r.Eventually(func() bool {
		m.mu.Lock()
		op, ok := m.taskMap[2]
		failed := ok && len(op.Tasks) == 1 && op.Tasks[0].Status() == tablet.TaskStatusFailed
		m.mu.Unlock()
		return failed
	}, testWaitTimeout, testTickInterval)

	// Still durable, still in memory.
	time.Sleep(time.Millisecond * 200)
	_, err := s.GetValue(ctx, storage.OpTaskKey(2))
	r.NoError(err)

	// A regressive report cannot resurrect the task.
	fleet.client(testEndpoint1).reportTask(2, tablet.TaskTypeMakeSnapshot, tablet.TaskStatusDone)
	time.Sleep(time.Millisecond * 200)
	m.mu.Lock()
	r.Equal(tablet.TaskStatusFailed, m.taskMap[2].Tasks[0].Status())
	m.mu.Unlock()
}

// A poller reply referencing an unknown op id is ignored.
func TestPollerIgnoresUnknownOp(t *testing.T) {
	r := require.New(t)
	m, _, fleet, closeSrv := prepareManager(t)
	defer closeSrv()
	ctx := context.Background()

	m.Start(ctx)
	defer m.Stop()
	registerTablets(m, testEndpoint1)
	fleet.client(testEndpoint1).reportTask(42, tablet.TaskTypeMakeSnapshot, tablet.TaskStatusDone)

	m.updateTaskStatus(ctx)

	m.mu.Lock()
	r.Empty(m.taskMap)
	m.mu.Unlock()
}

// The membership watch drives the registry without manual updates.
func TestMembershipWatch(t *testing.T) {
	r := require.New(t)
	m, s, _, closeSrv := prepareManager(t)
	defer closeSrv()
	ctx := context.Background()

	m.Start(ctx)
	defer m.Stop()

	r.NoError(s.Create(ctx, storage.PathNodes+"/"+testEndpoint1, "alive"))
	r.Eventually(func() bool {
		rows := m.ShowTablet(ctx)
		return len(rows) == 1 && rows[0].State == string(TabletStateHealthy)
	}, testWaitTimeout, testTickInterval)

	r.NoError(s.Delete(ctx, storage.PathNodes+"/"+testEndpoint1))
	r.Eventually(func() bool {
		rows := m.ShowTablet(ctx)
		return len(rows) == 1 && rows[0].State == string(TabletStateOffline)
	}, testWaitTimeout, testTickInterval)
}

// Leader failover: a second manager on the same durable state resumes the
// in-flight op and completes it without a duplicate submission being required.
func TestFailoverRecovery(t *testing.T) {
	r := require.New(t)
	_, client, closeSrv := etcdutil.PrepareEtcdServerAndClient(t)
	defer closeSrv()
	ctx := context.Background()

	s := storage.NewEtcdStorage(client, "/tabletmeta/test", testRequestTimeout)
	r.NoError(s.Create(ctx, storage.PathNodes+"/"+testEndpoint1, "alive"))
	r.NoError(s.Create(ctx, storage.PathNodes+"/"+testEndpoint2, "alive"))

	fleetA := newFakeFleet()
	managerA := NewManager(log.GetLogger(), s, fleetA.factory, status.NewServerStatus(), Options{
		GetTaskStatusInterval: time.Millisecond * 50,
		DriverInterval:        time.Millisecond * 20,
	})
	managerA.Start(ctx)
	r.NoError(managerA.CreateTable(ctx, testTableMeta("t1")))
	// Drain the partition ops so only the snapshot op is interesting: complete
	// them through the tablet reports.
	for _, endpoint := range []string{testEndpoint1, testEndpoint2} {
		fleetA.client(endpoint).reportTask(2, tablet.TaskTypeCreateTablePartition, tablet.TaskStatusDone)
		fleetA.client(endpoint).reportTask(3, tablet.TaskTypeCreateTablePartition, tablet.TaskStatusDone)
	}
	r.Eventually(func() bool {
		managerA.mu.Lock()
		remaining := len(managerA.taskMap)
		managerA.mu.Unlock()
		return remaining == 0
	}, testWaitTimeout, testTickInterval)

	r.NoError(managerA.MakeSnapshot(ctx, "t1", 0))
	// A loses the lock with op 4 in flight.
	managerA.Stop()

	// B acquires the lock and recovers from durable state.
	fleetB := newFakeFleet()
	managerB := NewManager(log.GetLogger(), s, fleetB.factory, status.NewServerStatus(), Options{
		GetTaskStatusInterval: time.Millisecond * 50,
		DriverInterval:        time.Millisecond * 20,
	})
	managerB.Start(ctx)
	defer managerB.Stop()

	// Catalog and op log rehydrated.
	meta, ok := managerB.GetTable("t1")
	r.True(ok)
	r.Equal(uint32(1), meta.TID)
	managerB.mu.Lock()
	op, inFlight := managerB.taskMap[4]
	r.True(inFlight)
	r.Equal(tablet.TaskTypeMakeSnapshot, op.OpInfo.TaskType)
	r.Equal(uint64(4), managerB.opIndexCached)
	managerB.mu.Unlock()

	// The tablet had already finished the task before the failover.
	fleetB.client(testEndpoint1).reportTask(4, tablet.TaskTypeMakeSnapshot, tablet.TaskStatusDone)
	r.Eventually(func() bool {
		managerB.mu.Lock()
		_, stillThere := managerB.taskMap[4]
		managerB.mu.Unlock()
		return !stillThere
	}, testWaitTimeout, testTickInterval)

	// Ids allocated by B continue after the recovered index.
	insertTable(managerB, TableMeta{
		Name:           "t2",
		TablePartition: []TablePartition{{PID: 0, Endpoint: testEndpoint1, IsLeader: true}},
	})
	r.NoError(managerB.MakeSnapshot(ctx, "t2", 0))
	managerB.mu.Lock()
	r.Equal(uint64(5), managerB.opIndexCached)
	managerB.mu.Unlock()
}
