package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/store"
)

const testUser = "8d3c2f8e-51a7-4a53-9b57-4a0f9c1d2e3f"

type fakeRemote struct {
	mu        sync.Mutex
	rows      map[string]Row
	fetches   int
	failFetch error
	failFor   map[string]error
	deleted   []string
	handler   func(ChangeEvent)
	stopped   bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: map[string]Row{}, failFor: map[string]error{}}
}

func (f *fakeRemote) FetchTasks(_ context.Context, userID string) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.failFetch != nil {
		return nil, f.failFetch
	}
	out := make([]Row, 0, len(f.rows))
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRemote) UpsertTask(_ context.Context, row Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[row.ID]; err != nil {
		return err
	}
	f.rows[row.ID] = row
	return nil
}

func (f *fakeRemote) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRemote) Subscribe(_ context.Context, _ string, handler func(ChangeEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeRemote) emit(ev ChangeEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeRemote) row(id string) (Row, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	return r, ok
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingRescheduler struct {
	calls     [][]model.Task
	cancelled []string
}

func (r *recordingRescheduler) RescheduleTasks(_ context.Context, tasks []model.Task) int {
	r.calls = append(r.calls, tasks)
	return len(tasks)
}

func (r *recordingRescheduler) CancelTask(_ context.Context, taskID string) int {
	r.cancelled = append(r.cancelled, taskID)
	return 1
}

func newDevice(remote Remote, c *clock, opts ...Option) (*Engine, *store.Store) {
	tasks := store.New(store.WithClock(c.Now))
	opts = append([]Option{WithClock(c.Now)}, opts...)
	return New(remote, tasks, opts...), tasks
}

func remoteRow(t *testing.T, id, title string, updated time.Time) Row {
	t.Helper()
	row, err := ToRow(model.Task{
		ID:        id,
		Title:     title,
		Status:    model.StatusPending,
		IsActive:  true,
		CreatedAt: updated,
		UpdatedAt: updated,
	}, testUser)
	require.NoError(t, err)
	return row
}

func TestSyncPushesNewTasksAndTagsOwner(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	engine, tasks := newDevice(remote, c)

	id := tasks.AddTask(store.NewTask{Title: "Pay rent"})
	res := engine.SyncAll(context.Background(), testUser)
	require.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Pushed)

	row, ok := remote.row(id)
	require.True(t, ok)
	assert.Equal(t, testUser, row.UserID)
	assert.Equal(t, id, row.LocalID)

	got, _ := tasks.Get(id)
	assert.True(t, got.IsSynced)
	assert.Equal(t, testUser, got.UserID)
	assert.False(t, engine.HasUnsynced())
	require.NotNil(t, tasks.LastSyncAt())
}

func TestPullNeverDeletesUnsyncedLocalTasks(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	engine, tasks := newDevice(remote, c)

	id := tasks.AddTask(store.NewTask{Title: "never pushed"})
	res := engine.Pull(context.Background(), testUser)
	assert.Equal(t, 0, res.Deleted)
	_, ok := tasks.Get(id)
	assert.True(t, ok)
}

func TestPullDeletesSyncedTasksMissingRemotely(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	engine, tasks := newDevice(remote, c)

	gone := uuid.NewString()
	tasks.UpsertFromRemote(model.Task{ID: gone, Title: "deleted elsewhere", Status: model.StatusPending, IsActive: true, UpdatedAt: c.Now()})
	tasks.UpsertFromRemote(model.Task{ID: "legacy-1", Title: "legacy", Status: model.StatusPending, IsActive: true, UpdatedAt: c.Now()})

	res := engine.Pull(context.Background(), testUser)
	assert.Equal(t, 1, res.Deleted)
	_, ok := tasks.Get(gone)
	assert.False(t, ok)
	_, ok = tasks.Get("legacy-1")
	assert.True(t, ok, "legacy ids are never tombstoned")
}

func TestPullRemoteWinsTies(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	engine, tasks := newDevice(remote, c)

	id := tasks.AddTask(store.NewTask{Title: "local title"})
	local, _ := tasks.Get(id)
	remote.rows[id] = remoteRow(t, id, "remote title", local.UpdatedAt)

	res := engine.Pull(context.Background(), testUser)
	assert.Equal(t, 1, res.Pulled)
	got, _ := tasks.Get(id)
	assert.Equal(t, "remote title", got.Title)
	assert.True(t, got.IsSynced)
}

func TestPullKeepsNewerLocalCopy(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	engine, tasks := newDevice(remote, c)

	id := tasks.AddTask(store.NewTask{Title: "local title"})
	local, _ := tasks.Get(id)
	remote.rows[id] = remoteRow(t, id, "stale remote", local.UpdatedAt.Add(-time.Second))

	res := engine.SyncAll(context.Background(), testUser)
	assert.Equal(t, 0, res.Pulled)
	assert.Equal(t, 1, res.Pushed)
	row, _ := remote.row(id)
	assert.Equal(t, "local title", row.Title)
}

func TestPullReschedulesAffectedTasks(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	resched := &recordingRescheduler{}
	engine, _ := newDevice(remote, c, WithRescheduler(resched))

	id := uuid.NewString()
	row := remoteRow(t, id, "from phone", c.Now())
	due := c.Now().Add(time.Hour)
	row.DueDate = &due
	remote.rows[id] = row

	engine.Pull(context.Background(), testUser)
	require.Len(t, resched.calls, 1)
	require.Len(t, resched.calls[0], 1)
	assert.Equal(t, id, resched.calls[0][0].ID)
	assert.Empty(t, resched.cancelled)

	engine.Pull(context.Background(), testUser)
	assert.Len(t, resched.calls, 2)
}

func TestPullCancelsAlertsOfRemovedAndSilencedTasks(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	resched := &recordingRescheduler{}
	engine, tasks := newDevice(remote, c, WithRescheduler(resched))

	due := c.Now().Add(time.Hour)
	deleted := tasks.AddTask(store.NewTask{Title: "deleted on phone", DueDate: &due})
	completed := tasks.AddTask(store.NewTask{Title: "completed on phone", DueDate: &due})
	paused := tasks.AddTask(store.NewTask{Title: "paused on phone", DueDate: &due})
	engine.SyncAll(context.Background(), testUser)

	c.Advance(time.Minute)
	delete(remote.rows, deleted)
	row := remote.rows[completed]
	row.Status = string(model.StatusCompleted)
	row.UpdatedAt = c.Now()
	remote.rows[completed] = row
	row = remote.rows[paused]
	inactive := false
	row.IsActive = &inactive
	row.UpdatedAt = c.Now()
	remote.rows[paused] = row
	resched.calls, resched.cancelled = nil, nil

	res := engine.Pull(context.Background(), testUser)
	assert.Equal(t, 1, res.Deleted)
	assert.ElementsMatch(t, []string{deleted, completed, paused}, resched.cancelled)
	for _, call := range resched.calls {
		for _, task := range call {
			assert.NotContains(t, []string{completed, paused}, task.ID)
		}
	}
}

func TestPullFetchErrorIsReported(t *testing.T) {
	remote := newFakeRemote()
	remote.failFetch = errors.New("network down")
	c := newClock()
	engine, tasks := newDevice(remote, c)

	res := engine.Pull(context.Background(), testUser)
	assert.Equal(t, []string{"network down"}, res.Errors)
	assert.Nil(t, tasks.LastSyncAt())
}

func TestPushSkipsLegacyIDsAndContinuesPastErrors(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	engine, tasks := newDevice(remote, c)

	tasks.UpsertFromRemote(model.Task{ID: "legacy-1", Title: "legacy", Status: model.StatusPending, IsActive: true})
	tasks.UpdateTask("legacy-1", store.Patch{Description: store.Set("edited")})
	failing := tasks.AddTask(store.NewTask{Title: "failing"})
	ok := tasks.AddTask(store.NewTask{Title: "ok"})
	remote.failFor[failing] = errors.New("row rejected")

	res := engine.Push(context.Background(), testUser)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Pushed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "failing")

	legacy, _ := tasks.Get("legacy-1")
	assert.True(t, legacy.IsSynced)
	_, found := remote.row("legacy-1")
	assert.False(t, found)
	_, found = remote.row(ok)
	assert.True(t, found)
	f, _ := tasks.Get(failing)
	assert.False(t, f.IsSynced, "failed push must retry next time")
}

func TestSyncAppliesRemoteDeleteBeforePush(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	engine, tasks := newDevice(remote, c)

	id := tasks.AddTask(store.NewTask{Title: "shared"})
	engine.SyncAll(context.Background(), testUser)
	require.NoError(t, remote.DeleteTask(context.Background(), id))

	res := engine.SyncAll(context.Background(), testUser)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 0, res.Pushed)
	_, found := remote.row(id)
	assert.False(t, found, "deleted task must not be resurrected")
}

func TestTwoDevicesConvergeOnLatestEdit(t *testing.T) {
	remote := newFakeRemote()
	ctx := context.Background()
	clockA, clockB := newClock(), newClock()
	deviceA, tasksA := newDevice(remote, clockA)
	deviceB, tasksB := newDevice(remote, clockB)

	id := tasksA.AddTask(store.NewTask{Title: "draft"})
	deviceA.SyncAll(ctx, testUser)
	deviceB.SyncAll(ctx, testUser)
	_, ok := tasksB.Get(id)
	require.True(t, ok)

	clockA.Set(time.Date(2026, 6, 1, 12, 0, 5, 0, time.UTC))
	tasksA.UpdateTask(id, store.Patch{Title: store.Set("edited on A")})
	clockB.Set(time.Date(2026, 6, 1, 12, 0, 3, 0, time.UTC))
	tasksB.UpdateTask(id, store.Patch{Title: store.Set("edited on B")})

	deviceB.SyncAll(ctx, testUser)
	deviceA.SyncAll(ctx, testUser)
	deviceB.SyncAll(ctx, testUser)

	row, _ := remote.row(id)
	a, _ := tasksA.Get(id)
	b, _ := tasksB.Get(id)
	assert.Equal(t, "edited on A", row.Title)
	assert.Equal(t, "edited on A", a.Title)
	assert.Equal(t, "edited on A", b.Title)
	assert.True(t, a.IsSynced)
	assert.True(t, b.IsSynced)
}

func TestSyncAllGuardAndWatchdog(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	engine, _ := newDevice(remote, c, WithTimeout(30*time.Second))

	require.True(t, engine.acquire())
	res := engine.SyncAll(context.Background(), testUser)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 0, remote.fetches)

	c.Advance(31 * time.Second)
	engine.SyncAll(context.Background(), testUser)
	assert.Equal(t, 1, remote.fetches, "stale lock must be reclaimed")
	assert.False(t, engine.IsSyncing())
}

func TestSyncAllRequiresUser(t *testing.T) {
	engine, _ := newDevice(newFakeRemote(), newClock())
	res := engine.SyncAll(context.Background(), "")
	assert.Equal(t, []string{ErrNoUser.Error()}, res.Errors)
}

func TestDeleteRemoteSkipsLegacyIDs(t *testing.T) {
	remote := newFakeRemote()
	engine, _ := newDevice(remote, newClock())

	require.NoError(t, engine.DeleteRemote(context.Background(), "legacy-1"))
	assert.Empty(t, remote.deleted)

	id := uuid.NewString()
	require.NoError(t, engine.DeleteRemote(context.Background(), id))
	assert.Equal(t, []string{id}, remote.deleted)
}

func TestSubscribeDebouncesBursts(t *testing.T) {
	remote := newFakeRemote()
	engine, _ := newDevice(remote, newClock(), WithDebounce(30*time.Millisecond))

	var calls int32
	stop, err := engine.Subscribe(context.Background(), testUser, func() { atomic.AddInt32(&calls, 1) })
	require.NoError(t, err)
	defer stop()

	for i := 0; i < 5; i++ {
		remote.emit(ChangeEvent{Type: EventUpdate, TaskID: "x"})
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubscribeDropsSelfEcho(t *testing.T) {
	remote := newFakeRemote()
	c := newClock()
	engine, tasks := newDevice(remote, c, WithDebounce(10*time.Millisecond))

	var calls int32
	stop, err := engine.Subscribe(context.Background(), testUser, func() { atomic.AddInt32(&calls, 1) })
	require.NoError(t, err)

	tasks.AddTask(store.NewTask{Title: "pushed"})
	engine.Push(context.Background(), testUser)

	c.Advance(500 * time.Millisecond)
	remote.emit(ChangeEvent{Type: EventInsert, TaskID: "x"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "echo of own push must be ignored")

	c.Advance(time.Second)
	remote.emit(ChangeEvent{Type: EventUpdate, TaskID: "x"})
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	stop()
	remote.emit(ChangeEvent{Type: EventUpdate, TaskID: "x"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no callbacks after unsubscribe")
	assert.True(t, remote.stopped)
}

func TestSubscribeRequiresUser(t *testing.T) {
	engine, _ := newDevice(newFakeRemote(), newClock())
	_, err := engine.Subscribe(context.Background(), "", func() {})
	assert.ErrorIs(t, err, ErrNoUser)
}
