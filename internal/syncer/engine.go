package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandeepkv93/cronos/internal/model"
)

const (
	DefaultSyncTimeout      = 30 * time.Second
	DefaultRealtimeDebounce = 300 * time.Millisecond
	DefaultSelfEchoCooldown = time.Second
)

var ErrNoUser = errors.New("syncer: user id is required")

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is one row-level change from the remote feed.
type ChangeEvent struct {
	Type   EventType `json:"type"`
	TaskID string    `json:"id"`
	UserID string    `json:"user_id"`
}

// Remote is the shared multi-device task table.
type Remote interface {
	FetchTasks(ctx context.Context, userID string) ([]Row, error)
	UpsertTask(ctx context.Context, row Row) error
	DeleteTask(ctx context.Context, id string) error
	// Subscribe delivers change events for userID's rows until the returned
	// stop function is called or ctx ends.
	Subscribe(ctx context.Context, userID string, handler func(ChangeEvent)) (func(), error)
}

// TaskStore is the local side of the reconciliation.
type TaskStore interface {
	Tasks() []model.Task
	Unsynced() []model.Task
	MarkSynced(id string)
	UpsertFromRemote(t model.Task)
	DeleteTask(id string) bool
	SetUserID(userID string) int
	SetLastSyncAt(at time.Time)
}

// Rescheduler keeps alerts in step with a pull: it re-arms changed tasks
// and cancels the alerts of tasks that were removed or no longer fire.
type Rescheduler interface {
	RescheduleTasks(ctx context.Context, tasks []model.Task) int
	CancelTask(ctx context.Context, taskID string) int
}

// Result aggregates one sync run. Errors holds per-row failures; the run
// carries on past them.
type Result struct {
	Pulled  int
	Pushed  int
	Skipped int
	Deleted int
	Errors  []string
}

func (r *Result) merge(o Result) {
	r.Pulled += o.Pulled
	r.Pushed += o.Pushed
	r.Skipped += o.Skipped
	r.Deleted += o.Deleted
	r.Errors = append(r.Errors, o.Errors...)
}

type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithRescheduler(r Rescheduler) Option {
	return func(e *Engine) { e.rescheduler = r }
}

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.debounce = d
		}
	}
}

func WithSelfEchoCooldown(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.cooldown = d
		}
	}
}

// Engine reconciles the local store with the remote table: pull first, then
// push, last write wins by updatedAt with remote winning ties.
type Engine struct {
	remote      Remote
	tasks       TaskStore
	rescheduler Rescheduler
	log         zerolog.Logger
	now         func() time.Time

	timeout  time.Duration
	debounce time.Duration
	cooldown time.Duration

	mu        sync.Mutex
	syncing   bool
	startedAt time.Time
	lastPush  time.Time
}

func New(remote Remote, tasks TaskStore, opts ...Option) *Engine {
	e := &Engine{
		remote:   remote,
		tasks:    tasks,
		log:      zerolog.Nop(),
		now:      time.Now,
		timeout:  DefaultSyncTimeout,
		debounce: DefaultRealtimeDebounce,
		cooldown: DefaultSelfEchoCooldown,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsSyncing reports whether a SyncAll run holds the lock.
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

func (e *Engine) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.syncing {
		elapsed := e.now().Sub(e.startedAt)
		if elapsed <= e.timeout {
			return false
		}
		e.log.Warn().Dur("elapsed", elapsed).Msg("sync lock timed out, resetting")
		e.syncing = false
	}
	e.syncing = true
	e.startedAt = e.now()
	return true
}

func (e *Engine) release() {
	e.mu.Lock()
	e.syncing = false
	e.startedAt = time.Time{}
	e.mu.Unlock()
}

// SyncAll runs one full reconciliation for userID. A call made while
// another run holds the lock returns an empty Result; the lock is reclaimed
// once it is older than the sync timeout.
func (e *Engine) SyncAll(ctx context.Context, userID string) Result {
	if userID == "" {
		return Result{Errors: []string{ErrNoUser.Error()}}
	}
	if !e.acquire() {
		e.log.Debug().Msg("sync already in progress, skipping")
		return Result{}
	}
	defer e.release()

	if n := e.tasks.SetUserID(userID); n > 0 {
		e.log.Debug().Int("tasks", n).Msg("tagged local tasks with owner")
	}

	var out Result
	out.merge(e.Pull(ctx, userID))
	out.merge(e.Push(ctx, userID))
	e.log.Info().
		Int("pulled", out.Pulled).
		Int("pushed", out.Pushed).
		Int("skipped", out.Skipped).
		Int("deleted", out.Deleted).
		Int("errors", len(out.Errors)).
		Msg("sync complete")
	return out
}

// Pull applies remote rows to the local store and removes synced local
// tasks that no longer exist remotely. It does not take the sync lock.
func (e *Engine) Pull(ctx context.Context, userID string) Result {
	var out Result
	rows, err := e.remote.FetchTasks(ctx, userID)
	if err != nil {
		e.log.Error().Err(err).Msg("pull failed")
		out.Errors = append(out.Errors, err.Error())
		return out
	}

	local := e.tasks.Tasks()
	byID := make(map[string]model.Task, len(local))
	for _, t := range local {
		byID[t.ID] = t
	}
	remoteIDs := make(map[string]struct{}, len(rows))
	affected := make([]model.Task, 0)
	var silenced []string

	for _, row := range rows {
		remoteIDs[row.ID] = struct{}{}
		remote, err := FromRow(row)
		if err != nil {
			e.log.Warn().Err(err).Str("task_id", row.ID).Msg("skipping undecodable remote row")
			out.Errors = append(out.Errors, fmt.Sprintf("Task %s: %v", row.Title, err))
			continue
		}
		existing, ok := byID[remote.ID]
		if ok && remote.UpdatedAt.Before(existing.UpdatedAt) {
			e.log.Debug().Str("task_id", remote.ID).Msg("local copy is newer, keeping it")
			continue
		}
		e.tasks.UpsertFromRemote(remote)
		if firesAlerts(remote) {
			affected = append(affected, remote)
		} else {
			silenced = append(silenced, remote.ID)
		}
		out.Pulled++
	}

	for _, t := range local {
		if !t.IsSynced || !IsValidID(t.ID) {
			continue
		}
		if _, ok := remoteIDs[t.ID]; ok {
			continue
		}
		if e.tasks.DeleteTask(t.ID) {
			e.log.Info().Str("task_id", t.ID).Msg("removed locally, deleted from remote")
			silenced = append(silenced, t.ID)
			out.Deleted++
		}
	}

	if e.rescheduler != nil {
		for _, id := range silenced {
			e.rescheduler.CancelTask(ctx, id)
		}
		if len(affected) > 0 {
			e.rescheduler.RescheduleTasks(ctx, affected)
		}
	}
	e.tasks.SetLastSyncAt(e.now())
	e.log.Debug().Int("pulled", out.Pulled).Int("deleted", out.Deleted).Msg("pull complete")
	return out
}

// firesAlerts reports whether t can have outstanding alerts at all.
func firesAlerts(t model.Task) bool {
	return t.Status != model.StatusCompleted && t.IsActive && t.DueDate != nil
}

// Push upserts every unsynced task. Tasks with legacy ids are marked synced
// without being sent. It does not take the sync lock.
func (e *Engine) Push(ctx context.Context, userID string) Result {
	var out Result
	for _, t := range e.tasks.Unsynced() {
		if !IsValidID(t.ID) {
			e.log.Info().Str("task_id", t.ID).Msg("skipping task with invalid id")
			e.tasks.MarkSynced(t.ID)
			out.Skipped++
			continue
		}
		row, err := ToRow(t, userID)
		if err == nil {
			err = e.remote.UpsertTask(ctx, row)
		}
		if err != nil {
			e.log.Warn().Err(err).Str("task_id", t.ID).Msg("push failed")
			out.Errors = append(out.Errors, fmt.Sprintf("Task %s: %v", t.Title, err))
			continue
		}
		e.tasks.MarkSynced(t.ID)
		out.Pushed++
	}
	if out.Pushed > 0 {
		e.mu.Lock()
		e.lastPush = e.now()
		e.mu.Unlock()
	}
	e.log.Debug().Int("pushed", out.Pushed).Int("skipped", out.Skipped).Int("errors", len(out.Errors)).Msg("push complete")
	return out
}

// DeleteRemote removes one task remotely. Legacy ids were never pushed, so
// they succeed without a call.
func (e *Engine) DeleteRemote(ctx context.Context, id string) error {
	if !IsValidID(id) {
		e.log.Debug().Str("task_id", id).Msg("skipping remote delete for invalid id")
		return nil
	}
	if err := e.remote.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("delete remote task %s: %w", id, err)
	}
	return nil
}

func (e *Engine) HasUnsynced() bool {
	return len(e.tasks.Unsynced()) > 0
}

func (e *Engine) isSelfEcho() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastPush.IsZero() {
		return false
	}
	return e.now().Sub(e.lastPush) < e.cooldown
}

// Subscribe listens to the remote change feed for userID. Events arriving
// within the cooldown after this engine's own push are dropped; the rest
// are debounced so that only the trailing event of a burst calls onChange.
func (e *Engine) Subscribe(ctx context.Context, userID string, onChange func()) (func(), error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	d := newDebouncer(e.debounce, onChange)
	stop, err := e.remote.Subscribe(ctx, userID, func(ev ChangeEvent) {
		if e.isSelfEcho() {
			e.log.Debug().Str("task_id", ev.TaskID).Msg("ignoring self-triggered change event")
			return
		}
		e.log.Debug().Str("event", string(ev.Type)).Str("task_id", ev.TaskID).Msg("remote change detected")
		d.trigger()
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to remote changes: %w", err)
	}
	return func() {
		d.stop()
		stop()
	}, nil
}

// debouncer runs fn once per burst of triggers, delay after the last one.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire ignores timers superseded by a later trigger.
func (d *debouncer) fire(gen uint64) {
	d.mu.Lock()
	current := !d.stopped && gen == d.gen
	d.mu.Unlock()
	if current && d.fn != nil {
		d.fn()
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
