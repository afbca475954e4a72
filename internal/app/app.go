package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/notify"
	"github.com/sandeepkv93/cronos/internal/store"
	"github.com/sandeepkv93/cronos/internal/syncer"
)

var (
	ErrTaskNotFound      = errors.New("app: task not found")
	ErrEmptyTitle        = errors.New("app: task title is required")
	ErrSnoozeUnavailable = errors.New("app: snooze is not available for this task")
	ErrSyncDisabled      = errors.New("app: sync is not configured")
)

// App sequences every task mutation with the alert bookkeeping it needs.
// The store never talks to the scheduler itself.
type App struct {
	tasks     *store.Store
	alerts    *notify.Scheduler
	responder *notify.ResponseHandler
	sync      *syncer.Engine
	userID    string
	log       zerolog.Logger
}

type Option func(*App)

// WithSync enables remote sync for userID.
func WithSync(engine *syncer.Engine, userID string) Option {
	return func(a *App) {
		a.sync = engine
		a.userID = userID
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *App) { a.log = logger }
}

func New(tasks *store.Store, alerts *notify.Scheduler, opts ...Option) *App {
	a := &App{tasks: tasks, alerts: alerts, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	a.responder = notify.NewResponseHandler(tasks, alerts, a.log)
	return a
}

func (a *App) Store() *store.Store { return a.tasks }

func (a *App) UserID() string { return a.userID }

func (a *App) SyncEnabled() bool { return a.sync != nil && a.userID != "" }

func (a *App) Tasks() []model.Task { return a.tasks.Tasks() }

func (a *App) Get(id string) (model.Task, error) {
	t, ok := a.tasks.Get(id)
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// refresh makes the outstanding alerts match t. ScheduleTask leaves
// inactive and undated tasks alone, so those are cancelled here.
func (a *App) refresh(ctx context.Context, t model.Task) {
	if t.Status == model.StatusCompleted || !t.IsActive || t.DueDate == nil {
		a.alerts.CancelTask(ctx, t.ID)
		return
	}
	if _, err := a.alerts.ScheduleTask(ctx, t); err != nil {
		a.log.Warn().Err(err).Str("task_id", t.ID).Msg("failed to schedule task alerts")
	}
}

func (a *App) AddTask(ctx context.Context, in store.NewTask) (model.Task, error) {
	id := a.tasks.AddTask(in)
	if id == "" {
		return model.Task{}, ErrEmptyTitle
	}
	t, _ := a.tasks.Get(id)
	a.refresh(ctx, t)
	return t, nil
}

func (a *App) UpdateTask(ctx context.Context, id string, p store.Patch) (model.Task, error) {
	if !a.tasks.UpdateTask(id, p) {
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t, _ := a.tasks.Get(id)
	a.refresh(ctx, t)
	return t, nil
}

// ToggleStatus completes or reopens a task. Completing a repeating task
// rolls it over and re-arms its alerts at the next occurrence.
func (a *App) ToggleStatus(ctx context.Context, id string) (model.Task, error) {
	t, ok := a.tasks.ToggleTaskStatus(id)
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	a.refresh(ctx, t)
	return t, nil
}

func (a *App) ToggleActive(ctx context.Context, id string) (model.Task, error) {
	t, ok := a.tasks.ToggleTaskActive(id)
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	a.refresh(ctx, t)
	return t, nil
}

func (a *App) Snooze(ctx context.Context, id string) (model.Task, error) {
	if _, ok := a.tasks.Get(id); !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t, ok := a.tasks.SnoozeTask(id)
	if !ok {
		return model.Task{}, ErrSnoozeUnavailable
	}
	a.refresh(ctx, t)
	return t, nil
}

// Delete removes the task locally, cancels its alerts and, when sync is
// configured, deletes the remote row. A remote failure is returned after
// the local removal has been applied.
func (a *App) Delete(ctx context.Context, id string) error {
	if !a.tasks.DeleteTask(id) {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	a.alerts.CancelTask(ctx, id)
	if a.SyncEnabled() {
		if err := a.sync.DeleteRemote(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Respond handles an action taken on a delivered alert.
func (a *App) Respond(ctx context.Context, r notify.Response) notify.Outcome {
	return a.responder.Handle(ctx, r)
}

// PendingPush reports whether local edits are waiting to be pushed.
func (a *App) PendingPush() bool {
	return a.SyncEnabled() && a.sync.HasUnsynced()
}

func (a *App) Sync(ctx context.Context) (syncer.Result, error) {
	if !a.SyncEnabled() {
		return syncer.Result{}, ErrSyncDisabled
	}
	return a.sync.SyncAll(ctx, a.userID), nil
}

func (a *App) Pull(ctx context.Context) (syncer.Result, error) {
	if !a.SyncEnabled() {
		return syncer.Result{}, ErrSyncDisabled
	}
	return a.sync.Pull(ctx, a.userID), nil
}

func (a *App) Push(ctx context.Context) (syncer.Result, error) {
	if !a.SyncEnabled() {
		return syncer.Result{}, ErrSyncDisabled
	}
	return a.sync.Push(ctx, a.userID), nil
}

// Subscribe runs SyncAll on every debounced remote change unless a sync is
// already running.
func (a *App) Subscribe(ctx context.Context, onSynced func(syncer.Result)) (func(), error) {
	if !a.SyncEnabled() {
		return nil, ErrSyncDisabled
	}
	return a.sync.Subscribe(ctx, a.userID, func() {
		if a.sync.IsSyncing() {
			return
		}
		res := a.sync.SyncAll(ctx, a.userID)
		if onSynced != nil {
			onSynced(res)
		}
	})
}

// RescheduleAll rebuilds the whole outstanding alert set from the store.
func (a *App) RescheduleAll(ctx context.Context) (int, error) {
	return a.alerts.RescheduleAll(ctx, a.tasks.Tasks())
}

// Alerts lists the outstanding alerts of one task, or of every task when
// taskID is empty.
func (a *App) Alerts(ctx context.Context, alarms notify.AlarmService, taskID string) ([]model.Alert, error) {
	all, err := alarms.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Alert, 0, len(all))
	for _, al := range all {
		if taskID != "" && al.Alert.TaskID != taskID {
			continue
		}
		alert := al.Alert
		alert.TriggerAt = al.FireAt
		out = append(out, alert)
	}
	return out, nil
}
