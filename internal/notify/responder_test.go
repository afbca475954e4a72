package notify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/store"
)

func newResponderFixture(t *testing.T) (*ResponseHandler, *store.Store, *fakeAlarms, *testClock) {
	t.Helper()
	s, alarms, clock := newTestScheduler()
	tasks := store.New(store.WithClock(clock.Now))
	return NewResponseHandler(tasks, s, zerolog.Nop()), tasks, alarms, clock
}

func TestPayRentScenario(t *testing.T) {
	h, tasks, alarms, clock := newResponderFixture(t)
	ctx := context.Background()

	tomorrow := time.Date(2026, 5, 11, 10, 0, 0, 0, time.UTC)
	id := tasks.AddTask(store.NewTask{
		Title:            "Pay rent",
		DueDate:          &tomorrow,
		RepeatType:       model.RepeatMonthly,
		RepeatConfig:     model.MonthlyConfig{DayOfMonth: 1, IntervalMonths: 1},
		PreNotifyOffsets: []string{"P1D"},
	})
	require.NotEmpty(t, id)

	task, _ := tasks.Get(id)
	_, err := h.scheduler.ScheduleTask(ctx, task)
	require.NoError(t, err)
	before := alarms.forTask(id)
	require.Len(t, before, 2)
	assert.Equal(t, clock.t.Add(time.Hour), before[0].FireAt)

	outcome := h.Handle(ctx, Response{ActionID: ActionComplete, Alert: before[1].Alert})
	assert.Equal(t, OutcomeRolledOver, outcome)

	task, _ = tasks.Get(id)
	next := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, model.StatusPending, task.Status)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, next, *task.DueDate)

	after := alarms.forTask(id)
	require.Len(t, after, 2)
	assert.Equal(t, next.Add(-24*time.Hour), after[0].FireAt)
	assert.Equal(t, next, after[1].FireAt)
	for _, a := range after {
		assert.NotEqual(t, before[0].Handle, a.Handle)
		assert.NotEqual(t, before[1].Handle, a.Handle)
	}
}

func TestSnoozeResponseRewritesDueAndDropsPreNotifications(t *testing.T) {
	h, tasks, alarms, clock := newResponderFixture(t)
	ctx := context.Background()

	due := clock.t.Add(time.Minute)
	id := tasks.AddTask(store.NewTask{Title: "Stretch", DueDate: &due, PreNotifyOffsets: []string{"PT5M"}})

	outcome := h.Handle(ctx, Response{ActionID: ActionSnooze10m, Alert: model.Alert{TaskID: id, Kind: model.AlertMain}})
	assert.Equal(t, OutcomeSnoozed, outcome)

	task, _ := tasks.Get(id)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, clock.t.Add(10*time.Minute), *task.DueDate)
	assert.Empty(t, task.PreNotifyOffsets)
	assert.False(t, task.SnoozeEnabled, "snooze response must not depend on snooze settings")

	got := alarms.forTask(id)
	require.Len(t, got, 1)
	assert.Equal(t, model.AlertMain, got[0].Alert.Kind)
	assert.Equal(t, clock.t.Add(10*time.Minute), got[0].FireAt)
}

func TestSnoozeResponseReplacesPendingSnooze(t *testing.T) {
	h, tasks, alarms, clock := newResponderFixture(t)
	ctx := context.Background()

	due := clock.t.Add(time.Hour)
	id := tasks.AddTask(store.NewTask{Title: "Laundry", DueDate: &due, SnoozeEnabled: true, SnoozeDuration: "PT15M"})
	snoozed, ok := tasks.SnoozeTask(id)
	require.True(t, ok)
	require.NotNil(t, snoozed.SnoozedUntil)

	assert.Equal(t, OutcomeSnoozed, h.Handle(ctx, Response{ActionID: ActionSnooze5m, Alert: model.Alert{TaskID: id, Kind: model.AlertMain}}))

	task, _ := tasks.Get(id)
	assert.Nil(t, task.SnoozedUntil)
	got := alarms.forTask(id)
	require.Len(t, got, 1)
	assert.Equal(t, model.AlertMain, got[0].Alert.Kind)
	assert.Equal(t, clock.t.Add(5*time.Minute), got[0].FireAt)
}

func TestCompleteResponseCancelsTerminalTask(t *testing.T) {
	h, tasks, alarms, clock := newResponderFixture(t)
	ctx := context.Background()

	due := clock.t.Add(time.Hour)
	id := tasks.AddTask(store.NewTask{Title: "one-off", DueDate: &due, PreNotifyOffsets: []string{"PT10M"}})
	task, _ := tasks.Get(id)
	_, err := h.scheduler.ScheduleTask(ctx, task)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, h.Handle(ctx, Response{ActionID: ActionComplete, Alert: model.Alert{TaskID: id}}))
	task, _ = tasks.Get(id)
	assert.Equal(t, model.StatusCompleted, task.Status)
	assert.Empty(t, alarms.forTask(id))

	assert.Equal(t, OutcomeIgnored, h.Handle(ctx, Response{ActionID: ActionComplete, Alert: model.Alert{TaskID: id}}))
	task, _ = tasks.Get(id)
	assert.Equal(t, model.StatusCompleted, task.Status)
}

func TestResponseNoOps(t *testing.T) {
	h, tasks, _, _ := newResponderFixture(t)
	ctx := context.Background()
	id := tasks.AddTask(store.NewTask{Title: "x"})
	before, _ := tasks.Get(id)

	assert.Equal(t, OutcomeIgnored, h.Handle(ctx, Response{ActionID: ActionSnooze5m}))
	assert.Equal(t, OutcomeIgnored, h.Handle(ctx, Response{ActionID: ActionComplete, Alert: model.Alert{TaskID: "missing"}}))
	assert.Equal(t, OutcomeOpened, h.Handle(ctx, Response{ActionID: ActionDefault, Alert: model.Alert{TaskID: id}}))
	assert.Equal(t, OutcomeIgnored, h.Handle(ctx, Response{ActionID: "WAT", Alert: model.Alert{TaskID: id}}))

	after, _ := tasks.Get(id)
	assert.Equal(t, before, after)
}
