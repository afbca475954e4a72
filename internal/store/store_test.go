package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sandeepkv93/cronos/internal/model"
)

type memPersister struct {
	snap  Snapshot
	saves int
}

func (m *memPersister) Load(context.Context) (Snapshot, error) { return m.snap, nil }

func (m *memPersister) Save(_ context.Context, snap Snapshot) error {
	m.snap = snap
	m.saves++
	return nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*Store, *fakeClock, *memPersister) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)}
	p := &memPersister{}
	seq := 0
	s := New(
		WithPersister(p),
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("00000000-0000-4000-8000-%012d", seq)
		}),
	)
	return s, clock, p
}

func TestAddTaskDefaults(t *testing.T) {
	s, clock, p := newTestStore(t)

	id := s.AddTask(NewTask{Title: "Pay rent"})
	if id == "" {
		t.Fatalf("expected id")
	}
	got, ok := s.Get(id)
	if !ok {
		t.Fatalf("task not stored")
	}
	if got.Status != model.StatusPending || got.Priority != model.PriorityMedium || got.RepeatType != model.RepeatNone {
		t.Fatalf("unexpected defaults: %#v", got)
	}
	if !got.IsActive || got.IsSynced || got.SnoozeEnabled {
		t.Fatalf("unexpected flags: %#v", got)
	}
	if !got.CreatedAt.Equal(clock.now) || !got.UpdatedAt.Equal(clock.now) {
		t.Fatalf("unexpected timestamps: %s %s", got.CreatedAt, got.UpdatedAt)
	}
	if p.saves != 1 || len(p.snap.Tasks) != 1 {
		t.Fatalf("expected autosave, saves=%d", p.saves)
	}
}

func TestAddTaskRejectsBlankTitle(t *testing.T) {
	s, _, p := newTestStore(t)
	if id := s.AddTask(NewTask{Title: "   "}); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
	if s.Len() != 0 || p.saves != 0 {
		t.Fatalf("blank title must not mutate the store")
	}
}

func TestUpdatePreservesOmittedAndClearsProvidedEmpty(t *testing.T) {
	s, clock, _ := newTestStore(t)
	id := s.AddTask(NewTask{Title: "Call mom", Description: "about sunday", Priority: model.PriorityHigh})

	clock.Advance(time.Minute)
	s.UpdateTask(id, Patch{Title: Set("Call mom tonight")})
	got, _ := s.Get(id)
	if got.Description != "about sunday" || got.Priority != model.PriorityHigh {
		t.Fatalf("omitted fields must be preserved: %#v", got)
	}
	if got.Title != "Call mom tonight" {
		t.Fatalf("unexpected title %q", got.Title)
	}

	clock.Advance(time.Minute)
	s.UpdateTask(id, Patch{Description: Set("")})
	got, _ = s.Get(id)
	if got.Description != "" {
		t.Fatalf("explicit empty description must clear, got %q", got.Description)
	}
	if got.IsSynced {
		t.Fatalf("update must clear isSynced")
	}
}

func TestUpdateTaskUnknownID(t *testing.T) {
	s, _, _ := newTestStore(t)
	if s.UpdateTask("missing", Patch{Title: Set("x")}) {
		t.Fatalf("expected false for unknown id")
	}
}

func TestUpdatedAtNeverMovesBackwards(t *testing.T) {
	s, clock, _ := newTestStore(t)
	id := s.AddTask(NewTask{Title: "a"})
	before, _ := s.Get(id)

	clock.Advance(-time.Hour)
	s.UpdateTask(id, Patch{Description: Set("b")})
	after, _ := s.Get(id)
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("updatedAt went backwards: %s -> %s", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestToggleStatusRollsOverRepeatingTask(t *testing.T) {
	s, clock, _ := newTestStore(t)
	due := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	id := s.AddTask(NewTask{
		Title:        "Pay rent",
		DueDate:      &due,
		RepeatType:   model.RepeatMonthly,
		RepeatConfig: model.MonthlyConfig{DayOfMonth: 1, IntervalMonths: 1},
	})

	got, ok := s.ToggleTaskStatus(id)
	if !ok {
		t.Fatalf("toggle failed")
	}
	want := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	if got.Status != model.StatusPending {
		t.Fatalf("repeating task must stay pending, got %s", got.Status)
	}
	if got.DueDate == nil || !got.DueDate.Equal(want) {
		t.Fatalf("expected due %s, got %v", want, got.DueDate)
	}
	if got.NextOccurrence == nil || !got.NextOccurrence.Equal(want) {
		t.Fatalf("expected nextOccurrence %s, got %v", want, got.NextOccurrence)
	}
	if got.LastCompletedAt == nil || !got.LastCompletedAt.Equal(clock.now) {
		t.Fatalf("expected lastCompletedAt %s, got %v", clock.now, got.LastCompletedAt)
	}
}

func TestToggleStatusPlainAndInactiveRepeating(t *testing.T) {
	s, _, _ := newTestStore(t)
	plain := s.AddTask(NewTask{Title: "one-off"})
	got, _ := s.ToggleTaskStatus(plain)
	if got.Status != model.StatusCompleted || got.LastCompletedAt == nil {
		t.Fatalf("expected completed, got %#v", got)
	}
	got, _ = s.ToggleTaskStatus(plain)
	if got.Status != model.StatusPending {
		t.Fatalf("expected pending after second toggle, got %s", got.Status)
	}

	due := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	inactive := s.AddTask(NewTask{
		Title:        "daily",
		DueDate:      &due,
		RepeatType:   model.RepeatDaily,
		RepeatConfig: model.DailyConfig{IntervalDays: 1},
	})
	s.ToggleTaskActive(inactive)
	got, _ = s.ToggleTaskStatus(inactive)
	if got.Status != model.StatusCompleted || !got.DueDate.Equal(due) {
		t.Fatalf("inactive repeating task must complete without rollover: %#v", got)
	}

	custom := s.AddTask(NewTask{
		Title:        "custom",
		DueDate:      &due,
		RepeatType:   model.RepeatCustom,
		RepeatConfig: model.CustomConfig{},
	})
	got, _ = s.ToggleTaskStatus(custom)
	if got.Status != model.StatusCompleted {
		t.Fatalf("task without next occurrence must complete, got %s", got.Status)
	}
}

func TestSnoozeGatingAndFields(t *testing.T) {
	s, clock, _ := newTestStore(t)
	due := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	disabled := s.AddTask(NewTask{Title: "no snooze", DueDate: &due, SnoozeDuration: "PT10M"})
	if _, ok := s.SnoozeTask(disabled); ok {
		t.Fatalf("snooze must be gated on snoozeEnabled")
	}
	noDuration := s.AddTask(NewTask{Title: "no duration", DueDate: &due, SnoozeEnabled: true})
	if _, ok := s.SnoozeTask(noDuration); ok {
		t.Fatalf("snooze must be gated on snoozeDuration")
	}

	id := s.AddTask(NewTask{
		Title:          "stretch",
		DueDate:        &due,
		SnoozeEnabled:  true,
		SnoozeDuration: "PT10M",
		RepeatType:     model.RepeatDaily,
		RepeatConfig:   model.DailyConfig{IntervalDays: 1},
	})
	got, ok := s.SnoozeTask(id)
	if !ok {
		t.Fatalf("expected snooze to apply")
	}
	if got.SnoozedUntil == nil || !got.SnoozedUntil.Equal(clock.now.Add(10*time.Minute)) {
		t.Fatalf("unexpected snoozedUntil %v", got.SnoozedUntil)
	}
	if got.SnoozeCount != 1 || !got.DueDate.Equal(due) || got.RepeatType != model.RepeatDaily {
		t.Fatalf("snooze must only touch snooze fields: %#v", got)
	}

	s.ToggleTaskActive(id)
	if _, ok := s.SnoozeTask(id); ok {
		t.Fatalf("snooze must be gated on isActive")
	}
}

func TestSyncBookkeeping(t *testing.T) {
	s, clock, _ := newTestStore(t)
	a := s.AddTask(NewTask{Title: "a"})
	b := s.AddTask(NewTask{Title: "b"})

	before, _ := s.Get(a)
	s.MarkSynced(a)
	after, _ := s.Get(a)
	if !after.IsSynced || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("MarkSynced must not bump updatedAt: %#v", after)
	}

	unsynced := s.Unsynced()
	if len(unsynced) != 1 || unsynced[0].ID != b {
		t.Fatalf("unexpected unsynced set: %#v", unsynced)
	}

	if n := s.SetUserID("user-1"); n != 2 {
		t.Fatalf("expected 2 tasks tagged, got %d", n)
	}
	if n := s.SetUserID("user-2"); n != 0 {
		t.Fatalf("owner backfill must not overwrite, got %d", n)
	}

	remote := model.Task{ID: "remote-1", Title: "from remote", Status: model.StatusPending, IsActive: true, UpdatedAt: clock.now}
	s.UpsertFromRemote(remote)
	got, ok := s.Get("remote-1")
	if !ok || !got.IsSynced {
		t.Fatalf("remote upsert must be stored synced: %#v", got)
	}

	s.SetLastSyncAt(clock.now)
	if last := s.LastSyncAt(); last == nil || !last.Equal(clock.now) {
		t.Fatalf("unexpected lastSyncAt %v", last)
	}

	if !s.DeleteTask(a) || s.DeleteTask(a) {
		t.Fatalf("delete must succeed once")
	}

	s.Clear()
	if s.Len() != 0 || s.LastSyncAt() != nil {
		t.Fatalf("clear must empty the store")
	}
}

func TestReturnedTasksDoNotAliasStore(t *testing.T) {
	s, _, _ := newTestStore(t)
	id := s.AddTask(NewTask{Title: "a", PreNotifyOffsets: []string{"PT5M"}})
	got, _ := s.Get(id)
	got.PreNotifyOffsets[0] = "PT1H"
	again, _ := s.Get(id)
	if again.PreNotifyOffsets[0] != "PT5M" {
		t.Fatalf("store state leaked through returned task")
	}
}

func TestLoadRestoresSnapshot(t *testing.T) {
	s, _, p := newTestStore(t)
	id := s.AddTask(NewTask{Title: "persisted"})
	s.SetLastSyncAt(time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC))

	restored := New(WithPersister(p))
	if err := restored.Load(t.Context()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := restored.Get(id); !ok {
		t.Fatalf("task not restored")
	}
	if restored.LastSyncAt() == nil {
		t.Fatalf("lastSyncAt not restored")
	}
}
