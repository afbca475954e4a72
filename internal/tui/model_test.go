package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/cronos/internal/app"
	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/notify"
	"github.com/sandeepkv93/cronos/internal/scheduler"
	"github.com/sandeepkv93/cronos/internal/store"
)

var testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func newTestModel(t *testing.T) (Model, *scheduler.Engine) {
	t.Helper()
	now := func() time.Time { return testNow }
	alarms := scheduler.NewEngine(4, scheduler.WithClock(now))
	t.Cleanup(alarms.Stop)
	a := app.New(store.New(store.WithClock(now)), notify.NewScheduler(alarms, notify.WithClock(now)))
	return NewModel(context.Background(), a, WithAlarms(alarms), WithClock(now)), alarms
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeCommand(t *testing.T, m Model, input string) Model {
	t.Helper()
	updated, _ := m.Update(key("/"))
	m = updated.(Model)
	if !m.PaletteActive {
		t.Fatal("expected palette to open")
	}
	for _, r := range input {
		updated, _ = m.Update(key(string(r)))
		m = updated.(Model)
	}
	updated, _ = m.Update(key("enter"))
	return updated.(Model)
}

func TestNewModelDefaults(t *testing.T) {
	m, _ := newTestModel(t)
	if m.Keys.Quit != "q" || m.Keys.Palette != "/" {
		t.Fatalf("unexpected keys: %+v", m.Keys)
	}
	if len(m.Tasks) != 0 || m.SelectedTaskID != "" {
		t.Fatalf("expected empty model, got %+v", m.Tasks)
	}
	if !strings.Contains(m.View(), "local only") {
		t.Fatal("header should show sync is disabled")
	}
}

func TestPaletteAddAndToggle(t *testing.T) {
	m, alarms := newTestModel(t)
	m = typeCommand(t, m, "add pay rent due:PT2H pre:PT30M")
	if m.Status.IsError {
		t.Fatalf("add failed: %s", m.Status.Text)
	}
	if len(m.Tasks) != 1 || m.Tasks[0].Title != "pay rent" {
		t.Fatalf("unexpected tasks: %+v", m.Tasks)
	}
	if m.SelectedTaskID != m.Tasks[0].ID || len(m.Alerts) != 2 {
		t.Fatalf("expected selected task with two alerts, got %q %+v", m.SelectedTaskID, m.Alerts)
	}

	updated, _ := m.Update(key("x"))
	m = updated.(Model)
	if m.Tasks[0].Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", m.Tasks[0].Status)
	}
	pending, _ := alarms.List(context.Background())
	if len(pending) != 0 {
		t.Fatalf("completing must cancel alerts, %d left", len(pending))
	}
}

func TestPaletteErrorsAndEscape(t *testing.T) {
	m, _ := newTestModel(t)
	m = typeCommand(t, m, "frobnicate")
	if !m.Status.IsError || m.LastError == nil {
		t.Fatalf("expected error status, got %+v", m.Status)
	}

	m = typeCommand(t, m, "sync")
	if !errors.Is(m.LastError, app.ErrSyncDisabled) {
		t.Fatalf("expected sync disabled, got %v", m.LastError)
	}

	updated, _ := m.Update(key("/"))
	m = updated.(Model)
	updated, _ = m.Update(key("esc"))
	m = updated.(Model)
	if m.PaletteActive {
		t.Fatal("esc should close the palette")
	}
}

func TestCursorMovement(t *testing.T) {
	m, _ := newTestModel(t)
	m = typeCommand(t, m, "add first")
	m = typeCommand(t, m, "add second")
	if m.Cursor != 1 {
		t.Fatalf("new task should be selected, cursor=%d", m.Cursor)
	}
	updated, _ := m.Update(key("k"))
	m = updated.(Model)
	if m.Cursor != 0 || m.SelectedTaskID != m.Tasks[0].ID {
		t.Fatalf("expected first task selected, got %d %q", m.Cursor, m.SelectedTaskID)
	}
	updated, _ = m.Update(key("k"))
	m = updated.(Model)
	if m.Cursor != 0 {
		t.Fatalf("cursor must not go below zero, got %d", m.Cursor)
	}

	updated, _ = m.Update(key("d"))
	m = updated.(Model)
	if len(m.Tasks) != 1 || m.Tasks[0].Title != "second" {
		t.Fatalf("expected first task deleted, got %+v", m.Tasks)
	}
}

func TestDeliveredAlertActions(t *testing.T) {
	m, alarms := newTestModel(t)
	m = typeCommand(t, m, "add stretch due:PT1H")
	task := m.Tasks[0]

	updated, cmd := m.Update(AlarmFiredMsg{Alarm: scheduler.Alarm{Alert: model.Alert{TaskID: task.ID, Kind: model.AlertMain, Title: "⏰ Task Reminder", Body: "stretch"}}})
	m = updated.(Model)
	if len(m.Delivered) != 1 || !strings.Contains(m.View(), "[1]5m") {
		t.Fatalf("expected delivered alert with actions, got %+v", m.Delivered)
	}
	if cmd != nil {
		t.Fatal("no fired channel configured, expected no follow-up command")
	}

	updated, _ = m.Update(key("2"))
	m = updated.(Model)
	if len(m.Delivered) != 0 {
		t.Fatal("acting on an alert should consume it")
	}
	if m.Tasks[0].DueDate == nil || !m.Tasks[0].DueDate.Equal(testNow.Add(10*time.Minute)) {
		t.Fatalf("snooze action should move the due date, got %v", m.Tasks[0].DueDate)
	}
	pending, _ := alarms.List(context.Background())
	if len(pending) != 1 || !pending[0].FireAt.Equal(testNow.Add(10*time.Minute)) {
		t.Fatalf("expected one re-armed alert, got %+v", pending)
	}

	updated, _ = m.Update(AlarmFiredMsg{Alarm: scheduler.Alarm{Alert: model.Alert{TaskID: task.ID, Kind: model.AlertMain, Title: "t", Body: "stretch"}}})
	m = updated.(Model)
	updated, _ = m.Update(key("esc"))
	m = updated.(Model)
	if len(m.Delivered) != 0 || m.Status.Text != "reminder dismissed" {
		t.Fatalf("esc should dismiss, got %+v", m.Status)
	}
}

func TestStatusMessages(t *testing.T) {
	m, _ := newTestModel(t)
	updated, _ := m.Update(SetStatusMsg{Text: "ready"})
	m = updated.(Model)
	if m.Status.Text != "ready" || m.Status.IsError {
		t.Fatalf("unexpected status: %+v", m.Status)
	}
	updated, _ = m.Update(AppErrorMsg{Err: errors.New("boom")})
	m = updated.(Model)
	if !m.Status.IsError || m.LastError.Error() != "boom" {
		t.Fatalf("unexpected error status: %+v", m.Status)
	}
	updated, _ = m.Update(ClearStatusMsg{})
	m = updated.(Model)
	if m.Status.Text != "" {
		t.Fatalf("expected cleared status, got %+v", m.Status)
	}
}
