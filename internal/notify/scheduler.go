package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandeepkv93/cronos/internal/duration"
	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/scheduler"
)

// AlarmService is the device alarm boundary: schedule after a delay, cancel
// by handle, enumerate what is outstanding.
type AlarmService interface {
	Schedule(ctx context.Context, alert model.Alert, delay time.Duration) (string, error)
	Cancel(ctx context.Context, handle string) error
	CancelAll(ctx context.Context) error
	List(ctx context.Context) ([]scheduler.Alarm, error)
}

type Option func(*Scheduler)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler keeps a task's outstanding alerts in line with its scheduling
// fields. Every schedule call first cancels what the task already has, so
// repeated calls never stack alerts.
type Scheduler struct {
	alarms AlarmService
	log    zerolog.Logger
	now    func() time.Time
}

func NewScheduler(alarms AlarmService, opts ...Option) *Scheduler {
	s := &Scheduler{alarms: alarms, log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleTask arms the pre-notifications, the main alert and a pending
// snooze alert for t, returning the main alert's handle. It returns "" with
// no error when t is inactive, has no due date or is already due. An error
// means the main alert could not be armed; the cancel and the
// pre-notifications before it stay applied.
func (s *Scheduler) ScheduleTask(ctx context.Context, t model.Task) (string, error) {
	logger := s.log.With().Str("task_id", t.ID).Logger()
	if !t.IsActive {
		logger.Debug().Msg("task is inactive, skipping notification")
		return "", nil
	}
	if t.DueDate == nil {
		logger.Debug().Msg("no due date, skipping notification")
		return "", nil
	}

	s.CancelTask(ctx, t.ID)

	now := s.now()
	due := *t.DueDate
	s.scheduleSnooze(ctx, t, now, logger)
	if !due.After(now) {
		logger.Debug().Time("due", due).Msg("due date is in the past, skipping")
		return "", nil
	}

	for _, offset := range t.PreNotifyOffsets {
		at, err := duration.Subtract(due, offset)
		if err != nil {
			logger.Warn().Err(err).Str("offset", offset).Msg("failed to schedule pre-notification")
			continue
		}
		if !at.After(now) {
			logger.Debug().Str("offset", offset).Msg("pre-notification is in the past, skipping")
			continue
		}
		alert := model.Alert{
			TaskID:      t.ID,
			Kind:        model.AlertPreNotification,
			Offset:      offset,
			Title:       fmt.Sprintf("⏰ Reminder: %s", t.Title),
			Body:        fmt.Sprintf("Due in %s", duration.Format(offset)),
			ScheduledAt: now,
			TriggerAt:   at,
		}
		if _, err := s.alarms.Schedule(ctx, alert, delayUntil(now, at)); err != nil {
			logger.Warn().Err(err).Str("offset", offset).Msg("failed to schedule pre-notification")
			continue
		}
		logger.Debug().Str("offset", offset).Time("at", at).Msg("pre-notification scheduled")
	}

	main := model.Alert{
		TaskID:      t.ID,
		Kind:        model.AlertMain,
		Title:       "⏰ Task Reminder",
		Body:        t.Title,
		ScheduledAt: now,
		TriggerAt:   due,
	}
	handle, err := s.alarms.Schedule(ctx, main, delayUntil(now, due))
	if err != nil {
		logger.Error().Err(err).Msg("failed to schedule main notification")
		return "", fmt.Errorf("schedule main alert for %s: %w", t.ID, err)
	}
	logger.Debug().Str("handle", handle).Time("at", due).Msg("main notification scheduled")
	return handle, nil
}

func (s *Scheduler) scheduleSnooze(ctx context.Context, t model.Task, now time.Time, logger zerolog.Logger) {
	if t.SnoozedUntil == nil || !t.SnoozedUntil.After(now) || t.Status == model.StatusCompleted {
		return
	}
	at := *t.SnoozedUntil
	alert := model.Alert{
		TaskID:      t.ID,
		Kind:        model.AlertSnooze,
		Title:       fmt.Sprintf("⏰ Snoozed: %s", t.Title),
		Body:        t.Title,
		ScheduledAt: now,
		TriggerAt:   at,
	}
	if _, err := s.alarms.Schedule(ctx, alert, delayUntil(now, at)); err != nil {
		logger.Warn().Err(err).Msg("failed to schedule snooze notification")
	}
}

// CancelTask cancels every outstanding alert tagged with taskID and returns
// how many were cancelled. Failures are logged, never returned.
func (s *Scheduler) CancelTask(ctx context.Context, taskID string) int {
	alarms, err := s.alarms.List(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("error cancelling task notifications")
		return 0
	}
	cancelled := 0
	for _, a := range alarms {
		if a.Alert.TaskID != taskID {
			continue
		}
		if err := s.alarms.Cancel(ctx, a.Handle); err != nil {
			s.log.Warn().Err(err).Str("task_id", taskID).Str("handle", a.Handle).Msg("failed to cancel notification")
			continue
		}
		cancelled++
	}
	if cancelled > 0 {
		s.log.Debug().Str("task_id", taskID).Int("count", cancelled).Msg("cancelled task notifications")
	}
	return cancelled
}

// RescheduleTasks fully replaces the alerts of every task that still has a
// future, pending, active due date. It returns how many main alerts were
// armed.
func (s *Scheduler) RescheduleTasks(ctx context.Context, tasks []model.Task) int {
	scheduled := 0
	for _, t := range tasks {
		if !s.qualifies(t) {
			continue
		}
		handle, err := s.ScheduleTask(ctx, t)
		if err == nil && handle != "" {
			scheduled++
		}
	}
	s.log.Debug().Int("tasks", len(tasks)).Int("scheduled", scheduled).Msg("reschedule complete")
	return scheduled
}

// RescheduleAll drops every outstanding alert on the device and rebuilds
// the set from tasks.
func (s *Scheduler) RescheduleAll(ctx context.Context, tasks []model.Task) (int, error) {
	if err := s.alarms.CancelAll(ctx); err != nil {
		return 0, fmt.Errorf("cancel all alerts: %w", err)
	}
	scheduled := 0
	for _, t := range tasks {
		if !s.qualifies(t) {
			continue
		}
		handle, err := s.ScheduleTask(ctx, t)
		if err == nil && handle != "" {
			scheduled++
		}
	}
	s.log.Info().Int("tasks", len(tasks)).Int("scheduled", scheduled).Msg("full reschedule complete")
	return scheduled, nil
}

func (s *Scheduler) qualifies(t model.Task) bool {
	if t.Status == model.StatusCompleted || !t.IsActive || t.DueDate == nil {
		return false
	}
	return t.DueDate.After(s.now())
}

// delayUntil rounds down to whole seconds with a one second floor.
func delayUntil(now, at time.Time) time.Duration {
	d := at.Sub(now).Truncate(time.Second)
	if d < time.Second {
		return time.Second
	}
	return d
}
