package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/store"
)

// Category groups the actions offered on every delivered reminder.
const Category = "REMINDER_ACTION"

const (
	ActionSnooze5m  = "SNOOZE_5M"
	ActionSnooze10m = "SNOOZE_10M"
	ActionSnooze30m = "SNOOZE_30M"
	ActionComplete  = "MARK_DONE"
	ActionDefault   = "DEFAULT"
)

type Action struct {
	ID          string
	ButtonTitle string
}

// Actions is the button set registered for Category, in display order.
var Actions = []Action{
	{ID: ActionSnooze5m, ButtonTitle: "5m"},
	{ID: ActionSnooze10m, ButtonTitle: "10m"},
	{ID: ActionSnooze30m, ButtonTitle: "30m"},
	{ID: ActionComplete, ButtonTitle: "Done"},
}

var snoozeMinutes = map[string]int{
	ActionSnooze5m:  5,
	ActionSnooze10m: 10,
	ActionSnooze30m: 30,
}

// TaskStore is the part of the task store the handler mutates.
type TaskStore interface {
	Get(id string) (model.Task, bool)
	UpdateTask(id string, p store.Patch) bool
	ToggleTaskStatus(id string) (model.Task, bool)
}

// Response is a user interaction with a delivered alert.
type Response struct {
	ActionID string
	Alert    model.Alert
}

type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeOpened     Outcome = "opened"
	OutcomeSnoozed    Outcome = "snoozed"
	OutcomeCompleted  Outcome = "completed"
	OutcomeRolledOver Outcome = "rolled-over"
)

type ResponseHandler struct {
	tasks     TaskStore
	scheduler *Scheduler
	log       zerolog.Logger
	now       func() time.Time
}

func NewResponseHandler(tasks TaskStore, sched *Scheduler, logger zerolog.Logger) *ResponseHandler {
	return &ResponseHandler{tasks: tasks, scheduler: sched, log: logger, now: sched.now}
}

// Handle applies one response. Snoozing rewrites the due date directly,
// bypassing the task's snooze settings, and drops its pre-notifications.
// Completing goes through the normal status toggle so repeating tasks roll
// over.
func (h *ResponseHandler) Handle(ctx context.Context, r Response) Outcome {
	logger := h.log.With().Str("action", r.ActionID).Str("task_id", r.Alert.TaskID).Logger()
	if r.Alert.TaskID == "" {
		logger.Info().Msg("no task id in notification payload")
		return OutcomeIgnored
	}
	task, ok := h.tasks.Get(r.Alert.TaskID)
	if !ok {
		logger.Info().Msg("task not found for notification response")
		return OutcomeIgnored
	}

	if minutes, ok := snoozeMinutes[r.ActionID]; ok {
		return h.snooze(ctx, task, minutes, logger)
	}

	switch r.ActionID {
	case ActionComplete:
		return h.complete(ctx, task, logger)
	case ActionDefault, "":
		logger.Debug().Msg("notification opened")
		return OutcomeOpened
	default:
		logger.Warn().Msg("unknown notification action")
		return OutcomeIgnored
	}
}

func (h *ResponseHandler) snooze(ctx context.Context, task model.Task, minutes int, logger zerolog.Logger) Outcome {
	until := h.now().Add(time.Duration(minutes) * time.Minute)
	h.tasks.UpdateTask(task.ID, store.Patch{
		DueDate:          store.Set(model.TimePtr(until)),
		PreNotifyOffsets: store.Set([]string(nil)),
		SnoozedUntil:     store.Set[*time.Time](nil),
	})

	// The re-fire replaces any pending snooze, so only the new instant is armed.
	task.DueDate = model.TimePtr(until)
	task.PreNotifyOffsets = nil
	task.SnoozedUntil = nil
	if _, err := h.scheduler.ScheduleTask(ctx, task); err != nil {
		logger.Error().Err(err).Msg("failed to schedule snoozed notification")
	}
	logger.Info().Int("minutes", minutes).Time("until", until).Msg("task snoozed from notification")
	return OutcomeSnoozed
}

func (h *ResponseHandler) complete(ctx context.Context, task model.Task, logger zerolog.Logger) Outcome {
	if task.Status == model.StatusCompleted {
		logger.Info().Msg("task already completed")
		return OutcomeIgnored
	}
	updated, ok := h.tasks.ToggleTaskStatus(task.ID)
	if !ok {
		return OutcomeIgnored
	}
	if updated.Status == model.StatusCompleted {
		h.scheduler.CancelTask(ctx, updated.ID)
		logger.Info().Msg("task completed from notification")
		return OutcomeCompleted
	}
	if _, err := h.scheduler.ScheduleTask(ctx, updated); err != nil {
		logger.Error().Err(err).Msg("failed to reschedule rolled over task")
	}
	logger.Info().Msg("repeating task rolled over from notification")
	return OutcomeRolledOver
}
