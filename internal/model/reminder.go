package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidAlertKind = errors.New("model: invalid alert kind")

type AlertKind string

const (
	AlertMain            AlertKind = "main"
	AlertPreNotification AlertKind = "pre-notification"
	AlertSnooze          AlertKind = "snooze"
)

func (k AlertKind) IsValid() bool {
	switch k {
	case AlertMain, AlertPreNotification, AlertSnooze:
		return true
	default:
		return false
	}
}

// Alert is the payload attached to a scheduled notification. TaskID is the
// only key used to find a task's outstanding alerts.
type Alert struct {
	TaskID      string    `json:"taskId"`
	Kind        AlertKind `json:"type"`
	Offset      string    `json:"offset,omitempty"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduledAt"`
	TriggerAt   time.Time `json:"triggerAt"`
}

func (a Alert) Validate() error {
	if strings.TrimSpace(a.TaskID) == "" {
		return errors.New("model: alert task_id is required")
	}
	if !a.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlertKind, a.Kind)
	}
	if a.Kind == AlertPreNotification && a.Offset == "" {
		return errors.New("model: pre-notification alert requires an offset")
	}
	return nil
}
