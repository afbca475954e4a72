package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStatus   = errors.New("model: invalid task status")
	ErrInvalidPriority = errors.New("model: invalid task priority")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSnoozed   Status = "snoozed"
	StatusCompleted Status = "completed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSnoozed, StatusCompleted:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// ParsePriority accepts any casing and maps "" to medium.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if p == "" {
		return PriorityMedium, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
	}
	return p, nil
}

// Task is the single entity shared by the store, the scheduler and sync.
// IsSynced is local bookkeeping and never leaves the device.
type Task struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	DueDate       *time.Time `json:"dueDate,omitempty"`
	ScheduledDate string     `json:"scheduledDate,omitempty"`
	ScheduledTime string     `json:"scheduledTime,omitempty"`
	Timezone      string     `json:"timezone,omitempty"`
	IsActive      bool       `json:"isActive"`

	RepeatType      RepeatType   `json:"repeatType,omitempty"`
	RepeatConfig    RepeatConfig `json:"-"`
	LastCompletedAt *time.Time   `json:"lastCompletedAt,omitempty"`
	NextOccurrence  *time.Time   `json:"nextOccurrence,omitempty"`

	PreNotifyOffsets []string `json:"preNotifyOffsets,omitempty"`

	SnoozeEnabled  bool       `json:"snoozeEnabled,omitempty"`
	SnoozeDuration string     `json:"snoozeDuration,omitempty"`
	SnoozedUntil   *time.Time `json:"snoozedUntil,omitempty"`
	SnoozeCount    int        `json:"snoozeCount,omitempty"`

	Priority  Priority  `json:"priority,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	IsSynced  bool      `json:"isSynced"`
}

type taskJSON Task

type taskEnvelope struct {
	taskJSON
	RepeatConfig json.RawMessage `json:"repeatConfig,omitempty"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	env := taskEnvelope{taskJSON: taskJSON(t)}
	if t.RepeatConfig != nil {
		raw, err := EncodeRepeatConfig(t.RepeatConfig)
		if err != nil {
			return nil, err
		}
		env.RepeatConfig = raw
	}
	return json.Marshal(env)
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var env taskEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	cfg, err := DecodeRepeatConfig(env.RepeatType, env.RepeatConfig)
	if err != nil {
		return err
	}
	*t = Task(env.taskJSON)
	t.RepeatConfig = cfg
	return nil
}

// IsRepeating reports whether the task carries a usable repeat rule.
func (t Task) IsRepeating() bool {
	return t.RepeatType != "" && t.RepeatType != RepeatNone && t.RepeatConfig != nil
}

// Clone returns a copy that shares no pointers or slices with t.
func (t Task) Clone() Task {
	out := t
	out.DueDate = cloneTime(t.DueDate)
	out.LastCompletedAt = cloneTime(t.LastCompletedAt)
	out.NextOccurrence = cloneTime(t.NextOccurrence)
	out.SnoozedUntil = cloneTime(t.SnoozedUntil)
	if t.PreNotifyOffsets != nil {
		out.PreNotifyOffsets = append([]string(nil), t.PreNotifyOffsets...)
	}
	if w, ok := t.RepeatConfig.(WeeklyConfig); ok {
		w.DaysOfWeek = append([]string(nil), w.DaysOfWeek...)
		out.RepeatConfig = w
	}
	return out
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: task id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("model: task title is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if t.Priority != "" && !t.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, t.Priority)
	}
	if t.RepeatType != "" && t.RepeatType != RepeatNone {
		if !t.RepeatType.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidRepeatType, t.RepeatType)
		}
		if t.RepeatConfig == nil {
			return fmt.Errorf("%w: %s requires a config", ErrInvalidRepeatConfig, t.RepeatType)
		}
		if t.RepeatConfig.Type() != t.RepeatType {
			return fmt.Errorf("%w: %s config on %s task", ErrInvalidRepeatConfig, t.RepeatConfig.Type(), t.RepeatType)
		}
	}
	return nil
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// TimePtr is a convenience for optional instants.
func TimePtr(v time.Time) *time.Time {
	return &v
}
