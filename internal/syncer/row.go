package syncer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/cronos/internal/model"
)

// Row is one task as stored remotely. Columns are snake_case and nullable
// where the local field is optional. isSynced has no column.
type Row struct {
	ID               string          `json:"id"`
	LocalID          string          `json:"local_id"`
	UserID           string          `json:"user_id"`
	Title            string          `json:"title"`
	DueDate          *time.Time      `json:"due_date"`
	ScheduledDate    *string         `json:"scheduled_date"`
	ScheduledTime    *string         `json:"scheduled_time"`
	Timezone         *string         `json:"timezone"`
	IsActive         *bool           `json:"is_active"`
	RepeatType       *string         `json:"repeat_type"`
	RepeatConfig     json.RawMessage `json:"repeat_config"`
	LastCompletedAt  *time.Time      `json:"last_completed_at"`
	NextOccurrence   *time.Time      `json:"next_occurrence"`
	PreNotifyOffsets []string        `json:"pre_notify_offsets"`
	SnoozeEnabled    *bool           `json:"snooze_enabled"`
	SnoozeDuration   *string         `json:"snooze_duration"`
	SnoozedUntil     *time.Time      `json:"snoozed_until"`
	SnoozeCount      *int            `json:"snooze_count"`
	Priority         *string         `json:"priority"`
	Description      *string         `json:"description"`
	Status           string          `json:"status"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// IsValidID reports whether id is a canonical 36 character UUID. Older
// installs minted other ids; those never leave the device.
func IsValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// ToRow maps a local task to its remote row owned by userID.
func ToRow(t model.Task, userID string) (Row, error) {
	cfg, err := model.EncodeRepeatConfig(t.RepeatConfig)
	if err != nil {
		return Row{}, fmt.Errorf("encode repeat config for %s: %w", t.ID, err)
	}
	updated := t.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	active := t.IsActive
	row := Row{
		ID:              t.ID,
		LocalID:         t.ID,
		UserID:          userID,
		Title:           t.Title,
		DueDate:         t.DueDate,
		ScheduledDate:   optString(t.ScheduledDate),
		ScheduledTime:   optString(t.ScheduledTime),
		Timezone:        optString(t.Timezone),
		IsActive:        &active,
		RepeatType:      optString(string(t.RepeatType)),
		RepeatConfig:    cfg,
		LastCompletedAt: t.LastCompletedAt,
		NextOccurrence:  t.NextOccurrence,
		SnoozeDuration:  optString(t.SnoozeDuration),
		SnoozedUntil:    t.SnoozedUntil,
		Priority:        optString(string(t.Priority)),
		Description:     optString(t.Description),
		Status:          string(t.Status),
		UpdatedAt:       updated,
		CreatedAt:       t.CreatedAt,
	}
	if t.PreNotifyOffsets != nil {
		row.PreNotifyOffsets = append([]string{}, t.PreNotifyOffsets...)
	}
	if t.SnoozeEnabled {
		row.SnoozeEnabled = &t.SnoozeEnabled
	}
	if t.SnoozeCount > 0 {
		n := t.SnoozeCount
		row.SnoozeCount = &n
	}
	return row, nil
}

// FromRow maps a remote row to a local task marked synced. A missing
// is_active means active and a missing priority means medium.
func FromRow(r Row) (model.Task, error) {
	repeatType := model.RepeatType(deref(r.RepeatType))
	cfg, err := model.DecodeRepeatConfig(repeatType, r.RepeatConfig)
	if err != nil {
		return model.Task{}, fmt.Errorf("decode repeat config for %s: %w", r.ID, err)
	}
	priority := model.Priority(deref(r.Priority))
	if priority == "" {
		priority = model.PriorityMedium
	}
	t := model.Task{
		ID:              r.ID,
		UserID:          r.UserID,
		Title:           r.Title,
		Description:     deref(r.Description),
		DueDate:         r.DueDate,
		ScheduledDate:   deref(r.ScheduledDate),
		ScheduledTime:   deref(r.ScheduledTime),
		Timezone:        deref(r.Timezone),
		IsActive:        r.IsActive == nil || *r.IsActive,
		RepeatType:      repeatType,
		RepeatConfig:    cfg,
		LastCompletedAt: r.LastCompletedAt,
		NextOccurrence:  r.NextOccurrence,
		SnoozeDuration:  deref(r.SnoozeDuration),
		SnoozedUntil:    r.SnoozedUntil,
		Priority:        priority,
		Status:          model.Status(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		IsSynced:        true,
	}
	if len(r.PreNotifyOffsets) > 0 {
		t.PreNotifyOffsets = append([]string{}, r.PreNotifyOffsets...)
	}
	if r.SnoozeEnabled != nil {
		t.SnoozeEnabled = *r.SnoozeEnabled
	}
	if r.SnoozeCount != nil {
		t.SnoozeCount = *r.SnoozeCount
	}
	return t.Clone(), nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
