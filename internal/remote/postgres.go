package remote

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/sandeepkv93/cronos/internal/syncer"
)

// Channel is the LISTEN/NOTIFY channel fed by the tasks trigger.
const Channel = "cronos_task_changes"

var ErrNoDSN = errors.New("remote: postgres dsn is required")

//go:embed migrations/*.sql
var migrationFiles embed.FS

const taskColumns = `id, local_id, user_id, title, due_date, scheduled_date, scheduled_time, timezone,
	is_active, repeat_type, repeat_config, last_completed_at, next_occurrence, pre_notify_offsets,
	snooze_enabled, snooze_duration, snoozed_until, snooze_count, priority, description, status,
	created_at, updated_at`

type Option func(*PostgresStore)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *PostgresStore) { s.log = logger }
}

// WithReconnect bounds the listener's reconnect backoff.
func WithReconnect(min, max time.Duration) Option {
	return func(s *PostgresStore) {
		if min > 0 {
			s.minReconnect = min
		}
		if max >= s.minReconnect {
			s.maxReconnect = max
		}
	}
}

// PostgresStore is the shared tasks table plus its change feed.
type PostgresStore struct {
	db           *sql.DB
	dsn          string
	log          zerolog.Logger
	minReconnect time.Duration
	maxReconnect time.Duration
}

func New(db *sql.DB, dsn string, opts ...Option) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("remote: nil db")
	}
	s := &PostgresStore{
		db:           db,
		dsn:          dsn,
		log:          zerolog.Nop(),
		minReconnect: 10 * time.Second,
		maxReconnect: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrNoDSN
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db, dsn, opts...)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate creates the tasks table and the change trigger.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, s.db, ".up.sql", false)
}

// MigrateDown drops what Migrate created, newest first.
func (s *PostgresStore) MigrateDown(ctx context.Context) error {
	return applyMigrations(ctx, s.db, ".down.sql", true)
}

func applyMigrations(ctx context.Context, db *sql.DB, suffix string, reverse bool) error {
	entries, err := fs.Glob(migrationFiles, "migrations/*"+suffix)
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(entries)
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(entries)))
	}
	for _, name := range entries {
		body, readErr := migrationFiles.ReadFile(name)
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", name, readErr)
		}
		if _, execErr := db.ExecContext(ctx, string(body)); execErr != nil {
			return fmt.Errorf("apply migration %s: %w", name, execErr)
		}
	}
	return nil
}

func (s *PostgresStore) FetchTasks(ctx context.Context, userID string) ([]syncer.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	defer rows.Close()

	out := make([]syncer.Row, 0)
	for rows.Next() {
		row, scanErr := scanRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan task row: %w", scanErr)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// UpsertTask inserts the row or overwrites every column of the row with the
// same id.
func (s *PostgresStore) UpsertTask(ctx context.Context, row syncer.Row) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (id) DO UPDATE SET
			local_id = excluded.local_id,
			user_id = excluded.user_id,
			title = excluded.title,
			due_date = excluded.due_date,
			scheduled_date = excluded.scheduled_date,
			scheduled_time = excluded.scheduled_time,
			timezone = excluded.timezone,
			is_active = excluded.is_active,
			repeat_type = excluded.repeat_type,
			repeat_config = excluded.repeat_config,
			last_completed_at = excluded.last_completed_at,
			next_occurrence = excluded.next_occurrence,
			pre_notify_offsets = excluded.pre_notify_offsets,
			snooze_enabled = excluded.snooze_enabled,
			snooze_duration = excluded.snooze_duration,
			snoozed_until = excluded.snoozed_until,
			snooze_count = excluded.snooze_count,
			priority = excluded.priority,
			description = excluded.description,
			status = excluded.status,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		upsertArgs(row)...,
	)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", row.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func upsertArgs(r syncer.Row) []any {
	var cfg any
	if len(r.RepeatConfig) > 0 && string(r.RepeatConfig) != "null" {
		cfg = string(r.RepeatConfig)
	}
	var offsets any
	if r.PreNotifyOffsets != nil {
		offsets = pq.Array(r.PreNotifyOffsets)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = r.UpdatedAt
	}
	return []any{
		r.ID, r.LocalID, r.UserID, r.Title, r.DueDate,
		r.ScheduledDate, r.ScheduledTime, r.Timezone,
		r.IsActive, r.RepeatType, cfg, r.LastCompletedAt, r.NextOccurrence, offsets,
		r.SnoozeEnabled, r.SnoozeDuration, r.SnoozedUntil, r.SnoozeCount,
		r.Priority, r.Description, r.Status,
		created.UTC(), r.UpdatedAt.UTC(),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (syncer.Row, error) {
	var (
		out                                  syncer.Row
		localID                              sql.NullString
		due, lastCompleted, next, snoozed    sql.NullTime
		schedDate, schedTime, tz, repeatType sql.NullString
		snoozeDur, priority, desc            sql.NullString
		active, snoozeEnabled                sql.NullBool
		snoozeCount                          sql.NullInt64
		cfg                                  []byte
		offsets                              pq.StringArray
	)
	if err := s.Scan(
		&out.ID, &localID, &out.UserID, &out.Title, &due, &schedDate, &schedTime, &tz,
		&active, &repeatType, &cfg, &lastCompleted, &next, &offsets,
		&snoozeEnabled, &snoozeDur, &snoozed, &snoozeCount, &priority, &desc, &out.Status,
		&out.CreatedAt, &out.UpdatedAt,
	); err != nil {
		return syncer.Row{}, err
	}
	out.LocalID = localID.String
	out.DueDate = nullTime(due)
	out.LastCompletedAt = nullTime(lastCompleted)
	out.NextOccurrence = nullTime(next)
	out.SnoozedUntil = nullTime(snoozed)
	out.ScheduledDate = nullString(schedDate)
	out.ScheduledTime = nullString(schedTime)
	out.Timezone = nullString(tz)
	out.RepeatType = nullString(repeatType)
	out.SnoozeDuration = nullString(snoozeDur)
	out.Priority = nullString(priority)
	out.Description = nullString(desc)
	if active.Valid {
		out.IsActive = &active.Bool
	}
	if snoozeEnabled.Valid {
		out.SnoozeEnabled = &snoozeEnabled.Bool
	}
	if snoozeCount.Valid {
		n := int(snoozeCount.Int64)
		out.SnoozeCount = &n
	}
	if len(cfg) > 0 {
		out.RepeatConfig = json.RawMessage(cfg)
	}
	if offsets != nil {
		out.PreNotifyOffsets = []string(offsets)
	}
	return out, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
