package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteTimeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Open creates the parent directory, opens the database and migrates it.
func Open(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	repo, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := MigrateUp(repo.db); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) LoadState(ctx context.Context, key string) (StateRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT key, version, payload, updated_at
		FROM app_state WHERE key = ?`, key)
	var out StateRecord
	var payload string
	var updated string
	if err := row.Scan(&out.Key, &out.Version, &payload, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StateRecord{}, ErrNotFound
		}
		return StateRecord{}, err
	}
	updatedAt, err := parseRequiredTime(updated)
	if err != nil {
		return StateRecord{}, err
	}
	out.Payload = []byte(payload)
	out.UpdatedAt = updatedAt
	return out, nil
}

func (r *SQLiteRepository) SaveState(ctx context.Context, in StateRecord) error {
	updated := in.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_state (key, version, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		in.Key, in.Version, string(in.Payload), mustTime(updated),
	)
	return err
}

func (r *SQLiteRepository) PutAlarm(ctx context.Context, in AlarmRecord) error {
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alarms (handle, task_id, kind, offset_value, title, body, scheduled_at, fire_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			task_id = excluded.task_id,
			kind = excluded.kind,
			offset_value = excluded.offset_value,
			title = excluded.title,
			body = excluded.body,
			scheduled_at = excluded.scheduled_at,
			fire_at = excluded.fire_at`,
		in.Handle, in.TaskID, in.Kind, in.Offset, in.Title, in.Body,
		mustTime(in.ScheduledAt), mustTime(in.FireAt), mustTime(created),
	)
	return err
}

func (r *SQLiteRepository) DeleteAlarm(ctx context.Context, handle string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alarms WHERE handle = ?`, handle)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) DeleteAllAlarms(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM alarms`)
	return err
}

func (r *SQLiteRepository) ListAlarms(ctx context.Context, filter AlarmListFilter) ([]AlarmRecord, error) {
	query := `SELECT handle, task_id, kind, offset_value, title, body, scheduled_at, fire_at, created_at FROM alarms`
	args := make([]any, 0, 3)
	if filter.TaskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, filter.TaskID)
	}
	query += ` ORDER BY fire_at ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AlarmRecord, 0)
	for rows.Next() {
		item, scanErr := scanAlarm(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	} else if offset > 0 {
		sql += " LIMIT -1"
	}
	if offset > 0 {
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlarm(s scanner) (AlarmRecord, error) {
	var out AlarmRecord
	var scheduled, fire, created string
	if err := s.Scan(&out.Handle, &out.TaskID, &out.Kind, &out.Offset, &out.Title, &out.Body, &scheduled, &fire, &created); err != nil {
		return AlarmRecord{}, err
	}
	scheduledAt, err := parseRequiredTime(scheduled)
	if err != nil {
		return AlarmRecord{}, err
	}
	fireAt, err := parseRequiredTime(fire)
	if err != nil {
		return AlarmRecord{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return AlarmRecord{}, err
	}
	out.ScheduledAt = scheduledAt
	out.FireAt = fireAt
	out.CreatedAt = createdAt
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
