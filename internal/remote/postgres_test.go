package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/syncer"
)

func TestDecodeNotification(t *testing.T) {
	ev, match, err := decodeNotification(`{"type":"UPDATE","id":"abc","user_id":"u1"}`, "u1")
	require.NoError(t, err)
	assert.True(t, match)
	assert.Equal(t, syncer.ChangeEvent{Type: syncer.EventUpdate, TaskID: "abc", UserID: "u1"}, ev)

	_, match, err = decodeNotification(`{"type":"DELETE","id":"abc","user_id":"u2"}`, "u1")
	require.NoError(t, err)
	assert.False(t, match)

	_, _, err = decodeNotification(`{"type":"DELETE"}`, "u1")
	assert.Error(t, err)
	_, _, err = decodeNotification(`not json`, "u1")
	assert.Error(t, err)
}

func TestUpsertArgsNullables(t *testing.T) {
	updated := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	args := upsertArgs(syncer.Row{ID: "x", Title: "t", Status: "pending", UpdatedAt: updated})
	require.Len(t, args, 23)
	assert.Nil(t, args[10], "missing repeat config must be NULL")
	assert.Nil(t, args[13], "missing offsets must be NULL")
	assert.Equal(t, updated, args[21], "created_at falls back to updated_at")

	args = upsertArgs(syncer.Row{
		ID:               "x",
		RepeatConfig:     json.RawMessage(`{"intervalDays":2}`),
		PreNotifyOffsets: []string{"PT5M"},
		UpdatedAt:        updated,
	})
	assert.Equal(t, `{"intervalDays":2}`, args[10])
	_, isArray := args[13].(*pq.StringArray)
	assert.True(t, isArray)
}

func TestMissingDSN(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNoDSN)

	s, err := New(&sql.DB{}, "")
	require.NoError(t, err)
	_, err = s.Subscribe(context.Background(), "u1", func(syncer.ChangeEvent) {})
	assert.ErrorIs(t, err, ErrNoDSN)
}

// TestPostgresRoundTrip runs against a real server when CRONOS_TEST_POSTGRES_DSN is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("CRONOS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CRONOS_TEST_POSTGRES_DSN not set")
	}
	ctx := t.Context()
	s, err := Open(ctx, dsn, WithReconnect(100*time.Millisecond, time.Second))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	user := "test-" + uuid.NewString()
	due := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	task := model.Task{
		ID:               uuid.NewString(),
		Title:            "Pay rent",
		DueDate:          &due,
		IsActive:         true,
		RepeatType:       model.RepeatMonthly,
		RepeatConfig:     model.MonthlyConfig{DayOfMonth: 1, IntervalMonths: 1},
		PreNotifyOffsets: []string{"P1D"},
		Status:           model.StatusPending,
		CreatedAt:        due.Add(-time.Hour),
		UpdatedAt:        due.Add(-time.Minute),
	}

	events := make(chan syncer.ChangeEvent, 4)
	stop, err := s.Subscribe(ctx, user, func(ev syncer.ChangeEvent) { events <- ev })
	require.NoError(t, err)
	defer stop()

	row, err := syncer.ToRow(task, user)
	require.NoError(t, err)
	require.NoError(t, s.UpsertTask(ctx, row))

	select {
	case ev := <-events:
		assert.Equal(t, task.ID, ev.TaskID)
		assert.Equal(t, syncer.EventInsert, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatalf("no change notification received")
	}

	rows, err := s.FetchTasks(ctx, user)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	back, err := syncer.FromRow(rows[0])
	require.NoError(t, err)
	assert.Equal(t, task.Title, back.Title)
	assert.Equal(t, task.RepeatConfig, back.RepeatConfig)
	assert.Equal(t, []string{"P1D"}, back.PreNotifyOffsets)
	assert.True(t, back.UpdatedAt.Equal(task.UpdatedAt))

	require.NoError(t, s.DeleteTask(ctx, task.ID))
	rows, err = s.FetchTasks(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
