package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/storage"
)

const (
	// StateKey is the storage key of the task snapshot.
	StateKey = "cronos-task-store"
	// SnapshotVersion is written with every save and handed to the
	// migration on load.
	SnapshotVersion = 1

	untitled = "Untitled Task"
)

// Snapshot is the persisted shape of the store.
type Snapshot struct {
	Tasks      []model.Task `json:"tasks"`
	LastSyncAt *time.Time   `json:"lastSyncAt,omitempty"`
}

// Persister is the storage port of the Store. Load returns an empty
// snapshot when nothing has been saved yet.
type Persister interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// RepositoryPersister keeps the snapshot as one versioned JSON blob in a
// storage.StateRepository.
type RepositoryPersister struct {
	repo storage.StateRepository
	key  string
	log  zerolog.Logger
}

func NewRepositoryPersister(repo storage.StateRepository, logger zerolog.Logger) *RepositoryPersister {
	return &RepositoryPersister{repo: repo, key: StateKey, log: logger}
}

func (p *RepositoryPersister) Load(ctx context.Context) (Snapshot, error) {
	rec, err := p.repo.LoadState(ctx, p.key)
	if errors.Is(err, storage.ErrNotFound) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load task snapshot: %w", err)
	}
	snap, dropped, err := DecodeSnapshot(rec.Payload, rec.Version)
	if err != nil {
		return Snapshot{}, err
	}
	if dropped > 0 {
		p.log.Warn().Int("dropped", dropped).Int("version", rec.Version).Msg("dropped tasks with empty titles during migration")
	}
	return snap, nil
}

func (p *RepositoryPersister) Save(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode task snapshot: %w", err)
	}
	return p.repo.SaveState(ctx, storage.StateRecord{
		Key:       p.key,
		Version:   SnapshotVersion,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	})
}

type rawSnapshot struct {
	Tasks      []map[string]json.RawMessage `json:"tasks"`
	LastSyncAt *time.Time                   `json:"lastSyncAt,omitempty"`
}

// DecodeSnapshot parses a persisted payload and migrates every record:
// non-string titles and descriptions become strings, a missing isActive
// becomes true, and records left with a blank title are dropped. It returns
// the number of dropped records.
func DecodeSnapshot(payload []byte, version int) (Snapshot, int, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Snapshot{}, 0, fmt.Errorf("decode task snapshot v%d: %w", version, err)
	}
	out := Snapshot{Tasks: make([]model.Task, 0, len(raw.Tasks)), LastSyncAt: raw.LastSyncAt}
	dropped := 0
	for _, rec := range raw.Tasks {
		title := coerceString(rec["title"], untitled)
		if strings.TrimSpace(title) == "" {
			dropped++
			continue
		}
		rec["title"] = mustJSON(title)
		if desc, ok := rec["description"]; ok {
			rec["description"] = mustJSON(coerceString(desc, ""))
		}
		if v, ok := rec["isActive"]; !ok || string(v) == "null" {
			rec["isActive"] = json.RawMessage("true")
		}
		buf, err := json.Marshal(rec)
		if err != nil {
			return Snapshot{}, 0, err
		}
		var task model.Task
		if err := json.Unmarshal(buf, &task); err != nil {
			return Snapshot{}, 0, fmt.Errorf("decode task record: %w", err)
		}
		out.Tasks = append(out.Tasks, task)
	}
	return out, dropped, nil
}

// coerceString renders any JSON value as a string. Absent, null, false, 0
// and "" fall back to def for non-string values, matching a truthiness test.
func coerceString(raw json.RawMessage, def string) string {
	if len(raw) == 0 {
		return def
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return def
	case bool:
		if !x {
			return def
		}
		return "true"
	case float64:
		if x == 0 {
			return def
		}
		return fmt.Sprint(x)
	default:
		return string(raw)
	}
}

func mustJSON(v string) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
