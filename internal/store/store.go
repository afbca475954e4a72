package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sandeepkv93/cronos/internal/duration"
	"github.com/sandeepkv93/cronos/internal/model"
)

// Field is an optional patch value. The zero Field means "not provided".
type Field[T any] struct {
	value T
	set   bool
}

func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

func (f Field[T]) Get() (T, bool) {
	return f.value, f.set
}

// NewTask carries the inputs of AddTask. Zero values take the documented
// defaults: medium priority, no repeat, no offsets, snooze disabled.
type NewTask struct {
	Title            string
	Description      string
	DueDate          *time.Time
	ScheduledDate    string
	ScheduledTime    string
	Timezone         string
	Priority         model.Priority
	RepeatType       model.RepeatType
	RepeatConfig     model.RepeatConfig
	PreNotifyOffsets []string
	SnoozeEnabled    bool
	SnoozeDuration   string
}

// Patch is the input of UpdateTask. A provided field overwrites the stored
// value even when empty; an omitted field keeps it.
type Patch struct {
	Title            Field[string]
	Description      Field[string]
	DueDate          Field[*time.Time]
	ScheduledDate    Field[string]
	ScheduledTime    Field[string]
	Timezone         Field[string]
	Priority         Field[model.Priority]
	RepeatType       Field[model.RepeatType]
	RepeatConfig     Field[model.RepeatConfig]
	PreNotifyOffsets Field[[]string]
	SnoozeEnabled    Field[bool]
	SnoozeDuration   Field[string]
	SnoozedUntil     Field[*time.Time]
}

type Option func(*Store)

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.log = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Store is the local task collection. Mutations never fail loudly: invalid
// input is logged and reported through the zero return value. Every
// successful mutation is written through the persister.
type Store struct {
	mu         sync.Mutex
	tasks      []model.Task
	lastSyncAt *time.Time

	persister Persister
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

func New(opts ...Option) *Store {
	s := &Store{
		log:   zerolog.Nop(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with the persisted snapshot, running the
// load-time migration. A missing snapshot leaves the store empty.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	snap, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.tasks = snap.Tasks
	s.lastSyncAt = snap.LastSyncAt
	s.mu.Unlock()
	s.log.Debug().Int("tasks", len(snap.Tasks)).Msg("task store loaded")
	return nil
}

// Save writes the current state through the persister.
func (s *Store) Save(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return s.persister.Save(ctx, snap)
}

func (s *Store) snapshotLocked() Snapshot {
	tasks := make([]model.Task, len(s.tasks))
	for i, t := range s.tasks {
		tasks[i] = t.Clone()
	}
	var last *time.Time
	if s.lastSyncAt != nil {
		v := *s.lastSyncAt
		last = &v
	}
	return Snapshot{Tasks: tasks, LastSyncAt: last}
}

func (s *Store) autosave() {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Save(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to persist task store")
	}
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// touch bumps updatedAt so that it never moves backwards and clears the
// synced flag.
func (s *Store) touch(t *model.Task) {
	now := s.stamp()
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Millisecond)
	}
	t.UpdatedAt = now
	t.IsSynced = false
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Tasks returns a copy of every task in insertion order.
func (s *Store) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

func (s *Store) Get(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.Task{}, false
	}
	return s.tasks[i].Clone(), true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Store) LastSyncAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSyncAt == nil {
		return nil
	}
	v := *s.lastSyncAt
	return &v
}

// AddTask creates a pending, active task and returns its id, or "" when the
// title is blank.
func (s *Store) AddTask(in NewTask) string {
	if strings.TrimSpace(in.Title) == "" {
		s.log.Warn().Msg("cannot add task with empty title")
		return ""
	}
	priority := in.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	repeatType := in.RepeatType
	if repeatType == "" {
		repeatType = model.RepeatNone
	}
	offsets := append([]string{}, in.PreNotifyOffsets...)

	now := s.stamp()
	task := model.Task{
		ID:               s.newID(),
		Title:            in.Title,
		Description:      in.Description,
		DueDate:          in.DueDate,
		ScheduledDate:    in.ScheduledDate,
		ScheduledTime:    in.ScheduledTime,
		Timezone:         in.Timezone,
		IsActive:         true,
		RepeatType:       repeatType,
		RepeatConfig:     in.RepeatConfig,
		PreNotifyOffsets: offsets,
		SnoozeEnabled:    in.SnoozeEnabled,
		SnoozeDuration:   in.SnoozeDuration,
		Priority:         priority,
		Status:           model.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	task = task.Clone()

	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	s.log.Debug().Str("task_id", task.ID).Msg("task added")
	s.autosave()
	return task.ID
}

// UpdateTask applies p to the task and reports whether it exists.
func (s *Store) UpdateTask(id string, p Patch) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		s.log.Warn().Str("task_id", id).Msg("update: task not found")
		return false
	}
	t := s.tasks[i].Clone()
	if v, ok := p.Title.Get(); ok {
		if strings.TrimSpace(v) == "" {
			s.log.Warn().Str("task_id", id).Msg("update: ignoring empty title")
		} else {
			t.Title = v
		}
	}
	if v, ok := p.Description.Get(); ok {
		t.Description = v
	}
	if v, ok := p.DueDate.Get(); ok {
		t.DueDate = v
	}
	if v, ok := p.ScheduledDate.Get(); ok {
		t.ScheduledDate = v
	}
	if v, ok := p.ScheduledTime.Get(); ok {
		t.ScheduledTime = v
	}
	if v, ok := p.Timezone.Get(); ok {
		t.Timezone = v
	}
	if v, ok := p.Priority.Get(); ok {
		t.Priority = v
	}
	if v, ok := p.RepeatType.Get(); ok {
		t.RepeatType = v
	}
	if v, ok := p.RepeatConfig.Get(); ok {
		t.RepeatConfig = v
	}
	if v, ok := p.PreNotifyOffsets.Get(); ok {
		t.PreNotifyOffsets = append([]string{}, v...)
	}
	if v, ok := p.SnoozeEnabled.Get(); ok {
		t.SnoozeEnabled = v
	}
	if v, ok := p.SnoozeDuration.Get(); ok {
		t.SnoozeDuration = v
	}
	if v, ok := p.SnoozedUntil.Get(); ok {
		t.SnoozedUntil = v
	}
	s.touch(&t)
	s.tasks[i] = t.Clone()
	s.mu.Unlock()
	s.autosave()
	return true
}

// ToggleTaskStatus flips pending and completed. Completing an active
// repeating task rolls it over to its next occurrence instead, keeping it
// pending. The returned task is the stored result.
func (s *Store) ToggleTaskStatus(id string) (model.Task, bool) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		s.log.Warn().Str("task_id", id).Msg("toggle status: task not found")
		return model.Task{}, false
	}
	t := s.tasks[i].Clone()
	now := s.stamp()
	completing := t.Status != model.StatusCompleted

	rolled := false
	if completing && t.IsActive && t.RepeatType != "" && t.RepeatType != model.RepeatNone {
		if next, ok := model.NextOccurrence(t); ok {
			t.Status = model.StatusPending
			t.DueDate = model.TimePtr(next)
			t.NextOccurrence = model.TimePtr(next)
			t.LastCompletedAt = model.TimePtr(now)
			rolled = true
			s.log.Debug().Str("task_id", id).Time("next", next).Msg("repeating task rolled over")
		} else {
			s.log.Debug().Str("task_id", id).Msg("no next occurrence, completing")
		}
	}
	if !rolled {
		if completing {
			t.Status = model.StatusCompleted
			t.LastCompletedAt = model.TimePtr(now)
		} else {
			t.Status = model.StatusPending
		}
	}
	s.touch(&t)
	s.tasks[i] = t.Clone()
	s.mu.Unlock()
	s.autosave()
	return t, true
}

// ToggleTaskActive flips isActive. Alert bookkeeping is the caller's job.
func (s *Store) ToggleTaskActive(id string) (model.Task, bool) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		s.log.Warn().Str("task_id", id).Msg("toggle active: task not found")
		return model.Task{}, false
	}
	t := s.tasks[i].Clone()
	t.IsActive = !t.IsActive
	s.touch(&t)
	s.tasks[i] = t.Clone()
	s.mu.Unlock()
	s.autosave()
	return t, true
}

// SnoozeTask sets snoozedUntil to now plus the task's snooze duration. It
// only touches the snooze fields; the due date and repeat rule stay intact.
func (s *Store) SnoozeTask(id string) (model.Task, bool) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		s.log.Info().Str("task_id", id).Msg("snooze: task not found")
		return model.Task{}, false
	}
	t := s.tasks[i].Clone()
	switch {
	case !t.SnoozeEnabled:
		s.mu.Unlock()
		s.log.Info().Str("task_id", id).Msg("snooze: not enabled for this task")
		return model.Task{}, false
	case !t.IsActive:
		s.mu.Unlock()
		s.log.Info().Str("task_id", id).Msg("snooze: task is inactive")
		return model.Task{}, false
	case t.SnoozeDuration == "":
		s.mu.Unlock()
		s.log.Info().Str("task_id", id).Msg("snooze: no duration configured")
		return model.Task{}, false
	}
	d, err := duration.Parse(t.SnoozeDuration)
	if err != nil || d <= 0 {
		s.mu.Unlock()
		s.log.Warn().Err(err).Str("task_id", id).Str("duration", t.SnoozeDuration).Msg("snooze: unusable duration")
		return model.Task{}, false
	}
	until := s.now().UTC().Add(d)
	t.SnoozedUntil = &until
	t.SnoozeCount++
	s.touch(&t)
	s.tasks[i] = t.Clone()
	s.mu.Unlock()
	s.autosave()
	return t, true
}

// DeleteTask removes the task locally. Remote deletion is separate.
func (s *Store) DeleteTask(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.mu.Unlock()
	s.autosave()
	return true
}

// MarkSynced sets isSynced without touching updatedAt.
func (s *Store) MarkSynced(id string) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i >= 0 {
		s.tasks[i].IsSynced = true
	}
	s.mu.Unlock()
	if i >= 0 {
		s.autosave()
	}
}

// UpsertFromRemote stores a remote record wholesale, marked synced.
func (s *Store) UpsertFromRemote(remote model.Task) {
	t := remote.Clone()
	t.IsSynced = true
	s.mu.Lock()
	if i := s.indexLocked(t.ID); i >= 0 {
		s.tasks[i] = t
	} else {
		s.tasks = append(s.tasks, t)
	}
	s.mu.Unlock()
	s.autosave()
}

// Unsynced returns the tasks with local changes not yet pushed.
func (s *Store) Unsynced() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, 0)
	for _, t := range s.tasks {
		if !t.IsSynced {
			out = append(out, t.Clone())
		}
	}
	return out
}

// SetUserID assigns userID to every task that has no owner yet and returns
// how many were tagged.
func (s *Store) SetUserID(userID string) int {
	if userID == "" {
		return 0
	}
	s.mu.Lock()
	n := 0
	for i := range s.tasks {
		if s.tasks[i].UserID == "" {
			s.tasks[i].UserID = userID
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.autosave()
	}
	return n
}

func (s *Store) SetLastSyncAt(at time.Time) {
	at = at.UTC()
	s.mu.Lock()
	s.lastSyncAt = &at
	s.mu.Unlock()
	s.autosave()
}

// Clear drops every task and the last sync timestamp.
func (s *Store) Clear() {
	s.mu.Lock()
	s.tasks = nil
	s.lastSyncAt = nil
	s.mu.Unlock()
	s.autosave()
}
