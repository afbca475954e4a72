package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/storage"
)

var (
	ErrInvalidTriggerTime = errors.New("scheduler: invalid trigger time")
	ErrEngineStopped      = errors.New("scheduler: engine stopped")
	ErrUnknownAlarm       = errors.New("scheduler: unknown alarm handle")
)

// Alarm is one outstanding timed alert. Handle is opaque to callers.
type Alarm struct {
	Handle string
	Alert  model.Alert
	FireAt time.Time
}

type queueItem struct {
	alarm Alarm
	index int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].alarm.FireAt.Before(pq[j].alarm.FireAt)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

type Option func(*Engine)

// WithJournal persists outstanding alarms so Restore can re-arm them after a
// restart.
func WithJournal(repo storage.AlarmRepository) Option {
	return func(e *Engine) { e.journal = repo }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine is an in-process alarm service: a min-heap of alarms drained by a
// single timer goroutine onto a buffered channel.
type Engine struct {
	mu      sync.Mutex
	queue   priorityQueue
	byID    map[string]*queueItem
	out     chan Alarm
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	dropped uint64

	journal     storage.AlarmRepository
	restorePage int
	log         zerolog.Logger
	now         func() time.Time
}

func NewEngine(bufferSize int, opts ...Option) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	e := &Engine{
		queue:  make(priorityQueue, 0),
		byID:   make(map[string]*queueItem),
		out:    make(chan Alarm, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		log:    zerolog.Nop(),
		now:    time.Now,

		restorePage: 256,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// C delivers fired alarms. It is closed after Stop.
func (e *Engine) C() <-chan Alarm {
	return e.out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	heap.Init(&e.queue)
	go e.loop()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

// Schedule arms alert to fire after delay and returns its handle.
func (e *Engine) Schedule(ctx context.Context, alert model.Alert, delay time.Duration) (string, error) {
	if delay < 0 {
		return "", fmt.Errorf("%w: negative delay %s", ErrInvalidTriggerTime, delay)
	}
	return e.ScheduleAt(ctx, alert, e.now().Add(delay))
}

func (e *Engine) ScheduleAt(ctx context.Context, alert model.Alert, at time.Time) (string, error) {
	if at.IsZero() {
		return "", ErrInvalidTriggerTime
	}
	if err := alert.Validate(); err != nil {
		return "", err
	}
	alarm := Alarm{Handle: uuid.NewString(), Alert: alert, FireAt: at.UTC()}
	if err := e.arm(ctx, alarm, true); err != nil {
		return "", err
	}
	return alarm.Handle, nil
}

func (e *Engine) arm(ctx context.Context, alarm Alarm, persist bool) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	e.mu.Unlock()

	if persist && e.journal != nil {
		if err := e.journal.PutAlarm(ctx, toRecord(alarm, e.now())); err != nil {
			return fmt.Errorf("journal alarm: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	item := &queueItem{alarm: alarm}
	heap.Push(&e.queue, item)
	e.byID[alarm.Handle] = item
	e.signalWakeup()
	return nil
}

// Cancel removes one outstanding alarm.
func (e *Engine) Cancel(ctx context.Context, handle string) error {
	e.mu.Lock()
	item, ok := e.byID[handle]
	if ok {
		heap.Remove(&e.queue, item.index)
		delete(e.byID, handle)
		e.signalWakeup()
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlarm, handle)
	}
	if e.journal != nil {
		if err := e.journal.DeleteAlarm(ctx, handle); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("unjournal alarm: %w", err)
		}
	}
	return nil
}

// CancelAll drops every outstanding alarm.
func (e *Engine) CancelAll(ctx context.Context) error {
	e.mu.Lock()
	e.queue = e.queue[:0]
	e.byID = make(map[string]*queueItem)
	e.signalWakeup()
	e.mu.Unlock()
	if e.journal != nil {
		if err := e.journal.DeleteAllAlarms(ctx); err != nil {
			return fmt.Errorf("clear alarm journal: %w", err)
		}
	}
	return nil
}

// List returns outstanding alarms ordered by fire time.
func (e *Engine) List(ctx context.Context) ([]Alarm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	out := make([]Alarm, 0, len(e.queue))
	for _, item := range e.queue {
		out = append(out, item.alarm)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

// Restore re-arms alarms from the journal. Alarms whose fire time already
// passed while the process was down fire on the next loop iteration.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.journal == nil {
		return 0, nil
	}
	restored := 0
	for offset := 0; ; offset += e.restorePage {
		records, err := e.journal.ListAlarms(ctx, storage.AlarmListFilter{Limit: e.restorePage, Offset: offset})
		if err != nil {
			return restored, fmt.Errorf("list alarm journal: %w", err)
		}
		for _, rec := range records {
			e.mu.Lock()
			_, known := e.byID[rec.Handle]
			e.mu.Unlock()
			if known {
				continue
			}
			if err := e.arm(ctx, fromRecord(rec), false); err != nil {
				return restored, err
			}
			restored++
		}
		if len(records) < e.restorePage {
			break
		}
	}
	if restored > 0 {
		e.log.Info().Int("count", restored).Msg("restored alarms from journal")
	}
	return restored, nil
}

// Dropped counts alarms that fired while the output buffer was full.
func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		next, hasNext := e.peek()
		if !hasNext {
			select {
			case <-e.wakeup:
				continue
			case <-e.stopCh:
				return
			}
		}

		wait := next.FireAt.Sub(e.now())
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			due := e.popDue(e.now().UTC())
			for _, alarm := range due {
				e.forget(alarm.Handle)
				select {
				case e.out <- alarm:
				default:
					atomic.AddUint64(&e.dropped, 1)
					e.log.Warn().Str("task_id", alarm.Alert.TaskID).Str("kind", string(alarm.Alert.Kind)).Msg("alarm dropped, consumer is slow")
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			if timer != nil {
				stopTimer(timer)
			}
			return
		}
	}
}

func (e *Engine) forget(handle string) {
	if e.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.journal.DeleteAlarm(ctx, handle); err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.log.Warn().Err(err).Str("handle", handle).Msg("failed to remove fired alarm from journal")
	}
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) peek() (Alarm, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return Alarm{}, false
	}
	return e.queue[0].alarm, true
}

func (e *Engine) popDue(now time.Time) []Alarm {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Alarm, 0)
	for len(e.queue) > 0 {
		next := e.queue[0].alarm
		if next.FireAt.After(now) {
			break
		}
		item := heap.Pop(&e.queue).(*queueItem)
		delete(e.byID, item.alarm.Handle)
		out = append(out, item.alarm)
	}
	return out
}

func toRecord(a Alarm, now time.Time) storage.AlarmRecord {
	return storage.AlarmRecord{
		Handle:      a.Handle,
		TaskID:      a.Alert.TaskID,
		Kind:        string(a.Alert.Kind),
		Offset:      a.Alert.Offset,
		Title:       a.Alert.Title,
		Body:        a.Alert.Body,
		ScheduledAt: a.Alert.ScheduledAt,
		FireAt:      a.FireAt,
		CreatedAt:   now,
	}
}

func fromRecord(rec storage.AlarmRecord) Alarm {
	return Alarm{
		Handle: rec.Handle,
		FireAt: rec.FireAt,
		Alert: model.Alert{
			TaskID:      rec.TaskID,
			Kind:        model.AlertKind(rec.Kind),
			Offset:      rec.Offset,
			Title:       rec.Title,
			Body:        rec.Body,
			ScheduledAt: rec.ScheduledAt,
			TriggerAt:   rec.FireAt,
		},
	}
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
