package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/cronos/internal/app"
	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/notify"
	"github.com/sandeepkv93/cronos/internal/scheduler"
	"github.com/sandeepkv93/cronos/internal/syncer"
)

type StatusBar struct {
	Text    string
	IsError bool
}

type KeyMap struct {
	Up       string
	Down     string
	Add      string
	Done     string
	Active   string
	Snooze   string
	Delete   string
	Sync     string
	Palette  string
	Help     string
	Quit     string
	Dismiss  string
	OpenTask string
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:       "k",
		Down:     "j",
		Add:      "a",
		Done:     "x",
		Active:   "p",
		Snooze:   "s",
		Delete:   "d",
		Sync:     "S",
		Palette:  "/",
		Help:     "?",
		Quit:     "q",
		Dismiss:  "esc",
		OpenTask: "enter",
	}
}

// Model is the interactive shell. It reads tasks from the coordinator and
// never mutates the store directly.
type Model struct {
	ctx     context.Context
	app     *app.App
	alarms  notify.AlarmService
	fired   <-chan scheduler.Alarm
	changes <-chan syncer.Result
	now     func() time.Time

	Tasks          []model.Task
	Cursor         int
	SelectedTaskID string
	Alerts         []model.Alert
	Delivered      []model.Alert
	Status         StatusBar
	LastError      error
	Keys           KeyMap
	HelpVisible    bool
	PaletteActive  bool
	Syncing        bool
	Quitting       bool
	width          int

	commandInput textinput.Model
	syncSpinner  spinner.Model
}

type Option func(*Model)

// WithAlarms lets the detail pane list the selected task's pending alerts.
func WithAlarms(alarms notify.AlarmService) Option {
	return func(m *Model) { m.alarms = alarms }
}

// WithFired feeds fired alarms into the model as delivered alerts.
func WithFired(ch <-chan scheduler.Alarm) Option {
	return func(m *Model) { m.fired = ch }
}

func withChanges(ch <-chan syncer.Result) Option {
	return func(m *Model) { m.changes = ch }
}

func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

func NewModel(ctx context.Context, a *app.App, opts ...Option) Model {
	input := textinput.New()
	input.Prompt = "/"
	input.Placeholder = "add pay rent due:tomorrow pre:PT1H"
	input.CharLimit = 256

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := Model{
		ctx:          ctx,
		app:          a,
		now:          time.Now,
		Keys:         DefaultKeyMap(),
		commandInput: input,
		syncSpinner:  spin,
		width:        58,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.refresh()
	return m
}

type AlarmFiredMsg struct {
	Alarm scheduler.Alarm
}

// RemoteChangedMsg is sent after a realtime-triggered sync finished.
type RemoteChangedMsg struct {
	Result syncer.Result
}

type SyncDoneMsg struct {
	Result syncer.Result
	Err    error
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

type AppErrorMsg struct {
	Err error
}

func waitForAlarmCmd(ch <-chan scheduler.Alarm) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		a, ok := <-ch
		if !ok {
			return nil
		}
		return AlarmFiredMsg{Alarm: a}
	}
}

func waitForChangeCmd(ch <-chan syncer.Result) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		res, ok := <-ch
		if !ok {
			return nil
		}
		return RemoteChangedMsg{Result: res}
	}
}

func syncCmd(ctx context.Context, a *app.App, run func(*app.App, context.Context) (syncer.Result, error)) tea.Cmd {
	return func() tea.Msg {
		res, err := run(a, ctx)
		return SyncDoneMsg{Result: res, Err: err}
	}
}

// refresh reloads the task snapshot and keeps the cursor on the selected
// task when it still exists.
func (m *Model) refresh() {
	m.Tasks = m.app.Tasks()
	if m.SelectedTaskID != "" {
		for i, t := range m.Tasks {
			if t.ID == m.SelectedTaskID {
				m.Cursor = i
				break
			}
		}
	}
	if m.Cursor >= len(m.Tasks) {
		m.Cursor = len(m.Tasks) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	m.SelectedTaskID = ""
	if len(m.Tasks) > 0 {
		m.SelectedTaskID = m.Tasks[m.Cursor].ID
	}
	m.loadAlerts()
}

func (m *Model) loadAlerts() {
	m.Alerts = nil
	if m.alarms == nil || m.SelectedTaskID == "" {
		return
	}
	alerts, err := m.app.Alerts(m.ctx, m.alarms, m.SelectedTaskID)
	if err != nil {
		m.setError(err)
		return
	}
	m.Alerts = alerts
}

func (m *Model) selected() (model.Task, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Tasks) {
		return model.Task{}, false
	}
	return m.Tasks[m.Cursor], true
}

func (m *Model) setStatus(format string, args ...any) {
	m.Status = StatusBar{Text: fmt.Sprintf(format, args...)}
}

func (m *Model) setError(err error) {
	m.LastError = err
	m.Status = StatusBar{Text: err.Error(), IsError: true}
}
