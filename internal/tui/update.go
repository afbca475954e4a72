package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/cronos/internal/app"
	"github.com/sandeepkv93/cronos/internal/commands"
	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/notify"
	"github.com/sandeepkv93/cronos/internal/syncer"
	"github.com/sandeepkv93/cronos/internal/views"
)

const maxDelivered = 20

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForAlarmCmd(m.fired), waitForChangeCmd(m.changes))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		if w := typed.Width/2 - 4; w > 20 {
			m.width = w
		}
		return m, nil
	case tea.KeyMsg:
		if typed.String() == "ctrl+c" {
			m.Quitting = true
			return m, tea.Quit
		}
		if m.PaletteActive {
			return m.handlePaletteKey(typed)
		}
		if len(m.Delivered) > 0 {
			if next, cmd, handled := m.handleAlertKey(typed); handled {
				return next, cmd
			}
		}
		return m.handleListKey(typed)
	case spinner.TickMsg:
		if m.Syncing {
			var cmd tea.Cmd
			m.syncSpinner, cmd = m.syncSpinner.Update(typed)
			return m, cmd
		}
	case AlarmFiredMsg:
		m.Delivered = append(m.Delivered, typed.Alarm.Alert)
		if len(m.Delivered) > maxDelivered {
			m.Delivered = m.Delivered[len(m.Delivered)-maxDelivered:]
		}
		m.setStatus("reminder: %s", typed.Alarm.Alert.Body)
		m.refresh()
		return m, waitForAlarmCmd(m.fired)
	case SyncDoneMsg:
		m.Syncing = false
		if typed.Err != nil {
			m.setError(typed.Err)
		} else {
			m.setStatus("%s", describeSync(typed.Result))
		}
		m.refresh()
		return m, nil
	case RemoteChangedMsg:
		m.setStatus("remote change: %s", describeSync(typed.Result))
		m.refresh()
		return m, waitForChangeCmd(m.changes)
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil
	case AppErrorMsg:
		if typed.Err != nil {
			m.setError(typed.Err)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case m.Keys.Quit:
		m.Quitting = true
		return m, tea.Quit
	case m.Keys.Up, "up":
		if m.Cursor > 0 {
			m.Cursor--
			m.SelectedTaskID = m.Tasks[m.Cursor].ID
			m.loadAlerts()
		}
	case m.Keys.Down, "down":
		if m.Cursor < len(m.Tasks)-1 {
			m.Cursor++
			m.SelectedTaskID = m.Tasks[m.Cursor].ID
			m.loadAlerts()
		}
	case m.Keys.Help:
		m.HelpVisible = !m.HelpVisible
	case m.Keys.Palette:
		return m.openPalette("")
	case m.Keys.Add:
		return m.openPalette("add ")
	case m.Keys.Sync:
		return m.startSync(commands.SyncBoth)
	case m.Keys.Done, " ":
		return m.runOnSelected(commands.TypeDone)
	case m.Keys.Active:
		return m.runOnSelected(commands.TypeToggle)
	case m.Keys.Snooze:
		return m.runOnSelected(commands.TypeSnooze)
	case m.Keys.Delete:
		return m.runOnSelected(commands.TypeDelete)
	}
	return m, nil
}

// handleAlertKey maps number keys to the notification actions of the most
// recent delivered alert.
func (m Model) handleAlertKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	last := m.Delivered[len(m.Delivered)-1]
	key := msg.String()
	action := ""
	switch key {
	case m.Keys.Dismiss:
		m.Delivered = m.Delivered[:len(m.Delivered)-1]
		m.setStatus("reminder dismissed")
		return m, nil, true
	case m.Keys.OpenTask:
		action = notify.ActionDefault
	default:
		for i, a := range notify.Actions {
			if key == fmt.Sprint(i+1) {
				action = a.ID
			}
		}
	}
	if action == "" {
		return m, nil, false
	}
	outcome := m.app.Respond(m.ctx, notify.Response{ActionID: action, Alert: last})
	m.Delivered = m.Delivered[:len(m.Delivered)-1]
	if outcome == notify.OutcomeOpened {
		m.SelectedTaskID = last.TaskID
	}
	m.setStatus("reminder %s: %s", outcome, last.Body)
	m.refresh()
	return m, nil, true
}

func (m Model) openPalette(prefill string) (tea.Model, tea.Cmd) {
	m.PaletteActive = true
	m.commandInput.SetValue(prefill)
	m.commandInput.CursorEnd()
	return m, m.commandInput.Focus()
}

func (m Model) handlePaletteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.PaletteActive = false
		m.commandInput.Blur()
		return m, nil
	case tea.KeyEnter:
		input := m.commandInput.Value()
		m.PaletteActive = false
		m.commandInput.Blur()
		m.commandInput.SetValue("")
		return m.runCommand(input)
	}
	var cmd tea.Cmd
	m.commandInput, cmd = m.commandInput.Update(msg)
	return m, cmd
}

func (m Model) runOnSelected(typ commands.Type) (tea.Model, tea.Cmd) {
	t, ok := m.selected()
	if !ok {
		m.setStatus("no task selected")
		return m, nil
	}
	return m.runCommand(fmt.Sprintf("%s %s", typ, t.ID))
}

// runCommand parses and executes one quick command against the coordinator.
func (m Model) runCommand(input string) (tea.Model, tea.Cmd) {
	cmd, err := commands.Parse(input)
	if err != nil {
		m.setError(err)
		return m, nil
	}
	if cmd.Type == commands.TypeSync {
		return m.startSync(cmd.Sync.Mode)
	}

	res, err := commands.Execute(cmd, m.handlers())
	if err != nil {
		m.setError(err)
		m.refresh()
		return m, nil
	}
	m.setStatus("%s", res.Message)
	m.refresh()
	return m, nil
}

func (m *Model) handlers() commands.Handlers {
	ctx := m.ctx
	onTarget := func(verb string, fn func(context.Context, string) (model.Task, error)) func(commands.TargetArgs) (commands.Result, error) {
		return func(a commands.TargetArgs) (commands.Result, error) {
			t, err := commands.Resolve(a.Target, m.Tasks)
			if err != nil {
				return commands.Result{}, err
			}
			updated, err := fn(ctx, t.ID)
			if err != nil {
				return commands.Result{}, err
			}
			m.SelectedTaskID = updated.ID
			return commands.Result{Message: fmt.Sprintf("%s: %s", verb, describeTask(updated))}, nil
		}
	}
	return commands.Handlers{
		Add: func(a commands.AddArgs) (commands.Result, error) {
			in, err := commands.NewTask(a, m.now())
			if err != nil {
				return commands.Result{}, err
			}
			t, err := m.app.AddTask(ctx, in)
			if err != nil {
				return commands.Result{}, err
			}
			m.SelectedTaskID = t.ID
			return commands.Result{Message: "added: " + t.Title}, nil
		},
		Done:   onTarget("toggled", m.app.ToggleStatus),
		Toggle: onTarget("active toggled", m.app.ToggleActive),
		Snooze: onTarget("snoozed", m.app.Snooze),
		Delete: func(a commands.TargetArgs) (commands.Result, error) {
			t, err := commands.Resolve(a.Target, m.Tasks)
			if err != nil {
				return commands.Result{}, err
			}
			if err := m.app.Delete(ctx, t.ID); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: "deleted: " + t.Title}, nil
		},
	}
}

func (m Model) startSync(mode commands.SyncMode) (tea.Model, tea.Cmd) {
	if !m.app.SyncEnabled() {
		m.setError(app.ErrSyncDisabled)
		return m, nil
	}
	if m.Syncing {
		return m, nil
	}
	run := (*app.App).Sync
	switch mode {
	case commands.SyncPull:
		run = (*app.App).Pull
	case commands.SyncPush:
		run = (*app.App).Push
	}
	m.Syncing = true
	m.setStatus("sync started")
	return m, tea.Batch(m.syncSpinner.Tick, syncCmd(m.ctx, m.app, run))
}

func describeTask(t model.Task) string {
	state := string(t.Status)
	if !t.IsActive {
		state = "paused"
	}
	return fmt.Sprintf("%s (%s)", t.Title, state)
}

func describeSync(r syncer.Result) string {
	out := fmt.Sprintf("pulled %d, pushed %d, deleted %d, skipped %d", r.Pulled, r.Pushed, r.Deleted, r.Skipped)
	if len(r.Errors) > 0 {
		out += fmt.Sprintf(", %d errors", len(r.Errors))
	}
	return out
}

func (m Model) View() string {
	if m.Quitting {
		return ""
	}
	now := m.now()
	status := ""
	if m.Status.Text != "" {
		if m.Status.IsError {
			status = "status: error: " + m.Status.Text
		} else {
			status = "status: " + m.Status.Text
		}
	}
	if m.Syncing {
		status = strings.TrimSpace(status + " " + m.syncSpinner.View())
	}

	var selected *model.Task
	if t, ok := m.selected(); ok {
		selected = &t
	}
	right := views.RenderTaskDetail(views.TaskDetailData{Task: selected, Alerts: m.Alerts, Now: now, Width: m.width})
	if m.HelpVisible {
		right += "\n\n" + views.RenderHelp(m.helpBindings())
	}
	footer := fmt.Sprintf("keys: %s/%s move | %s add | %s done | %s pause | %s snooze | %s delete | %s sync | %s cmd | %s help | %s quit",
		m.Keys.Up, m.Keys.Down, m.Keys.Add, m.Keys.Done, m.Keys.Active, m.Keys.Snooze, m.Keys.Delete, m.Keys.Sync, m.Keys.Palette, m.Keys.Help, m.Keys.Quit)
	if m.PaletteActive {
		footer = m.commandInput.View()
	}

	notification := ""
	if len(m.Delivered) > 0 {
		notification = views.RenderDeliveredAlert(m.Delivered[len(m.Delivered)-1])
	}

	sync := "local only"
	if m.app.SyncEnabled() {
		sync = "sync: " + m.app.UserID()
	}
	return views.RenderApp(views.AppData{
		Header:       fmt.Sprintf("cronos | %d tasks | %s", len(m.Tasks), sync),
		LeftPane:     views.RenderTaskList(views.TaskListData{Tasks: m.Tasks, SelectedID: m.SelectedTaskID, Now: now}),
		RightPane:    right,
		PaneWidth:    m.width,
		StatusLine:   status,
		Notification: notification,
		Footer:       footer,
	})
}

func (m Model) helpBindings() []string {
	return []string{
		"/ add <title> due:<when> pre:PT1H,PT15M repeat:weekly=mon,fri p:high snooze:PT10M",
		"/ done|snooze|toggle|delete <#|id>",
		"/ sync [pull|push]",
		"on a reminder: 1-3 snooze 5/10/30m, 4 done, enter open, esc dismiss",
	}
}

// Run starts the interactive shell. Realtime changes, when sync is enabled,
// trigger a sync and a redraw.
func Run(ctx context.Context, a *app.App, opts ...Option) error {
	changes := make(chan syncer.Result, 8)
	m := NewModel(ctx, a, append(opts, withChanges(changes))...)
	if a.SyncEnabled() {
		stop, err := a.Subscribe(ctx, func(res syncer.Result) {
			select {
			case changes <- res:
			default:
			}
		})
		if err != nil {
			m.setError(fmt.Errorf("realtime: %w", err))
		} else {
			defer stop()
		}
	}

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
