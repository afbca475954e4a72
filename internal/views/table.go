package views

import (
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sandeepkv93/cronos/internal/model"
)

// TaskTable renders tasks for non-interactive output.
func TaskTable(tasks []model.Task, now time.Time) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "ID", "Title", "Due", "Priority", "Status", "Repeat", "Sync"})
	for i, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = FormatWhen(*t.DueDate, now)
		}
		status := string(t.Status)
		if !t.IsActive {
			status += " (paused)"
		}
		sync := "yes"
		if !t.IsSynced {
			sync = "no"
		}
		tw.AppendRow(table.Row{i + 1, shortID(t.ID), t.Title, due, t.Priority, status, model.DescribeRepeat(t), sync})
	}
	tw.AppendFooter(table.Row{"", "", strconv.Itoa(len(tasks)) + " tasks"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, WidthMax: 40},
	})
	return tw.Render()
}

// AlertTable renders outstanding alerts ordered as given.
func AlertTable(alerts []model.Alert, now time.Time) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Fires", "Task", "Kind", "Offset", "Title"})
	for _, a := range alerts {
		tw.AppendRow(table.Row{FormatWhen(a.TriggerAt, now), shortID(a.TaskID), a.Kind, a.Offset, a.Title})
	}
	if len(alerts) == 0 {
		tw.AppendRow(table.Row{"-", "-", "-", "-", "(none)"})
	}
	return tw.Render()
}

func shortID(id string) string {
	if len(id) > 8 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}
