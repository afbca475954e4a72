package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/cronos/internal/duration"
	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/notify"
)

type Bucket string

const (
	BucketOverdue  Bucket = "Overdue"
	BucketToday    Bucket = "Today"
	BucketUpcoming Bucket = "Upcoming"
	BucketAnytime  Bucket = "Anytime"
	BucketPaused   Bucket = "Paused"
	BucketDone     Bucket = "Done"
)

var bucketOrder = []Bucket{BucketOverdue, BucketToday, BucketUpcoming, BucketAnytime, BucketPaused, BucketDone}

// BucketOf places a task in the list section it is shown under.
func BucketOf(t model.Task, now time.Time) Bucket {
	switch {
	case t.Status == model.StatusCompleted:
		return BucketDone
	case !t.IsActive:
		return BucketPaused
	case t.DueDate == nil:
		return BucketAnytime
	case !t.DueDate.After(now):
		return BucketOverdue
	}
	y1, m1, d1 := t.DueDate.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return BucketToday
	}
	return BucketUpcoming
}

// FormatWhen renders an instant relative to now for list rows.
func FormatWhen(at time.Time, now time.Time) string {
	local := at.In(now.Location())
	y1, m1, d1 := local.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return local.Format("15:04")
	}
	if local.Year() == now.Year() {
		return local.Format("Jan 2 15:04")
	}
	return local.Format("2006-01-02 15:04")
}

type TaskListData struct {
	Tasks      []model.Task
	SelectedID string
	Now        time.Time
}

// RenderTaskList groups tasks by bucket. Positions printed next to each row
// are 1-based indexes into Tasks so they can be used as command targets.
func RenderTaskList(data TaskListData) string {
	grouped := make(map[Bucket][]int)
	for i, t := range data.Tasks {
		b := BucketOf(t, data.Now)
		grouped[b] = append(grouped[b], i)
	}

	var b strings.Builder
	b.WriteString("tasks:\n")
	if len(data.Tasks) == 0 {
		b.WriteString(mutedStyle.Render("(no tasks, press [a] to add one)"))
		return b.String()
	}
	for _, bucket := range bucketOrder {
		idxs := grouped[bucket]
		if len(idxs) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("\n%s:\n", bucket))
		for _, i := range idxs {
			b.WriteString(renderTaskRow(i+1, data.Tasks[i], bucket, data.SelectedID, data.Now))
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

func renderTaskRow(pos int, t model.Task, bucket Bucket, selectedID string, now time.Time) string {
	cursor := " "
	if t.ID == selectedID {
		cursor = ">"
	}
	line := fmt.Sprintf("%s %2d %s %s", cursor, pos, priorityBadge(t.Priority), t.Title)
	if t.DueDate != nil {
		line += " due:" + FormatWhen(*t.DueDate, now)
	}
	if t.IsRepeating() {
		line += " ↻"
	}
	if !t.IsSynced {
		line += " *"
	}
	switch bucket {
	case BucketOverdue:
		return overdueStyle.Render(line)
	case BucketToday:
		return soonStyle.Render(line)
	case BucketDone:
		return doneStyle.Render(line)
	case BucketPaused:
		return mutedStyle.Render(line)
	default:
		return line
	}
}

func priorityBadge(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "[!!]"
	case model.PriorityLow:
		return "[ .]"
	default:
		return "[ !]"
	}
}

type TaskDetailData struct {
	Task   *model.Task
	Alerts []model.Alert
	Now    time.Time
	Width  int
}

func RenderTaskDetail(data TaskDetailData) string {
	if data.Task == nil {
		return "details:\n(no selection)"
	}
	t := *data.Task
	var b strings.Builder
	b.WriteString("details:\n")
	b.WriteString(fmt.Sprintf("id: %s\n", t.ID))
	b.WriteString(fmt.Sprintf("title: %s\n", t.Title))
	b.WriteString(fmt.Sprintf("status: %s | priority: %s | active: %t\n", t.Status, t.Priority, t.IsActive))
	if t.DueDate != nil {
		b.WriteString(fmt.Sprintf("due: %s\n", t.DueDate.In(data.Now.Location()).Format("Mon 2006-01-02 15:04")))
	}
	b.WriteString(fmt.Sprintf("repeat: %s\n", model.DescribeRepeat(t)))
	if preview := model.Preview(t, 3); len(preview) > 0 {
		parts := make([]string, 0, len(preview))
		for _, p := range preview {
			parts = append(parts, FormatWhen(p, data.Now))
		}
		b.WriteString("next: " + strings.Join(parts, ", ") + "\n")
	}
	if len(t.PreNotifyOffsets) > 0 {
		labels := make([]string, 0, len(t.PreNotifyOffsets))
		for _, o := range t.PreNotifyOffsets {
			labels = append(labels, duration.Label(o))
		}
		b.WriteString("reminders: " + strings.Join(labels, ", ") + "\n")
	}
	if t.SnoozeEnabled {
		snooze := fmt.Sprintf("snooze: %s (used %d)", duration.Format(t.SnoozeDuration), t.SnoozeCount)
		if t.SnoozedUntil != nil && t.SnoozedUntil.After(data.Now) {
			snooze += " until " + FormatWhen(*t.SnoozedUntil, data.Now)
		}
		b.WriteString(snooze + "\n")
	}
	sync := "synced"
	if !t.IsSynced {
		sync = "pending push"
	}
	b.WriteString("sync: " + sync + "\n")

	if len(data.Alerts) > 0 {
		b.WriteString("\nscheduled alerts:\n")
		for _, a := range data.Alerts {
			b.WriteString(fmt.Sprintf("- %s %s %s\n", FormatWhen(a.TriggerAt, data.Now), a.Kind, a.Title))
		}
	}
	if desc := RenderMarkdown(t.Description, data.Width); desc != "" {
		b.WriteString("\n" + desc + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// RenderDeliveredAlert shows a fired alert with its action keys.
func RenderDeliveredAlert(a model.Alert) string {
	if strings.TrimSpace(a.Title) == "" && strings.TrimSpace(a.Body) == "" {
		return ""
	}
	keys := make([]string, 0, len(notify.Actions))
	for i, act := range notify.Actions {
		keys = append(keys, fmt.Sprintf("[%d]%s", i+1, act.ButtonTitle))
	}
	return fmt.Sprintf("%s\n%s\n%s [enter]open [esc]dismiss", a.Title, a.Body, strings.Join(keys, " "))
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: /%s", input)
}

func RenderHelp(bindings []string) string {
	return "keys:\n" + strings.Join(bindings, "\n")
}
