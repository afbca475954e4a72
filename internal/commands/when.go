package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/cronos/internal/duration"
	"github.com/sandeepkv93/cronos/internal/model"
)

var (
	ErrInvalidWhen   = errors.New("commands: invalid time")
	ErrInvalidRepeat = errors.New("commands: invalid repeat rule")
	ErrNoMatch       = errors.New("commands: no task matches")
	ErrAmbiguous     = errors.New("commands: ambiguous task reference")
)

// DefaultHour is used for date-only inputs.
const DefaultHour = 9

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseWhen resolves an absolute or relative time expression against now,
// in now's location. Accepted forms: RFC 3339, local date-time, a date
// (09:00), a clock time (next occurrence), "today"/"tomorrow", a Go
// duration ("90m") or an offset in the task duration format ("PT2H").
func ParseWhen(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidWhen)
	}
	loc := now.Location()
	lower := strings.ToLower(s)

	switch lower {
	case "today":
		y, m, d := now.Date()
		return time.Date(y, m, d, DefaultHour, 0, 0, 0, loc), nil
	case "tomorrow":
		y, m, d := now.AddDate(0, 0, 1).Date()
		return time.Date(y, m, d, DefaultHour, 0, 0, 0, loc), nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t.Add(DefaultHour * time.Hour), nil
	}
	if t, err := time.ParseInLocation("15:04", s, loc); err == nil {
		y, m, d := now.Date()
		at := time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil
	}

	rel := strings.TrimPrefix(lower, "+")
	rel = strings.TrimPrefix(rel, "in ")
	if d, err := time.ParseDuration(rel); err == nil && d > 0 {
		return now.Add(d), nil
	}
	if d, err := duration.Parse(strings.ToUpper(rel)); err == nil && d > 0 {
		return now.Add(d), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWhen, raw)
}

// ParseRepeat reads "<kind>[/<interval>][=<detail>]", e.g. "daily",
// "weekly/2=mon,fri" or "monthly=15". Weekly without days uses the due
// date's weekday; monthly without a day uses the due date's day.
func ParseRepeat(raw string, due *time.Time) (model.RepeatType, model.RepeatConfig, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == "none" {
		return model.RepeatNone, nil, nil
	}
	head, detail, _ := strings.Cut(s, "=")
	kind, intervalRaw, hasInterval := strings.Cut(head, "/")
	interval := 1
	if hasInterval {
		n, err := strconv.Atoi(intervalRaw)
		if err != nil || n < 1 {
			return "", nil, fmt.Errorf("%w: interval %q", ErrInvalidRepeat, intervalRaw)
		}
		interval = n
	}

	switch kind {
	case "daily", "day":
		return model.RepeatDaily, model.DailyConfig{IntervalDays: interval}, nil
	case "weekly", "week":
		var days []string
		if detail != "" {
			parsed, err := model.ParseWeekdays(detail)
			if err != nil {
				return "", nil, fmt.Errorf("%w: %v", ErrInvalidRepeat, err)
			}
			days = parsed
		}
		if len(days) == 0 && due != nil {
			days = []string{model.WeekdayCode(int(due.Weekday()))}
		}
		if len(days) == 0 {
			return "", nil, fmt.Errorf("%w: weekly needs days or a due date", ErrInvalidRepeat)
		}
		return model.RepeatWeekly, model.WeeklyConfig{DaysOfWeek: days, IntervalWeeks: interval}, nil
	case "monthly", "month":
		day := 0
		if detail != "" {
			n, err := strconv.Atoi(detail)
			if err != nil || n < 1 || n > 31 {
				return "", nil, fmt.Errorf("%w: day of month %q", ErrInvalidRepeat, detail)
			}
			day = n
		}
		if day == 0 && due != nil {
			day = due.Day()
		}
		if day == 0 {
			return "", nil, fmt.Errorf("%w: monthly needs a day or a due date", ErrInvalidRepeat)
		}
		return model.RepeatMonthly, model.MonthlyConfig{DayOfMonth: day, IntervalMonths: interval}, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidRepeat, raw)
	}
}

// Resolve finds the task a target refers to: an exact id, a 1-based position
// in tasks, or a unique id prefix of at least four characters.
func Resolve(target string, tasks []model.Task) (model.Task, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return model.Task{}, fmt.Errorf("%w: empty reference", ErrNoMatch)
	}
	for _, t := range tasks {
		if t.ID == target {
			return t, nil
		}
	}
	if n, err := strconv.Atoi(target); err == nil && len(target) < 4 {
		if n >= 1 && n <= len(tasks) {
			return tasks[n-1], nil
		}
		return model.Task{}, fmt.Errorf("%w: position %d", ErrNoMatch, n)
	}
	if len(target) < 4 {
		return model.Task{}, fmt.Errorf("%w: %q", ErrNoMatch, target)
	}
	var found []model.Task
	for _, t := range tasks {
		if strings.HasPrefix(strings.ToLower(t.ID), strings.ToLower(target)) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return model.Task{}, fmt.Errorf("%w: %q", ErrNoMatch, target)
	case 1:
		return found[0], nil
	default:
		return model.Task{}, fmt.Errorf("%w: %q matches %d tasks", ErrAmbiguous, target, len(found))
	}
}
