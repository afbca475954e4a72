package model

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// NextOccurrence advances the task's due instant by its repeat rule. It
// returns false when the task does not repeat, has no config or no due date,
// or uses a rule that is not implemented (CUSTOM).
//
// Only the calendar date moves; the wall clock of the due instant and its
// location are kept as they are.
func NextOccurrence(t Task) (time.Time, bool) {
	if t.RepeatType == "" || t.RepeatType == RepeatNone || t.RepeatConfig == nil {
		return time.Time{}, false
	}
	if t.DueDate == nil || t.DueDate.IsZero() {
		return time.Time{}, false
	}
	last := *t.DueDate

	switch c := t.RepeatConfig.(type) {
	case DailyConfig:
		return nextDaily(last, c), true
	case WeeklyConfig:
		return nextWeekly(last, c), true
	case MonthlyConfig:
		return nextMonthly(last, c), true
	case CustomConfig:
		log.Warn().Str("task_id", t.ID).Msg("custom repeat is not implemented")
		return time.Time{}, false
	default:
		log.Warn().Str("task_id", t.ID).Str("repeat_type", string(t.RepeatType)).Msg("unknown repeat config")
		return time.Time{}, false
	}
}

func nextDaily(last time.Time, c DailyConfig) time.Time {
	return last.AddDate(0, 0, atLeastOne(c.IntervalDays))
}

func nextWeekly(last time.Time, c WeeklyConfig) time.Time {
	targets := make([]int, 0, len(c.DaysOfWeek))
	for _, code := range c.DaysOfWeek {
		if n, ok := weekdayCodes[code]; ok {
			targets = append(targets, n)
		}
	}
	if len(targets) == 0 {
		log.Warn().Msg("weekly repeat has no valid days, advancing 7 days")
		return last.AddDate(0, 0, 7)
	}
	sort.Ints(targets)

	current := int(last.Weekday())
	for _, target := range targets {
		if target > current {
			return last.AddDate(0, 0, target-current)
		}
	}
	days := 7 - current + targets[0] + 7*(atLeastOne(c.IntervalWeeks)-1)
	return last.AddDate(0, 0, days)
}

func nextMonthly(last time.Time, c MonthlyConfig) time.Time {
	loc := last.Location()
	y, m, _ := last.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc).AddDate(0, atLeastOne(c.IntervalMonths), 0)
	ty, tm, _ := first.Date()

	day := c.DayOfMonth
	if day < 1 {
		day = 1
	}
	if limit := daysIn(ty, tm, loc); day > limit {
		day = limit
	}
	return time.Date(ty, tm, day, last.Hour(), last.Minute(), last.Second(), last.Nanosecond(), loc)
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Preview lists the next count occurrences starting from the task's due date.
func Preview(t Task, count int) []time.Time {
	if count <= 0 {
		return []time.Time{}
	}
	out := make([]time.Time, 0, count)
	cursor := t
	for i := 0; i < count; i++ {
		next, ok := NextOccurrence(cursor)
		if !ok {
			break
		}
		out = append(out, next)
		cursor.DueDate = &next
	}
	return out
}
