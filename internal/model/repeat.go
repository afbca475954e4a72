package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRepeatType   = errors.New("model: invalid repeat type")
	ErrInvalidRepeatConfig = errors.New("model: invalid repeat config")
)

type RepeatType string

const (
	RepeatNone    RepeatType = "NONE"
	RepeatDaily   RepeatType = "DAILY"
	RepeatWeekly  RepeatType = "WEEKLY"
	RepeatMonthly RepeatType = "MONTHLY"
	RepeatCustom  RepeatType = "CUSTOM"
)

func (r RepeatType) IsValid() bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatCustom:
		return true
	default:
		return false
	}
}

// RepeatConfig is a closed sum type; the concrete shape always matches Type().
type RepeatConfig interface {
	Type() RepeatType
	isRepeatConfig()
}

type DailyConfig struct {
	IntervalDays int `json:"intervalDays"`
}

type WeeklyConfig struct {
	DaysOfWeek    []string `json:"daysOfWeek"`
	IntervalWeeks int      `json:"intervalWeeks"`
}

type MonthlyConfig struct {
	DayOfMonth     int `json:"dayOfMonth"`
	IntervalMonths int `json:"intervalMonths"`
}

// CustomConfig keeps whatever another client wrote so it round-trips.
type CustomConfig struct {
	Raw json.RawMessage
}

func (DailyConfig) Type() RepeatType   { return RepeatDaily }
func (WeeklyConfig) Type() RepeatType  { return RepeatWeekly }
func (MonthlyConfig) Type() RepeatType { return RepeatMonthly }
func (CustomConfig) Type() RepeatType  { return RepeatCustom }

func (DailyConfig) isRepeatConfig()   {}
func (WeeklyConfig) isRepeatConfig()  {}
func (MonthlyConfig) isRepeatConfig() {}
func (CustomConfig) isRepeatConfig()  {}

var weekdayCodes = map[string]int{
	"SUN": 0, "MON": 1, "TUE": 2, "WED": 3, "THU": 4, "FRI": 5, "SAT": 6,
}

// WeekdayCode returns the three-letter code used by WeeklyConfig.
func WeekdayCode(ordinal int) string {
	codes := [...]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}
	if ordinal < 0 || ordinal >= len(codes) {
		return ""
	}
	return codes[ordinal]
}

// ParseWeekdays normalizes a comma separated list such as "mon,fri".
func ParseWeekdays(raw string) ([]string, error) {
	out := make([]string, 0, 7)
	for _, part := range strings.Split(raw, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if len(code) > 3 {
			code = code[:3]
		}
		if _, ok := weekdayCodes[code]; !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRepeatConfig, part)
		}
		out = append(out, code)
	}
	return out, nil
}

// DecodeRepeatConfig builds the config variant selected by rt.
func DecodeRepeatConfig(rt RepeatType, raw []byte) (RepeatConfig, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch rt {
	case "", RepeatNone:
		return nil, nil
	case RepeatDaily:
		var c DailyConfig
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRepeatConfig, err)
		}
		return c, nil
	case RepeatWeekly:
		var c WeeklyConfig
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRepeatConfig, err)
		}
		return c, nil
	case RepeatMonthly:
		var c MonthlyConfig
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRepeatConfig, err)
		}
		return c, nil
	case RepeatCustom:
		return CustomConfig{Raw: append(json.RawMessage(nil), trimmed...)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepeatType, rt)
	}
}

func EncodeRepeatConfig(c RepeatConfig) ([]byte, error) {
	switch v := c.(type) {
	case nil:
		return nil, nil
	case CustomConfig:
		if len(v.Raw) == 0 {
			return []byte("{}"), nil
		}
		return v.Raw, nil
	default:
		return json.Marshal(v)
	}
}

// DescribeRepeat renders the rule for humans, e.g. "Every 2 weeks on MON, FRI".
func DescribeRepeat(t Task) string {
	if t.RepeatType == "" || t.RepeatType == RepeatNone {
		return "Does not repeat"
	}
	switch c := t.RepeatConfig.(type) {
	case nil:
		return "Invalid repeat configuration"
	case DailyConfig:
		if c.IntervalDays <= 1 {
			return "Daily"
		}
		return fmt.Sprintf("Every %d days", c.IntervalDays)
	case WeeklyConfig:
		days := strings.Join(c.DaysOfWeek, ", ")
		if c.IntervalWeeks <= 1 {
			return "Weekly on " + days
		}
		return fmt.Sprintf("Every %d weeks on %s", c.IntervalWeeks, days)
	case MonthlyConfig:
		if c.IntervalMonths <= 1 {
			return fmt.Sprintf("Monthly on day %d", c.DayOfMonth)
		}
		return fmt.Sprintf("Every %d months on day %d", c.IntervalMonths, c.DayOfMonth)
	case CustomConfig:
		return "Custom repeat"
	default:
		return "Unknown repeat"
	}
}
