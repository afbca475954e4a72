package duration

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var ErrInvalidFormat = errors.New("duration: invalid format")

// Wire form is PT[n]D[n]H[n]M. The day designator sits inside PT, which
// differs from ISO-8601 but is what persisted and synced tasks carry.
var (
	wirePattern     = regexp.MustCompile(`^PT(?:(\d+)D)?(?:(\d+)H)?(?:(\d+)M)?$`)
	standardPattern = regexp.MustCompile(`^P(\d+)D(?:T(?:(\d+)H)?(?:(\d+)M)?)?$`)
)

const day = 24 * time.Hour

// Parse converts a duration string to a time.Duration. "PT" parses to zero;
// callers that need a positive offset must check for it.
func Parse(s string) (time.Duration, error) {
	m := wirePattern.FindStringSubmatch(s)
	if m == nil {
		m = standardPattern.FindStringSubmatch(s)
	}
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	days, err := component(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	hours, err := component(m[2])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	minutes, err := component(m[3])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return time.Duration(days)*day + time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

func component(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 32)
}

// Subtract returns at minus the parsed duration.
func Subtract(at time.Time, s string) (time.Time, error) {
	d, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return at.Add(-d), nil
}

// Format renders the largest non-zero unit, e.g. "PT1H30M" -> "1 hour".
// Unparseable input is echoed back unchanged.
func Format(s string) string {
	d, err := Parse(s)
	if err != nil {
		return s
	}
	minutes := int64(d / time.Minute)
	hours := minutes / 60
	days := hours / 24
	switch {
	case days > 0:
		return plural(days, "day")
	case hours > 0:
		return plural(hours, "hour")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Encode renders d in wire form. Seconds are truncated.
func Encode(d time.Duration) string {
	if d < time.Minute {
		return "PT0M"
	}
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := (total / 60) % 24
	minutes := total % 60
	out := "PT"
	if days > 0 {
		out += strconv.FormatInt(days, 10) + "D"
	}
	if hours > 0 {
		out += strconv.FormatInt(hours, 10) + "H"
	}
	if minutes > 0 {
		out += strconv.FormatInt(minutes, 10) + "M"
	}
	return out
}

type Offset struct {
	Value string
	Label string
}

var CommonOffsets = []Offset{
	{Value: "PT5M", Label: "5 minutes before"},
	{Value: "PT15M", Label: "15 minutes before"},
	{Value: "PT30M", Label: "30 minutes before"},
	{Value: "PT1H", Label: "1 hour before"},
	{Value: "PT2H", Label: "2 hours before"},
	{Value: "PT1D", Label: "1 day before"},
}

// Label returns the catalog label for s, falling back to Format.
func Label(s string) string {
	for _, o := range CommonOffsets {
		if o.Value == s {
			return o.Label
		}
	}
	return Format(s)
}
