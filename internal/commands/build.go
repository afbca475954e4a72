package commands

import (
	"fmt"
	"time"

	"github.com/sandeepkv93/cronos/internal/duration"
	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/store"
)

// NewTask validates the options of an add command and converts them into
// store input. Times are resolved against now.
func NewTask(args AddArgs, now time.Time) (store.NewTask, error) {
	in := store.NewTask{Title: args.Title, Timezone: now.Location().String()}
	if args.Due != "" {
		due, err := ParseWhen(args.Due, now)
		if err != nil {
			return store.NewTask{}, err
		}
		in.DueDate = &due
		local := due.In(now.Location())
		in.ScheduledDate = local.Format("2006-01-02")
		in.ScheduledTime = local.Format("15:04")
	}
	priority, err := model.ParsePriority(args.Priority)
	if err != nil {
		return store.NewTask{}, err
	}
	in.Priority = priority

	for _, o := range args.Offsets {
		if _, err := duration.Parse(o); err != nil {
			return store.NewTask{}, fmt.Errorf("reminder offset %q: %w", o, err)
		}
		in.PreNotifyOffsets = append(in.PreNotifyOffsets, o)
	}
	if args.Repeat != "" {
		rt, cfg, err := ParseRepeat(args.Repeat, in.DueDate)
		if err != nil {
			return store.NewTask{}, err
		}
		in.RepeatType, in.RepeatConfig = rt, cfg
	}
	if args.Snooze != "" {
		if d, err := duration.Parse(args.Snooze); err != nil || d <= 0 {
			return store.NewTask{}, fmt.Errorf("snooze duration %q: %w", args.Snooze, duration.ErrInvalidFormat)
		}
		in.SnoozeEnabled = true
		in.SnoozeDuration = args.Snooze
	}
	return in, nil
}
