package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/cronos/internal/app"
	"github.com/sandeepkv93/cronos/internal/commands"
	"github.com/sandeepkv93/cronos/internal/duration"
	"github.com/sandeepkv93/cronos/internal/model"
	"github.com/sandeepkv93/cronos/internal/notify"
	"github.com/sandeepkv93/cronos/internal/store"
	"github.com/sandeepkv93/cronos/internal/views"
)

type addFlags struct {
	due         string
	pre         []string
	repeat      string
	priority    string
	snooze      string
	description string
}

func newAddCmd(root *rootFlags) *cobra.Command {
	f := &addFlags{}
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task and arm its alerts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, root, openOptions{offline: true}, func(ctx context.Context, rt *runtime) error {
				in, err := commands.NewTask(commands.AddArgs{
					Title:    strings.Join(args, " "),
					Due:      f.due,
					Offsets:  upper(f.pre),
					Repeat:   f.repeat,
					Priority: f.priority,
					Snooze:   strings.ToUpper(f.snooze),
				}, time.Now())
				if err != nil {
					return err
				}
				in.Description = f.description
				t, err := rt.app.AddTask(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s %s\n", t.ID, t.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.due, "due", "", "due time: RFC 3339, 2006-01-02 15:04, 15:04, tomorrow, 90m or PT2H")
	cmd.Flags().StringSliceVar(&f.pre, "pre", nil, "reminder offsets before the due time, e.g. PT1H,PT15M")
	cmd.Flags().StringVar(&f.repeat, "repeat", "", "repeat rule: daily, weekly/2=mon,fri, monthly=15")
	cmd.Flags().StringVar(&f.priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&f.snooze, "snooze", "", "enable snooze with this duration, e.g. PT10M")
	cmd.Flags().StringVar(&f.description, "description", "", "markdown description")
	return cmd
}

func newListCmd(root *rootFlags) *cobra.Command {
	var showAlerts, asJSON, pendingOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, root, openOptions{offline: true, readOnly: true}, func(ctx context.Context, rt *runtime) error {
				tasks := rt.app.Tasks()
				if pendingOnly {
					kept := tasks[:0]
					for _, t := range tasks {
						if t.Status != model.StatusCompleted {
							kept = append(kept, t)
						}
					}
					tasks = kept
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(tasks)
				}
				now := time.Now()
				fmt.Fprintln(out, views.TaskTable(tasks, now))
				if showAlerts {
					alerts, err := rt.app.Alerts(ctx, rt.alarms, "")
					if err != nil {
						return err
					}
					fmt.Fprintln(out, views.AlertTable(alerts, now))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showAlerts, "alerts", false, "also list outstanding alerts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tasks as JSON")
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "hide completed tasks")
	return cmd
}

func newShowCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task>",
		Short: "Show one task with its outstanding alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, root, openOptions{offline: true, readOnly: true}, func(ctx context.Context, rt *runtime) error {
				t, err := commands.Resolve(args[0], rt.app.Tasks())
				if err != nil {
					return err
				}
				alerts, err := rt.app.Alerts(ctx, rt.alarms, t.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), views.RenderTaskDetail(views.TaskDetailData{Task: &t, Alerts: alerts, Now: time.Now(), Width: 80}))
				return nil
			})
		},
	}
}

func newEditCmd(root *rootFlags) *cobra.Command {
	f := &addFlags{}
	var title string
	var clearDue bool
	cmd := &cobra.Command{
		Use:   "edit <task>",
		Short: "Change task fields; only the flags given are applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, root, openOptions{offline: true}, func(ctx context.Context, rt *runtime) error {
				t, err := commands.Resolve(args[0], rt.app.Tasks())
				if err != nil {
					return err
				}
				p, err := buildPatch(cmd, t, f, title, clearDue, time.Now())
				if err != nil {
					return err
				}
				updated, err := rt.app.UpdateTask(ctx, t.ID, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s %s\n", updated.ID, updated.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")
	cmd.Flags().StringVar(&f.due, "due", "", "new due time")
	cmd.Flags().StringSliceVar(&f.pre, "pre", nil, "replace reminder offsets (empty to clear)")
	cmd.Flags().StringVar(&f.repeat, "repeat", "", "new repeat rule, or none")
	cmd.Flags().StringVar(&f.priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&f.snooze, "snooze", "", "snooze duration, or off")
	cmd.Flags().StringVar(&f.description, "description", "", "markdown description")
	return cmd
}

// buildPatch turns the changed edit flags into a store patch.
func buildPatch(cmd *cobra.Command, t model.Task, f *addFlags, title string, clearDue bool, now time.Time) (store.Patch, error) {
	var p store.Patch
	changed := cmd.Flags().Changed
	if changed("title") {
		p.Title = store.Set(title)
	}
	if changed("description") {
		p.Description = store.Set(f.description)
	}
	due := t.DueDate
	if clearDue {
		due = nil
		p.DueDate = store.Set[*time.Time](nil)
		p.ScheduledDate = store.Set("")
		p.ScheduledTime = store.Set("")
	} else if changed("due") {
		at, err := commands.ParseWhen(f.due, now)
		if err != nil {
			return store.Patch{}, err
		}
		due = &at
		local := at.In(now.Location())
		p.DueDate = store.Set(&at)
		p.ScheduledDate = store.Set(local.Format("2006-01-02"))
		p.ScheduledTime = store.Set(local.Format("15:04"))
	}
	if changed("priority") {
		pr, err := model.ParsePriority(f.priority)
		if err != nil {
			return store.Patch{}, err
		}
		p.Priority = store.Set(pr)
	}
	if changed("pre") {
		offsets := upper(f.pre)
		for _, o := range offsets {
			if _, err := duration.Parse(o); err != nil {
				return store.Patch{}, fmt.Errorf("reminder offset %q: %w", o, err)
			}
		}
		p.PreNotifyOffsets = store.Set(offsets)
	}
	if changed("repeat") {
		rt, cfg, err := commands.ParseRepeat(f.repeat, due)
		if err != nil {
			return store.Patch{}, err
		}
		p.RepeatType = store.Set(rt)
		p.RepeatConfig = store.Set(cfg)
	}
	if changed("snooze") {
		if strings.EqualFold(f.snooze, "off") || f.snooze == "" {
			p.SnoozeEnabled = store.Set(false)
		} else {
			s := strings.ToUpper(f.snooze)
			if d, err := duration.Parse(s); err != nil || d <= 0 {
				return store.Patch{}, fmt.Errorf("snooze duration %q: %w", f.snooze, duration.ErrInvalidFormat)
			}
			p.SnoozeEnabled = store.Set(true)
			p.SnoozeDuration = store.Set(s)
		}
	}
	return p, nil
}

func newTargetCmd(root *rootFlags, use, short, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, root, openOptions{offline: true}, func(ctx context.Context, rt *runtime) error {
				t, err := commands.Resolve(args[0], rt.app.Tasks())
				if err != nil {
					return err
				}
				ops := map[string]func(context.Context, string) (model.Task, error){
					"done":   rt.app.ToggleStatus,
					"toggle": rt.app.ToggleActive,
					"snooze": rt.app.Snooze,
				}
				updated, err := ops[use](ctx, t.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", verb, updated.Title, describeState(updated))
				return nil
			})
		},
	}
}

func newDeleteCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <task>",
		Aliases: []string{"rm"},
		Short:   "Delete a task locally and, when sync is configured, remotely",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, root, openOptions{}, func(ctx context.Context, rt *runtime) error {
				t, err := commands.Resolve(args[0], rt.app.Tasks())
				if err != nil {
					return err
				}
				if err := rt.app.Delete(ctx, t.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", t.Title)
				return nil
			})
		},
	}
}

func newRespondCmd(root *rootFlags) *cobra.Command {
	ids := make([]string, 0, len(notify.Actions)+1)
	for _, a := range notify.Actions {
		ids = append(ids, a.ID)
	}
	ids = append(ids, notify.ActionDefault)
	return &cobra.Command{
		Use:       "respond <task> <action>",
		Short:     "Apply a reminder action: " + strings.Join(ids, ", "),
		Args:      cobra.ExactArgs(2),
		ValidArgs: ids,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, root, openOptions{offline: true}, func(ctx context.Context, rt *runtime) error {
				t, err := commands.Resolve(args[0], rt.app.Tasks())
				if err != nil {
					return err
				}
				outcome := rt.app.Respond(ctx, notify.Response{
					ActionID: strings.ToUpper(args[1]),
					Alert:    model.Alert{TaskID: t.ID, Kind: model.AlertMain},
				})
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", outcome, t.Title)
				return nil
			})
		},
	}
}

// newDoCmd runs one quick command, the same grammar as the TUI palette.
func newDoCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "do <command...>",
		Short: `Run a quick command, e.g. cronos do "add pay rent due:tomorrow pre:PT1H"`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := commands.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}
			opts := openOptions{offline: parsed.Type != commands.TypeSync && parsed.Type != commands.TypeDelete}
			return withRuntime(cmd, root, opts, func(ctx context.Context, rt *runtime) error {
				res, err := commands.Execute(parsed, quickHandlers(ctx, rt.app))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return nil
			})
		},
	}
}

func quickHandlers(ctx context.Context, a *app.App) commands.Handlers {
	target := func(verb string, fn func(context.Context, string) (model.Task, error)) func(commands.TargetArgs) (commands.Result, error) {
		return func(args commands.TargetArgs) (commands.Result, error) {
			t, err := commands.Resolve(args.Target, a.Tasks())
			if err != nil {
				return commands.Result{}, err
			}
			updated, err := fn(ctx, t.ID)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("%s %s (%s)", verb, updated.Title, describeState(updated))}, nil
		}
	}
	return commands.Handlers{
		Add: func(args commands.AddArgs) (commands.Result, error) {
			in, err := commands.NewTask(args, time.Now())
			if err != nil {
				return commands.Result{}, err
			}
			t, err := a.AddTask(ctx, in)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("added %s %s", t.ID, t.Title)}, nil
		},
		Done:   target("toggled", a.ToggleStatus),
		Toggle: target("active toggled", a.ToggleActive),
		Snooze: target("snoozed", a.Snooze),
		Delete: func(args commands.TargetArgs) (commands.Result, error) {
			t, err := commands.Resolve(args.Target, a.Tasks())
			if err != nil {
				return commands.Result{}, err
			}
			if err := a.Delete(ctx, t.ID); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: "deleted " + t.Title}, nil
		},
		Sync: func(args commands.SyncArgs) (commands.Result, error) {
			res, err := runSync(ctx, a, args.Mode)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: describeResult(res)}, nil
		},
	}
}

func describeState(t model.Task) string {
	if !t.IsActive {
		return "paused"
	}
	if t.DueDate != nil && t.Status != model.StatusCompleted {
		return fmt.Sprintf("%s, due %s", t.Status, t.DueDate.Local().Format("2006-01-02 15:04"))
	}
	return string(t.Status)
}

func upper(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
