package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/cronos/internal/config"
	"github.com/sandeepkv93/cronos/internal/tui"
)

type rootFlags struct {
	configPath string
	dbPath     string
	logLevel   string
	offline    bool
}

// NewRootCmd builds the cronos command tree. Without a subcommand it starts
// the interactive shell.
func NewRootCmd(version string) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "cronos",
		Short:         "Reminders and recurring tasks with alerts and remote sync",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, flags, openOptions{quiet: true}, func(ctx context.Context, rt *runtime) error {
				rt.alarms.Start()
				return tui.Run(ctx, rt.app, tui.WithAlarms(rt.alarms), tui.WithFired(rt.alarms.C()))
			})
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.cronos/config.yaml)")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "local database path")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.offline, "offline", false, "do not connect to the remote store")

	root.AddCommand(
		newAddCmd(flags),
		newListCmd(flags),
		newShowCmd(flags),
		newEditCmd(flags),
		newTargetCmd(flags, "done", "Complete or reopen a task", "toggled"),
		newTargetCmd(flags, "toggle", "Pause or resume a task's alerts", "active toggled"),
		newTargetCmd(flags, "snooze", "Snooze a task by its snooze duration", "snoozed"),
		newDeleteCmd(flags),
		newRespondCmd(flags),
		newDoCmd(flags),
		newSyncCmd(flags),
		newRemoteCmd(flags),
		newWatchCmd(flags),
	)
	return root
}

func (f *rootFlags) load() (config.RuntimeConfig, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.RuntimeConfig{}, err
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	if f.logLevel != "" {
		cfg.LogLevel = strings.ToLower(f.logLevel)
	}
	return cfg, cfg.Validate()
}

// withRuntime opens the runtime for one command and always closes it, so
// the task snapshot is flushed even when fn fails.
func withRuntime(cmd *cobra.Command, flags *rootFlags, opts openOptions, fn func(context.Context, *runtime) error) (err error) {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	opts.offline = opts.offline || flags.offline
	opts.command = cmd.CommandPath()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close: %w", closeErr)
		}
	}()
	return fn(ctx, rt)
}
