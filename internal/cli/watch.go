package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/cronos/internal/notify"
	"github.com/sandeepkv93/cronos/internal/scheduler"
	"github.com/sandeepkv93/cronos/internal/syncer"
)

// newWatchCmd runs the alarm loop in the foreground: restored and rebuilt
// alerts fire as desktop notifications, and with a remote configured the
// store follows the change feed and syncs periodically.
func newWatchCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Deliver alerts and keep tasks in sync until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, root, openOptions{}, func(ctx context.Context, rt *runtime) error {
				return watch(ctx, rt, cmd)
			})
		},
	}
}

func watch(ctx context.Context, rt *runtime, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	if rt.app.SyncEnabled() {
		res, err := rt.app.Sync(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, describeResult(res))
	}
	n, err := rt.app.RescheduleAll(ctx)
	if err != nil {
		return err
	}
	rt.log.Info().Int("scheduled", n).Msg("alerts rebuilt")
	rt.alarms.Start()

	go notify.Deliver(ctx, rt.alarms.C(), rt.desktopNotifier(), rt.log, func(a scheduler.Alarm) {
		fmt.Fprintf(out, "%s  %s: %s\n", time.Now().Format("15:04"), a.Alert.Title, a.Alert.Body)
	})

	if rt.app.SyncEnabled() {
		stop, err := rt.app.Subscribe(ctx, func(res syncer.Result) {
			rt.log.Info().Int("pulled", res.Pulled).Int("pushed", res.Pushed).Msg("synced after remote change")
		})
		if err != nil {
			rt.log.Warn().Err(err).Msg("realtime unavailable, relying on periodic sync")
		} else {
			defer stop()
		}
	}

	var tick <-chan time.Time
	if rt.app.SyncEnabled() && rt.cfg.SyncInterval > 0 {
		ticker := time.NewTicker(rt.cfg.SyncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	fmt.Fprintf(out, "watching %d tasks, %d alerts armed\n", len(rt.app.Tasks()), n)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			res, err := rt.app.Sync(ctx)
			if err != nil {
				rt.log.Warn().Err(err).Msg("periodic sync failed")
				continue
			}
			rt.log.Debug().Int("pulled", res.Pulled).Int("pushed", res.Pushed).Msg("periodic sync")
		}
	}
}
