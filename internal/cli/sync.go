package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/cronos/internal/app"
	"github.com/sandeepkv93/cronos/internal/commands"
	"github.com/sandeepkv93/cronos/internal/config"
	"github.com/sandeepkv93/cronos/internal/remote"
	"github.com/sandeepkv93/cronos/internal/syncer"
)

func newSyncCmd(root *rootFlags) *cobra.Command {
	var pull, push bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull remote changes then push local ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pull && push {
				return fmt.Errorf("--pull and --push are exclusive")
			}
			mode := commands.SyncBoth
			switch {
			case pull:
				mode = commands.SyncPull
			case push:
				mode = commands.SyncPush
			}
			return withRuntime(cmd, root, openOptions{}, func(ctx context.Context, rt *runtime) error {
				res, err := runSync(ctx, rt.app, mode)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, describeResult(res))
				for _, e := range res.Errors {
					fmt.Fprintln(out, "  error:", e)
				}
				if mode == commands.SyncPull && rt.app.PendingPush() {
					fmt.Fprintln(out, "local changes are waiting to be pushed")
				}
				if len(res.Errors) > 0 {
					return fmt.Errorf("sync finished with %d errors", len(res.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&pull, "pull", false, "only pull")
	cmd.Flags().BoolVar(&push, "push", false, "only push")
	return cmd
}

func runSync(ctx context.Context, a *app.App, mode commands.SyncMode) (syncer.Result, error) {
	switch mode {
	case commands.SyncPull:
		return a.Pull(ctx)
	case commands.SyncPush:
		return a.Push(ctx)
	default:
		return a.Sync(ctx)
	}
}

func describeResult(r syncer.Result) string {
	parts := []string{
		fmt.Sprintf("pulled %d", r.Pulled),
		fmt.Sprintf("pushed %d", r.Pushed),
		fmt.Sprintf("deleted %d", r.Deleted),
		fmt.Sprintf("skipped %d", r.Skipped),
	}
	if len(r.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", len(r.Errors)))
	}
	return "sync: " + strings.Join(parts, ", ")
}

// newRemoteCmd manages the shared Postgres schema.
func newRemoteCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage the remote tasks table",
	}
	migrate := func(down bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return withRemote(cmd.Context(), cfg, func(pg *remote.PostgresStore) error {
				if down {
					return pg.MigrateDown(cmd.Context())
				}
				return pg.Migrate(cmd.Context())
			})
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "migrate", Short: "Create the tasks table and change trigger", Args: cobra.NoArgs, RunE: migrate(false)},
		&cobra.Command{Use: "drop", Short: "Drop the tasks table and change trigger", Args: cobra.NoArgs, RunE: migrate(true)},
	)
	return cmd
}

func withRemote(ctx context.Context, cfg config.RuntimeConfig, fn func(*remote.PostgresStore) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pg, err := remote.Open(ctx, cfg.RemoteDSN)
	if err != nil {
		return err
	}
	defer pg.Close()
	return fn(pg)
}
