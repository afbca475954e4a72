package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sandeepkv93/cronos/internal/app"
	"github.com/sandeepkv93/cronos/internal/config"
	"github.com/sandeepkv93/cronos/internal/logging"
	"github.com/sandeepkv93/cronos/internal/notify"
	"github.com/sandeepkv93/cronos/internal/remote"
	"github.com/sandeepkv93/cronos/internal/scheduler"
	"github.com/sandeepkv93/cronos/internal/storage"
	"github.com/sandeepkv93/cronos/internal/store"
	"github.com/sandeepkv93/cronos/internal/syncer"
)

// runtime is everything one command invocation needs, opened from config.
type runtime struct {
	cfg    config.RuntimeConfig
	log    zerolog.Logger
	repo   *storage.SQLiteRepository
	tasks  *store.Store
	alarms *scheduler.Engine
	remote *remote.PostgresStore
	app    *app.App

	leaseOwner string
	stopLease  func()
	closers    []io.Closer
}

const writerLease = "writer"

// Writers hold the lease for leaseTTL and renew it every leaseTTL/3. A
// command that finds it held retries for leaseWait before giving up.
var (
	leaseTTL  = 30 * time.Second
	leaseWait = 3 * time.Second
)

type openOptions struct {
	// quiet keeps log output off the terminal, for the TUI.
	quiet bool
	// offline skips the remote even when one is configured.
	offline bool
	// readOnly opens without the writer lease and never saves the store.
	readOnly bool
	// command names the holder in lease conflicts.
	command string
}

func openRuntime(ctx context.Context, cfg config.RuntimeConfig, opts openOptions) (*runtime, error) {
	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Quiet: opts.quiet}, os.Stderr)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, log: logger, closers: []io.Closer{logCloser}}

	repo, err := storage.Open(cfg.DBPath)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open local database: %w", err)
	}
	rt.repo = repo

	if !opts.readOnly {
		if err := rt.acquireLease(ctx, opts.command); err != nil {
			rt.Close()
			return nil, err
		}
	}

	tasks := store.New(
		store.WithPersister(store.NewRepositoryPersister(repo, logger)),
		store.WithLogger(logger.With().Str("component", "store").Logger()),
	)
	// An unloaded store must never be saved over the snapshot.
	if err := tasks.Load(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	if !opts.readOnly {
		rt.tasks = tasks
	}

	rt.alarms = scheduler.NewEngine(cfg.SchedulerBuffer,
		scheduler.WithJournal(repo),
		scheduler.WithLogger(logger.With().Str("component", "alarms").Logger()),
	)
	if _, err := rt.alarms.Restore(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("restore alarms: %w", err)
	}
	alerts := notify.NewScheduler(rt.alarms, notify.WithLogger(logger.With().Str("component", "notify").Logger()))

	appOpts := []app.Option{app.WithLogger(logger)}
	if cfg.RemoteEnabled() && !opts.offline {
		pg, err := remote.Open(ctx, cfg.RemoteDSN, remote.WithLogger(logger.With().Str("component", "remote").Logger()))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect remote: %w", err)
		}
		rt.remote = pg
		engine := syncer.New(pg, tasks,
			syncer.WithLogger(logger.With().Str("component", "sync").Logger()),
			syncer.WithRescheduler(alerts),
			syncer.WithTimeout(cfg.SyncTimeout),
			syncer.WithDebounce(cfg.RealtimeDebounce),
			syncer.WithSelfEchoCooldown(cfg.SelfEchoCooldown),
		)
		appOpts = append(appOpts, app.WithSync(engine, cfg.UserID))
	}
	rt.app = app.New(tasks, alerts, appOpts...)
	return rt, nil
}

// acquireLease takes the writer lease, waiting up to leaseWait for another
// writer to finish, and keeps it renewed until Close.
func (rt *runtime) acquireLease(ctx context.Context, command string) error {
	rt.leaseOwner = uuid.NewString()
	lease := func(now time.Time) storage.Lease {
		return storage.Lease{
			Name:      writerLease,
			Owner:     rt.leaseOwner,
			PID:       os.Getpid(),
			Command:   command,
			ExpiresAt: now.Add(leaseTTL),
		}
	}
	deadline := time.Now().Add(leaseWait)
	for {
		now := time.Now()
		err := rt.repo.AcquireLease(ctx, lease(now), now)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrLeaseHeld) || !now.Before(deadline) {
			rt.leaseOwner = ""
			return fmt.Errorf("database is in use: %w", err)
		}
		select {
		case <-ctx.Done():
			rt.leaseOwner = ""
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(leaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				now := time.Now()
				if err := rt.repo.AcquireLease(context.Background(), lease(now), now); err != nil {
					rt.log.Error().Err(err).Msg("failed to renew writer lease")
				}
			}
		}
	}()
	rt.stopLease = func() {
		close(stop)
		<-done
	}
	return nil
}

// Close persists the store and releases resources in reverse open order.
// The store is saved before the lease is released.
func (rt *runtime) Close() error {
	var errs []error
	if rt.tasks != nil {
		ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.SyncTimeout)
		errs = append(errs, rt.tasks.Save(ctx))
		cancel()
	}
	if rt.alarms != nil {
		rt.alarms.Stop()
	}
	if rt.remote != nil {
		errs = append(errs, rt.remote.Close())
	}
	if rt.stopLease != nil {
		rt.stopLease()
	}
	if rt.leaseOwner != "" {
		errs = append(errs, rt.repo.ReleaseLease(context.Background(), writerLease, rt.leaseOwner))
	}
	if rt.repo != nil {
		errs = append(errs, rt.repo.Close())
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i].Close())
	}
	return errors.Join(errs...)
}

func (rt *runtime) desktopNotifier() notify.DesktopNotifier {
	if rt.cfg.DesktopNotifications {
		return notify.ExecDesktopNotifier{}
	}
	return notify.NoopDesktopNotifier{}
}
