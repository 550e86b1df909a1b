package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/config"
	"github.com/nadmax/pomodoro/internal/journey"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/nadmax/pomodoro/internal/notify"
	"github.com/nadmax/pomodoro/internal/report"
	"github.com/nadmax/pomodoro/internal/scheduler"
	"github.com/nadmax/pomodoro/internal/store"
	"github.com/nadmax/pomodoro/internal/timeconv"
	"github.com/nadmax/pomodoro/internal/timer"
	"github.com/nadmax/pomodoro/internal/worker"
)

const localUserID = "local"

// Runtime is a fully wired application built from configuration.
type Runtime struct {
	Config    *config.Config
	Converter timeconv.Converter
	App       *App
	Store     *store.Store
	Timer     *timer.Engine
	Journey   journey.Journey
	Sync      *worker.SyncWorker
	Reports   *report.Generator
	Loaded    store.LoadReport

	l       *log.Logger
	closers []func() error

	mu      sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// Bootstrap opens the local cache, connects the optional remote store and
// journey ledger, loads the tasks and restores the timer.
func Bootstrap(ctx context.Context, cfg *config.Config, l *log.Logger) (*Runtime, error) {
	l = logging.OrDiscard(l)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	conv := timeconv.NewConverter(loc)

	sched, err := scheduler.New(scheduler.WorkingHours{Start: cfg.WorkStart, End: cfg.WorkEnd}, conv)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Converter: conv, l: l}

	cache, err := store.OpenSQLiteCache(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}
	rt.closers = append(rt.closers, cache.Close)

	var remote store.RemoteStore
	if cfg.UserID != "" && cfg.RedisAddr != "" {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.LoadTimeout)
		r, err := store.NewRedisRemote(connectCtx, cfg.RedisAddr)
		cancel()
		if err != nil {
			l.Warn("remote store unreachable, running local only", "addr", cfg.RedisAddr, "error", err)
		} else {
			remote = r
			rt.closers = append(rt.closers, r.Close)
		}
	}

	rt.Store = store.New(cache, remote, store.Options{
		UserID:      cfg.UserID,
		LoadTimeout: cfg.LoadTimeout,
		SaveTimeout: cfg.SaveTimeout,
		Location:    loc,
		Logger:      l,
	})
	_, rt.Loaded = rt.Store.Load(ctx)

	rt.Journey = openJourney(cfg, rt, l)

	notifiers := notify.Multi{notify.NewLogNotifier(l)}
	if cfg.Email.Enabled() {
		notifiers = append(notifiers, notify.NewEmailNotifier(notify.EmailOptions{
			APIKey:      cfg.Email.APIKey,
			FromName:    cfg.Email.FromName,
			FromAddress: cfg.Email.FromAddress,
			To:          cfg.Email.To,
		}, l))
	}

	rt.Timer = timer.New(rt.Store, timer.Options{
		Journey:         rt.Journey,
		Notifier:        notifiers,
		State:           cache,
		StaleAfter:      cfg.StaleAfter,
		PersistInterval: cfg.PersistInterval,
		Logger:          l,
	})
	if _, err := rt.Timer.Restore(ctx); err != nil {
		l.Warn("failed to restore timer state", "error", err)
	}

	rt.App = New(Options{
		Scheduler: sched,
		Store:     rt.Store,
		Timer:     rt.Timer,
		Journey:   rt.Journey,
		Notifier:  notifiers,
		Converter: conv,
		Logger:    l,
	})

	rt.Sync = worker.NewSyncWorker("sync", rt.Store, l)
	rt.Sync.SetPollInterval(cfg.SyncInterval)
	rt.Sync.SetTimeout(2*cfg.SaveTimeout + cfg.LoadTimeout)

	rt.Reports = report.NewGenerator(conv, l)

	l.Info("pomodoro ready",
		"tasks", len(rt.Store.Tasks()),
		"source", rt.Loaded.Source,
		"remote", remote != nil,
		"pending_sync", rt.Loaded.PendingSync,
	)
	return rt, nil
}

func openJourney(cfg *config.Config, rt *Runtime, l *log.Logger) journey.Journey {
	loc := rt.Converter.Location
	if cfg.PostgresDSN == "" {
		return journey.NewMemory(loc, nil)
	}

	userID := cfg.UserID
	if userID == "" {
		userID = localUserID
	}
	ledger, err := journey.NewPostgresLedger(cfg.PostgresDSN, userID, loc)
	if err != nil {
		l.Warn("journey ledger unavailable, keeping points in memory", "error", err)
		return journey.NewMemory(loc, nil)
	}
	if err := ledger.Migrate(); err != nil {
		l.Warn("journey ledger migration failed, keeping points in memory", "error", err)
		_ = ledger.Close()
		return journey.NewMemory(loc, nil)
	}
	rt.closers = append(rt.closers, ledger.Close)
	return ledger
}

func (rt *Runtime) Logger() *log.Logger {
	return rt.l
}

// Start runs the timer loop and the sync worker in the background.
func (rt *Runtime) Start(ctx context.Context) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.cancel != nil {
		return
	}

	ctx, rt.cancel = context.WithCancel(ctx)
	rt.running.Add(2)
	go func() {
		defer rt.running.Done()
		rt.Timer.Run(ctx)
	}()
	go func() {
		defer rt.running.Done()
		rt.Sync.Start()
	}()
}

// Close stops background work, persists the timer, waits for remote writes
// and releases every connection.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.mu.Lock()
	if rt.cancel != nil {
		rt.Sync.Stop()
		rt.cancel()
		rt.running.Wait()
		rt.cancel = nil
	}
	rt.mu.Unlock()

	errs := []error{rt.App.Close(ctx)}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	return errors.Join(errs...)
}
