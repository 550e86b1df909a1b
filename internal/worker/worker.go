// Package worker provides the background job that retries remote syncs
// while local changes are still pending.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/nadmax/pomodoro/internal/store"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultSyncTimeout  = 25 * time.Second
)

// Syncer is the part of the task store the worker drives.
type Syncer interface {
	Pending() bool
	SyncNow(ctx context.Context) error
}

type SyncWorker struct {
	id           string
	syncer       Syncer
	stop         chan bool
	pollInterval time.Duration
	timeout      time.Duration
	failures     int
	l            *log.Logger
}

func NewSyncWorker(id string, s Syncer, l *log.Logger) *SyncWorker {
	return &SyncWorker{
		id:           id,
		syncer:       s,
		stop:         make(chan bool),
		pollInterval: DefaultPollInterval,
		timeout:      DefaultSyncTimeout,
		l:            logging.OrDiscard(l).With("worker", id),
	}
}

func (w *SyncWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// SetTimeout bounds a single sync attempt, covering both of the store's
// remote write attempts.
func (w *SyncWorker) SetTimeout(d time.Duration) {
	if d > 0 {
		w.timeout = d
	}
}

// Start polls until Stop is called.
func (w *SyncWorker) Start() {
	w.l.Info("sync worker started", "interval", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			w.l.Info("sync worker stopped")
			return
		case <-ticker.C:
			w.syncPending()
		}
	}
}

// syncPending pushes the collection when the store reports unsynced
// changes. It reports whether a sync was attempted.
func (w *SyncWorker) syncPending() bool {
	if !w.syncer.Pending() {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	err := w.syncer.SyncNow(ctx)
	switch {
	case err == nil:
		if w.failures > 0 {
			w.l.Info("remote store reachable again", "failed_attempts", w.failures)
		}
		w.failures = 0
	case errors.Is(err, store.ErrRemoteDisabled):
		w.l.Debug("remote store disabled, nothing to sync")
	default:
		w.failures++
		w.l.Warn("pending sync failed, will retry", "attempt", w.failures, "error", err)
	}
	return true
}

func (w *SyncWorker) Stop() {
	w.stop <- true
}
