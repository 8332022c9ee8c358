// Package workers holds background jobs run by the server.
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExpiredSessionDeleter removes refresh sessions that expired or were
// revoked more than olderThan ago.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SessionCleanup periodically deletes dead refresh sessions.
type SessionCleanup struct {
	sessions  ExpiredSessionDeleter
	log       *zap.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewSessionCleanup creates a cleanup worker running every interval and
// keeping dead sessions for retention.
func NewSessionCleanup(sessions ExpiredSessionDeleter, logger *zap.Logger, interval, retention time.Duration) *SessionCleanup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionCleanup{
		sessions:  sessions,
		log:       logger.Named("session-cleanup"),
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *SessionCleanup) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("session cleanup worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("retention", w.retention))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *SessionCleanup) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info("session cleanup worker stopped")
}

func (w *SessionCleanup) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Cleanup()
		}
	}
}

// Cleanup runs one pass and returns the number of deleted sessions.
func (w *SessionCleanup) Cleanup() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := w.sessions.DeleteExpired(ctx, w.retention)
	if err != nil {
		w.log.Error("failed to delete expired sessions", zap.Error(err))
		return 0
	}
	if count > 0 {
		w.log.Info("deleted expired sessions", zap.Int64("count", count))
	}
	return count
}
