package eventsync

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const stopWaitTimeout = 5 * time.Second

// Syncer syncs every connected user. *Service implements it.
type Syncer interface {
	SyncAllUsers(ctx context.Context) (Summary, error)
}

// TokenCleaner removes expired sessions. *auth.Service implements it.
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// WorkerConfig contains configuration for the background worker.
// A zero interval disables that loop.
type WorkerConfig struct {
	SyncInterval    time.Duration
	CleanupInterval time.Duration
	// SyncOnStart runs one sync right away instead of waiting a full interval
	SyncOnStart bool
}

// Worker periodically syncs all users' calendars and prunes refresh tokens.
type Worker struct {
	syncer  Syncer
	cleaner TokenCleaner
	config  WorkerConfig
	clock   clockwork.Clock
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// syncMu keeps the startup sync from overlapping a scheduled run
	syncMu sync.Mutex
}

// NewWorker creates a new background worker
func NewWorker(syncer Syncer, cleaner TokenCleaner, config WorkerConfig, clock clockwork.Clock, logger *zap.Logger) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		syncer:  syncer,
		cleaner: cleaner,
		config:  config,
		clock:   clock,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the enabled loops
func (w *Worker) Start() {
	if w.config.SyncInterval > 0 && w.syncer != nil {
		w.logger.Info("starting calendar sync loop", zap.Duration("interval", w.config.SyncInterval))
		w.wg.Add(1)
		go w.loop(w.config.SyncInterval, w.syncAll)
		if w.config.SyncOnStart {
			w.SyncNow()
		}
	} else {
		w.logger.Info("periodic calendar sync disabled")
	}

	if w.config.CleanupInterval > 0 && w.cleaner != nil {
		w.logger.Info("starting refresh token cleanup loop", zap.Duration("interval", w.config.CleanupInterval))
		w.wg.Add(1)
		go w.loop(w.config.CleanupInterval, w.cleanup)
	}
}

// Stop cancels the loops and waits for an in-flight run to finish
func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped")
	case <-time.After(stopWaitTimeout):
		w.logger.Warn("worker stop timed out; continuing shutdown", zap.Duration("timeout", stopWaitTimeout))
	}
}

// SyncNow triggers an immediate sync of every user
func (w *Worker) SyncNow() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.syncAll(w.ctx)
	}()
}

func (w *Worker) loop(interval time.Duration, run func(context.Context)) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.Chan():
			run(w.ctx)
		}
	}
}

func (w *Worker) syncAll(ctx context.Context) {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	start := w.clock.Now()
	summary, err := w.syncer.SyncAllUsers(ctx)
	if err != nil {
		w.logger.Error("scheduled sync failed", zap.Error(err))
		return
	}
	w.logger.Info("scheduled sync finished",
		zap.Int("users", summary.Users),
		zap.Int("failed", summary.Failed),
		zap.Int("need_reauth", summary.NeedReauth),
		zap.Int("events", summary.Synced),
		zap.Duration("took", w.clock.Since(start)),
	)
}

func (w *Worker) cleanup(ctx context.Context) {
	deleted, err := w.cleaner.CleanupExpiredTokens(ctx)
	if err != nil {
		w.logger.Error("refresh token cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		w.logger.Info("cleaned up refresh tokens", zap.Int64("deleted", deleted))
	}
}
