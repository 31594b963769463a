package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/domain"
	"github.com/gymrank/internal/scoring"
)

// Store is the persistence surface the reconcile worker needs
type Store interface {
	ListUsernames(ctx context.Context) ([]string, error)
	GetUser(ctx context.Context, username string) (*domain.User, error)
	GetLiftHistory(ctx context.Context, username string) ([]domain.LiftRecord, error)
	SetElo(ctx context.Context, username string, elo float64) error
	GetAllElo(ctx context.Context) (map[string]float64, error)
}

// Mirror is the Redis ELO mirror the worker repairs
type Mirror interface {
	SetScore(ctx context.Context, username string, elo float64) error
	RebuildFrom(ctx context.Context, scores map[string]float64) error
}

// ReconcileWorker periodically recomputes every user's ELO from their lift
// history and repairs stored scores that drifted. Concurrent submissions can
// race the read-compute-write cycle; the worker bounds how long such a stale
// score survives.
type ReconcileWorker struct {
	store   Store
	mirror  Mirror // optional
	config  *config.ReconcileConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(store Store, mirror Mirror, cfg *config.ReconcileConfig, logger *slog.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		store:  store,
		mirror: mirror,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background reconcile process
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("reconcile worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background reconcile process
func (w *ReconcileWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("reconcile worker stopped")
	return nil
}

// run is the main worker loop
func (w *ReconcileWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.reconcileAll(ctx)
		}
	}
}

// reconcileAll recomputes every user's ELO and fixes drifted scores
func (w *ReconcileWorker) reconcileAll(ctx context.Context) {
	w.logger.Info("starting reconcile cycle")
	startTime := time.Now()

	usernames, err := w.store.ListUsernames(ctx)
	if err != nil {
		w.logger.Error("failed to list users for reconcile", "error", err)
		return
	}

	checked := 0
	fixed := 0
	errorCount := 0

	for _, username := range usernames {
		repaired, err := w.reconcileUser(ctx, username)
		if err != nil {
			w.logger.Error("failed to reconcile user", "username", username, "error", err)
			errorCount++
			continue
		}
		checked++
		if repaired {
			fixed++
		}
	}

	w.logger.Info("reconcile cycle completed",
		"duration", time.Since(startTime),
		"checked", checked,
		"fixed", fixed,
		"errors", errorCount,
	)
}

// reconcileUser recomputes one user's ELO from history and repairs the
// stored value and the mirror when they disagree.
func (w *ReconcileWorker) reconcileUser(ctx context.Context, username string) (bool, error) {
	user, err := w.store.GetUser(ctx, username)
	if err != nil {
		return false, err
	}

	history, err := w.store.GetLiftHistory(ctx, username)
	if err != nil {
		return false, err
	}

	// scoring.ELO rounds to the two decimals the column stores, so exact
	// equality is the right check; a fractional weight sum never reads back
	// as drift.
	want := scoring.ELO(history)
	if user.Elo == want {
		return false, nil
	}

	w.logger.Warn("elo drift detected",
		"username", username,
		"stored", user.Elo,
		"computed", want,
	)

	if err := w.store.SetElo(ctx, username, want); err != nil {
		return false, err
	}
	if w.mirror != nil {
		if err := w.mirror.SetScore(ctx, username, want); err != nil {
			w.logger.Warn("mirror repair failed", "username", username, "error", err)
		}
	}
	return true, nil
}

// RebuildMirror replaces the whole Redis mirror with the stored scores.
// Called at startup so a flushed Redis recovers without waiting for a cycle.
func (w *ReconcileWorker) RebuildMirror(ctx context.Context) error {
	if w.mirror == nil {
		return nil
	}

	scores, err := w.store.GetAllElo(ctx)
	if err != nil {
		return err
	}
	return w.mirror.RebuildFrom(ctx, scores)
}

// RunOnce runs a single reconcile cycle (useful for manual triggers)
func (w *ReconcileWorker) RunOnce(ctx context.Context) {
	w.reconcileAll(ctx)
}
