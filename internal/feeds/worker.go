package feeds

import (
	"context"
	"log/slog"
	"time"
)

// RefreshWorkerConfig holds configuration for the background refresher.
type RefreshWorkerConfig struct {
	// Interval between refresh sweeps. Each sweep only refreshes feeds
	// whose TTL has elapsed, so a short interval is cheap.
	Interval time.Duration
}

// DefaultRefreshWorkerConfig returns sensible defaults.
func DefaultRefreshWorkerConfig() RefreshWorkerConfig {
	return RefreshWorkerConfig{Interval: time.Minute}
}

// RefreshWorker keeps the feed caches warm so request paths read fresh data
// without ever waiting on an upstream. Refresh is best-effort: two
// concurrent refreshers may both fetch and both write; the last write wins.
type RefreshWorker struct {
	manager *Manager
	config  RefreshWorkerConfig
	logger  *slog.Logger
	stopCh  chan struct{}
}

// NewRefreshWorker creates a new refresh worker.
func NewRefreshWorker(manager *Manager, config RefreshWorkerConfig, logger *slog.Logger) *RefreshWorker {
	return &RefreshWorker{
		manager: manager,
		config:  config,
		logger:  logger.With("component", "feed_refresh_worker"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the worker in a goroutine.
func (w *RefreshWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker to stop.
func (w *RefreshWorker) Stop() {
	close(w.stopCh)
}

func (w *RefreshWorker) run(ctx context.Context) {
	w.logger.Info("feed refresh worker started", "interval", w.config.Interval)

	// Warm the caches immediately on start.
	w.runOnce(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("feed refresh worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("feed refresh worker stopping (stop signal)")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RefreshWorker) runOnce(ctx context.Context) {
	start := time.Now()
	refreshed := w.manager.RefreshAll(ctx, false)
	if refreshed > 0 {
		w.logger.Debug("refresh sweep complete",
			"refreshed", refreshed,
			"duration", time.Since(start))
	}
}
