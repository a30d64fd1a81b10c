package services

import (
	"context"
	"time"

	"agentdash.server/internal/core/logger"
)

const defaultReconcileInterval = 60 * time.Second

// Reconciler periodically re-lists every framework's agents from storage so
// the lifecycle caches pick up records created out-of-band (migrations,
// manual inserts, another replica). It only ever adds; eviction stays the
// job of an explicit delete.
type Reconciler struct {
	registry *Registry
	interval time.Duration
}

func NewReconciler(registry *Registry, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &Reconciler{registry: registry, interval: interval}
}

// Start blocks until the context is cancelled. Run it in its own goroutine.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconciler shutting down")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) {
	for _, name := range r.registry.Names() {
		manager := r.registry.Get(name)
		if manager == nil {
			continue
		}
		if _, err := manager.All(ctx); err != nil {
			logger.Warn("cache reconciliation failed", "framework", name, "error", err)
		}
	}
}
