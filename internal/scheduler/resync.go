package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/shelf-sh/shelf/internal/logger"
	"github.com/shelf-sh/shelf/internal/reconcile"
)

// Resyncer periodically replaces the visible list with the store's
// authoritative set. Steady-state consistency comes from the change
// feed; the resyncer covers initialization, feed reconnects (via the
// manual trigger) and drift.
type Resyncer struct {
	loop          *reconcile.Loop
	logger        logger.Logger
	interval      time.Duration
	opTimeout     time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewResyncer creates a new resyncer. The manual trigger channel is
// shared with the feed subscriber and the resync endpoint.
func NewResyncer(
	loop *reconcile.Loop,
	log logger.Logger,
	interval time.Duration,
	opTimeout time.Duration,
	manualTrigger chan struct{},
) *Resyncer {
	return &Resyncer{
		loop:          loop,
		logger:        log,
		interval:      interval,
		opTimeout:     opTimeout,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start performs the initial resync and begins the periodic cycle.
func (r *Resyncer) Start(ctx context.Context) error {
	if err := r.resync(ctx); err != nil {
		return fmt.Errorf("initial resync failed: %w", err)
	}

	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.resync(ctx); err != nil {
					r.logger.Error("periodic resync failed",
						logger.Error(err))
				}
			case <-r.manualTrigger:
				r.logger.Info("manual resync triggered")
				if err := r.resync(ctx); err != nil {
					r.logger.Error("manual resync failed",
						logger.Error(err))
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the resyncer.
func (r *Resyncer) Stop() {
	close(r.stopCh)
}

func (r *Resyncer) resync(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	start := time.Now()
	if err := r.loop.Resync(rctx); err != nil {
		return err
	}

	r.logger.Info("resynced from store",
		logger.Duration("took", time.Since(start)))
	return nil
}
