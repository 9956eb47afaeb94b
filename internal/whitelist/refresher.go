package whitelist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Reloader re-reads the durable whitelist. *Cache implements it.
type Reloader interface {
	Refresh(ctx context.Context) error
}

// Refresher runs a Reloader on a fixed interval.
type Refresher struct {
	reloader Reloader
	interval time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewRefresher(log *slog.Logger, reloader Reloader, interval time.Duration) *Refresher {
	if log == nil {
		log = slog.Default()
	}
	return &Refresher{
		reloader: reloader,
		interval: interval,
		logger:   log.With(slog.String("service", "whitelist_refresher")),
		cron:     cron.New(),
	}
}

// Start schedules the refresh job.
func (r *Refresher) Start() error {
	if r.interval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), r.run)
	if err != nil {
		return fmt.Errorf("schedule whitelist refresh: %w", err)
	}
	r.cron.Start()
	r.logger.Info("whitelist refresh scheduled", slog.Duration("interval", r.interval))
	return nil
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := r.reloader.Refresh(ctx); err != nil {
		r.logger.Warn("whitelist refresh failed", slog.Any("error", err))
	}
}

// Stop waits for a running refresh or ctx, whichever is first.
func (r *Refresher) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
