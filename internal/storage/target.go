package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// Factory builds a backend, typically by loading credentials. Errors should wrap ErrAuthInit.
type Factory func(ctx context.Context) (Backend, error)

// Target is a lazily initialised, rate-limited backend. A failed initialisation leaves the
// target unavailable and is retried on the next use.
type Target struct {
	kind    Kind
	factory Factory
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	backend Backend
}

// NewTarget wraps factory. A non-positive rps disables throttling.
func NewTarget(log *slog.Logger, kind Kind, factory Factory, rps float64) *Target {
	if log == nil {
		log = slog.Default()
	}
	t := &Target{
		kind:    kind,
		factory: factory,
		logger:  log.With(slog.String("service", "storage"), slog.String("backend", string(kind))),
	}
	t.limiter = NewLimiter(rps)
	return t
}

// NewLimiter returns a limiter allowing rps calls per second, or nil when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Throttle makes every call on b wait for limiter. A nil limiter returns b unchanged.
func Throttle(b Backend, limiter *rate.Limiter) Backend {
	if limiter == nil {
		return b
	}
	return &throttled{Backend: b, limiter: limiter}
}

func (t *Target) Kind() Kind { return t.kind }

// Limiter is the rate limiter shared by every call to this target, nil when unthrottled.
func (t *Target) Limiter() *rate.Limiter { return t.limiter }

// Backend returns the initialised backend, initialising it when needed.
func (t *Target) Backend(ctx context.Context) (Backend, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.backend != nil {
		return t.backend, nil
	}
	if t.factory == nil {
		return nil, fmt.Errorf("%w: %s has no factory", ErrAuthInit, t.kind)
	}
	b, err := t.factory(ctx)
	if err != nil {
		t.logger.Warn("backend unavailable", slog.Any("error", err))
		if !errors.Is(err, ErrAuthInit) {
			err = fmt.Errorf("%w: %w", ErrAuthInit, err)
		}
		return nil, err
	}
	b = Throttle(b, t.limiter)
	t.backend = b
	t.logger.Info("backend ready")
	return b, nil
}

// Available reports whether the backend is currently initialised.
func (t *Target) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.backend != nil
}

// Reset drops the backend so the next use re-initialises it.
func (t *Target) Reset() {
	t.mu.Lock()
	t.backend = nil
	t.mu.Unlock()
}

type throttled struct {
	Backend
	limiter *rate.Limiter
}

func (t *throttled) FindChild(ctx context.Context, parentID, name string, folder bool) (Item, bool, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Item{}, false, err
	}
	return t.Backend.FindChild(ctx, parentID, name, folder)
}

func (t *throttled) CreateFolder(ctx context.Context, parentID, name string) (Item, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Item{}, err
	}
	return t.Backend.CreateFolder(ctx, parentID, name)
}

func (t *throttled) CreateFile(ctx context.Context, parentID, name string, content Content) (Item, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Item{}, err
	}
	return t.Backend.CreateFile(ctx, parentID, name, content)
}
