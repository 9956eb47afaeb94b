package whitelist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const defaultPersistTries = 3

// Cache is the read-through view of a Store. Reads take a shared lock; writers are
// serialized and write durably before the view changes, so a failed write leaves both
// the store and the view untouched.
type Cache struct {
	store   Store
	logger  *slog.Logger
	backOff func() backoff.BackOff
	tries   uint

	writeMu sync.Mutex
	mu      sync.RWMutex
	entries map[Principal]Entry
	loaded  time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithRetryBackOff replaces the exponential back-off between persist attempts.
func WithRetryBackOff(fn func() backoff.BackOff) CacheOption {
	return func(c *Cache) { c.backOff = fn }
}

// WithPersistTries sets the number of persist attempts.
func WithPersistTries(n uint) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.tries = n
		}
	}
}

func NewCache(log *slog.Logger, store Store, opts ...CacheOption) *Cache {
	if log == nil {
		log = slog.Default()
	}
	c := &Cache{
		store:   store,
		logger:  log.With(slog.String("service", "whitelist")),
		backOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		tries:   defaultPersistTries,
		entries: map[Principal]Entry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh replaces the view with the store contents.
func (c *Cache) Refresh(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	entries, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load whitelist: %w", err)
	}
	next := make(map[Principal]Entry, len(entries))
	for _, e := range entries {
		next[e.Principal] = e
	}
	c.mu.Lock()
	c.entries = next
	c.loaded = time.Now()
	c.mu.Unlock()
	c.logger.Debug("whitelist refreshed", slog.Int("entries", len(next)))
	return nil
}

// LoadedAt is the time of the last successful refresh.
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Cache) Contains(p Principal) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[p]
	return ok
}

func (c *Cache) Get(p Principal) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[p]
	return e, ok
}

// List returns a sorted snapshot.
func (c *Cache) List() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()
	Sort(out)
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Add persists e and then records it. It reports whether the principal was new.
func (c *Cache) Add(ctx context.Context, e Entry) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, existed := c.Get(e.Principal)
	if err := c.persist(ctx, "append", func(ctx context.Context) error { return c.store.Append(ctx, e) }); err != nil {
		return false, err
	}
	c.mu.Lock()
	c.entries[e.Principal] = e
	c.mu.Unlock()
	return !existed, nil
}

// Remove deletes p and reports whether it was present.
func (c *Cache) Remove(ctx context.Context, p Principal) (bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, ok := c.Get(p); !ok {
		return false, nil
	}
	if err := c.persist(ctx, "remove", func(ctx context.Context) error { return c.store.Remove(ctx, p) }); err != nil {
		return false, err
	}
	c.mu.Lock()
	delete(c.entries, p)
	c.mu.Unlock()
	return true, nil
}

// Reset replaces the whole set with the entries for which keep returns true and
// returns how many were removed.
func (c *Cache) Reset(ctx context.Context, keep func(Entry) bool) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	current := c.List()
	kept := make([]Entry, 0, len(current))
	for _, e := range current {
		if keep != nil && keep(e) {
			kept = append(kept, e)
		}
	}
	if err := c.persist(ctx, "save", func(ctx context.Context) error { return c.store.Save(ctx, kept) }); err != nil {
		return 0, err
	}
	next := make(map[Principal]Entry, len(kept))
	for _, e := range kept {
		next[e.Principal] = e
	}
	c.mu.Lock()
	c.entries = next
	c.mu.Unlock()
	return len(current) - len(kept), nil
}

// Seed adds e when absent. Used for the administrator at startup.
func (c *Cache) Seed(ctx context.Context, e Entry) (bool, error) {
	if c.Contains(e.Principal) {
		return false, nil
	}
	return c.Add(ctx, e)
}

// Admit records e in the view without persisting it. The next successful Refresh
// replaces it with the store contents.
func (c *Cache) Admit(e Entry) {
	c.mu.Lock()
	c.entries[e.Principal] = e
	c.mu.Unlock()
}

func (c *Cache) persist(ctx context.Context, op string, fn func(context.Context) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := fn(ctx); err != nil {
			c.logger.Warn("whitelist persist attempt failed",
				slog.String("op", op), slog.Int("attempt", attempt), slog.Any("error", err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(c.backOff()), backoff.WithMaxTries(c.tries))
	if err != nil {
		c.logger.Error("whitelist persist failed", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("%w: %s: %w", ErrPersist, op, err)
	}
	return nil
}
