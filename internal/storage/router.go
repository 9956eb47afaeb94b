package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one backend upload.
type Result struct {
	Backend  Kind
	Item     Item
	Name     string
	Err      error
	Duration time.Duration
}

// Observer receives per-backend upload outcomes.
type Observer interface {
	ObserveUpload(backend Kind, err error, elapsed time.Duration)
}

// Router uploads staged content to every configured target. Targets run concurrently and
// never affect each other.
type Router struct {
	logger    *slog.Logger
	targets   []*Target
	resolver  *Resolver
	allocator *Allocator
	observer  Observer
}

func NewRouter(log *slog.Logger, targets []*Target, resolver *Resolver, allocator *Allocator, observer Observer) *Router {
	if log == nil {
		log = slog.Default()
	}
	if resolver == nil {
		resolver = NewResolver(log)
	}
	if allocator == nil {
		allocator = NewAllocator(DefaultMaxAttempts)
	}
	return &Router{
		logger:    log.With(slog.String("service", "upload_router")),
		targets:   targets,
		resolver:  resolver,
		allocator: allocator,
		observer:  observer,
	}
}

// Targets returns the configured targets in upload order.
func (r *Router) Targets() []*Target {
	return r.targets
}

// Init initialises every target. Failures are logged and leave the target degraded.
func (r *Router) Init(ctx context.Context) {
	for _, t := range r.targets {
		if _, err := t.Backend(ctx); err != nil {
			r.logger.Warn("storage backend degraded", slog.String("backend", string(t.Kind())), slog.Any("error", err))
		}
	}
}

// Upload writes content to path/desired on each target and returns one result per target.
func (r *Router) Upload(ctx context.Context, path FolderPath, desired string, content Content) ([]Result, error) {
	if len(r.targets) == 0 {
		return nil, ErrNoBackends
	}
	results := make([]Result, len(r.targets))
	var g errgroup.Group
	for i, t := range r.targets {
		g.Go(func() error {
			start := time.Now()
			res := r.uploadOne(ctx, t, path, desired, content)
			res.Duration = time.Since(start)
			if r.observer != nil {
				r.observer.ObserveUpload(t.Kind(), res.Err, res.Duration)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (r *Router) uploadOne(ctx context.Context, t *Target, path FolderPath, desired string, content Content) Result {
	res := Result{Backend: t.Kind()}
	b, err := t.Backend(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	folder, err := r.resolver.Resolve(ctx, b, path)
	if err != nil {
		res.Err = r.classify(t, err)
		return res
	}
	item, err := r.allocator.Store(ctx, b, folder.ID, desired, content)
	if err != nil {
		res.Err = r.classify(t, fmt.Errorf("%w: %s on %s: %w", ErrUpload, desired, t.Kind(), err))
		return res
	}
	res.Item = item
	res.Name = item.Name
	r.logger.Info("uploaded",
		slog.String("backend", string(t.Kind())),
		slog.String("path", path.String()),
		slog.String("name", item.Name))
	return res
}

func (r *Router) classify(t *Target, err error) error {
	if errors.Is(err, ErrAuthInit) {
		t.Reset()
	}
	r.logger.Error("upload failed", slog.String("backend", string(t.Kind())), slog.Any("error", err))
	return err
}

// Succeeded returns the results without an error.
func Succeeded(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the results with an error.
func Failed(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
