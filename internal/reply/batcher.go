// Package reply owns the user-facing messages and the per-conversation acknowledgment batcher.
package reply

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/winson8942-oss/line-drive-bot/internal/channel"
)

const (
	DefaultWindow    = 2 * time.Second
	DefaultHandleTTL = 50 * time.Second

	flushTimeout = 30 * time.Second
)

// FlushObserver is told about every flush.
type FlushObserver interface {
	ObserveFlush(items int, pushed bool, err error)
}

// Options configures a Batcher.
type Options struct {
	Window    time.Duration
	HandleTTL time.Duration
	Clock     Clock
	Observer  FlushObserver
}

type buffer struct {
	key      string
	items    []Item
	handle   string
	issuedAt time.Time
	timer    Timer
	gen      uint64
}

// Batcher coalesces acknowledgments per conversation key. Each enqueue restarts the idle
// window; when it elapses one grouped message is sent with the newest reply handle.
type Batcher struct {
	logger   *slog.Logger
	notifier channel.Notifier
	catalog  *Catalog
	clock    Clock
	window   time.Duration
	ttl      time.Duration
	observer FlushObserver

	mu      sync.Mutex
	buffers map[string]*buffer
	gen     uint64
	closed  bool
	flushes sync.WaitGroup
}

func NewBatcher(log *slog.Logger, notifier channel.Notifier, catalog *Catalog, opts Options) *Batcher {
	if log == nil {
		log = slog.Default()
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.HandleTTL <= 0 {
		opts.HandleTTL = DefaultHandleTTL
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Batcher{
		logger:   log.With(slog.String("service", "reply_batcher")),
		notifier: notifier,
		catalog:  catalog,
		clock:    opts.Clock,
		window:   opts.Window,
		ttl:      opts.HandleTTL,
		observer: opts.Observer,
		buffers:  map[string]*buffer{},
	}
}

// Enqueue adds item to key's buffer. An empty handle keeps the previous one; issuedAt is
// when the handle was minted and defaults to now.
func (b *Batcher) Enqueue(key, replyHandle string, issuedAt time.Time, item Item) {
	if issuedAt.IsZero() {
		issuedAt = b.clock.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.logger.Warn("enqueue after close", slog.String("key", key), slog.String("item", item.Name))
		return
	}
	buf, ok := b.buffers[key]
	if !ok {
		buf = &buffer{key: key}
		b.buffers[key] = buf
	}
	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.items = append(buf.items, item)
	if replyHandle != "" && !issuedAt.Before(buf.issuedAt) {
		buf.handle = replyHandle
		buf.issuedAt = issuedAt
	}
	b.gen++
	gen := b.gen
	buf.gen = gen
	buf.timer = b.clock.AfterFunc(b.window, func() { b.fire(key, gen) })
}

// Pending returns the number of buffered items for key.
func (b *Batcher) Pending(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[key]; ok {
		return len(buf.items)
	}
	return 0
}

func (b *Batcher) fire(key string, gen uint64) {
	b.mu.Lock()
	buf, ok := b.buffers[key]
	if !ok || buf.gen != gen {
		b.mu.Unlock()
		return
	}
	delete(b.buffers, key)
	b.flushes.Add(1)
	b.mu.Unlock()

	defer b.flushes.Done()
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	b.send(ctx, buf)
}

func (b *Batcher) send(ctx context.Context, buf *buffer) {
	if b.notifier == nil {
		b.logger.Warn("no notifier, dropping batch", slog.String("key", buf.key), slog.Int("items", len(buf.items)))
		return
	}
	text := Render(b.catalog, buf.items)
	handle := buf.handle
	if handle != "" && b.clock.Now().Sub(buf.issuedAt) >= b.ttl {
		b.logger.Debug("reply handle expired, pushing", slog.String("key", buf.key))
		handle = ""
	}
	pushed := handle == ""
	err := channel.Deliver(ctx, &pushTracker{Notifier: b.notifier, pushed: &pushed}, handle, buf.key, text)
	if err != nil {
		b.logger.Error("batched reply failed", slog.String("key", buf.key), slog.Int("items", len(buf.items)), slog.Any("error", err))
	} else {
		b.logger.Info("batched reply sent", slog.String("key", buf.key), slog.Int("items", len(buf.items)), slog.Bool("pushed", pushed))
	}
	if b.observer != nil {
		b.observer.ObserveFlush(len(buf.items), pushed, err)
	}
}

// Close flushes every pending buffer immediately and waits for in-flight flushes.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	pending := make([]*buffer, 0, len(b.buffers))
	for key, buf := range b.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		pending = append(pending, buf)
		delete(b.buffers, key)
	}
	b.mu.Unlock()

	for _, buf := range pending {
		b.send(ctx, buf)
	}
	done := make(chan struct{})
	go func() {
		b.flushes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pushTracker records whether delivery fell back to a push.
type pushTracker struct {
	channel.Notifier
	pushed *bool
}

func (p *pushTracker) Push(ctx context.Context, to, text string) error {
	*p.pushed = true
	return p.Notifier.Push(ctx, to, text)
}
