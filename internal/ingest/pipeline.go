package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/winson8942-oss/line-drive-bot/internal/access"
	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/channel/adapters/adapterutil"
	"github.com/winson8942-oss/line-drive-bot/internal/media"
	"github.com/winson8942-oss/line-drive-bot/internal/reply"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
)

const (
	DefaultConcurrency = 8
	DefaultDedupSize   = 1024
)

// Pipeline is the ingestion state machine.
type Pipeline struct {
	gate      Authorizer
	fetcher   channel.ContentFetcher
	directory channel.Directory
	notifier  channel.Notifier
	stager    Stager
	uploader  Uploader
	batcher   Enqueuer
	catalog   *reply.Catalog
	observer  EventObserver
	opts      Options
	seen      *lru.Cache[string, struct{}]
	logger    *slog.Logger
}

func NewPipeline(log *slog.Logger, deps Deps, opts Options) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Gate == nil || deps.Fetcher == nil || deps.Stager == nil || deps.Uploader == nil || deps.Batcher == nil {
		return nil, fmt.Errorf("ingest pipeline: gate, fetcher, stager, uploader and batcher are required")
	}
	if deps.Catalog == nil {
		deps.Catalog = reply.DefaultCatalog()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.DedupSize <= 0 {
		opts.DedupSize = DefaultDedupSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Root = strings.TrimSpace(opts.Root)
	seen, err := lru.New[string, struct{}](opts.DedupSize)
	if err != nil {
		return nil, fmt.Errorf("ingest pipeline: dedup cache: %w", err)
	}
	return &Pipeline{
		gate:      deps.Gate,
		fetcher:   deps.Fetcher,
		directory: deps.Directory,
		notifier:  deps.Notifier,
		stager:    deps.Stager,
		uploader:  deps.Uploader,
		batcher:   deps.Batcher,
		catalog:   deps.Catalog,
		observer:  deps.Observer,
		opts:      opts,
		seen:      seen,
		logger:    log.With(slog.String("service", "ingest")),
	}, nil
}

// HandleBatch processes events concurrently and returns once every event finished.
// Results are in event order.
func (p *Pipeline) HandleBatch(ctx context.Context, events []channel.Event) []Result {
	results := make([]Result, len(events))
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, ev := range events {
		g.Go(func() error {
			results[i] = p.Handle(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Handle runs one event to a terminal state.
func (p *Pipeline) Handle(ctx context.Context, ev channel.Event) Result {
	res := p.handle(ctx, ev)
	res.EventID = ev.ID
	if p.observer != nil {
		p.observer.ObserveEvent(string(res.State))
	}
	if res.Err != nil && !errors.Is(res.Err, ErrDuplicate) {
		p.logger.Warn("event failed",
			slog.String("event_id", ev.ID),
			slog.String("state", string(res.State)),
			slog.Any("error", res.Err))
	}
	return res
}

func (p *Pipeline) handle(ctx context.Context, ev channel.Event) Result {
	if ev.ID != "" {
		if seen, _ := p.seen.ContainsOrAdd(ev.ID, struct{}{}); seen {
			p.logger.Info("duplicate event skipped", slog.String("event_id", ev.ID), slog.Bool("redelivery", ev.Redelivery))
			return Result{State: StateIgnored, Err: ErrDuplicate}
		}
	}
	if ev.Type != channel.EventMessage {
		return Result{State: StateIgnored}
	}
	if ev.IsText() {
		p.logger.Debug("text received",
			slog.String("event_id", ev.ID),
			slog.String("text", adapterutil.SummarizeText(ev.Message.Text)))
	}

	out := p.gate.Authorize(ctx, ev)
	switch out.Decision {
	case access.Denied:
		return Result{State: StateDenied, Decision: out.Decision, Err: out.Err}
	case access.Enrolled, access.RequiresEnrollment:
		return Result{State: StateEnrollmentHandled, Decision: out.Decision, Err: out.Err}
	case access.AdminHandled:
		return Result{State: StateAdminHandled, Decision: out.Decision, Err: out.Err}
	}
	if !ev.Message.Kind.IsMedia() {
		return Result{State: StateIgnored, Decision: out.Decision}
	}
	res := p.archive(ctx, ev)
	res.Decision = out.Decision
	return res
}

// archive runs MediaAccepted through Batched. The staged file is removed exactly once on
// every path.
func (p *Pipeline) archive(ctx context.Context, ev channel.Event) Result {
	res := Result{State: StateMediaAccepted}
	name := fileName(ev.Message)
	key := ev.Source.ConversationKey()
	handle := ev.ReplyHandle
	log := p.logger.With(slog.String("event_id", ev.ID), slog.String("conversation", key))

	if p.opts.ProcessingNotice {
		p.notify(ctx, ev, handle, p.catalog.Processing)
		handle = ""
	}

	staged, err := p.download(ctx, ev.Message.ID)
	if err != nil {
		p.notify(ctx, ev, handle, reply.Format(p.catalog.DownloadFailed, name))
		res.State = StateFailed
		res.Err = err
		return res
	}
	defer p.cleanup(log, staged)
	res.State = StateDownloaded

	now := p.opts.Now()
	segments := []string{p.opts.Root, p.tenantFolder(ctx, ev.Source)}
	if p.opts.MonthBuckets {
		segments = append(segments, monthBucket(now, p.opts.Location))
	}
	res.Folder = storage.NewFolderPath(segments...)
	res.Name = storedName(now, p.opts.Location, name)
	res.State = StateFolderResolved

	results, err := p.uploader.Upload(ctx, res.Folder, res.Name, staged)
	res.Uploads = results
	if err != nil {
		p.notify(ctx, ev, handle, p.catalog.UploadFailure(p.catalog.StorageLabel, name))
		res.State = StateFailed
		res.Err = err
		return res
	}
	res.State = StateUploaded

	succeeded := storage.Succeeded(results)
	// The reply handle is kept for the batched acknowledgment unless nothing will be batched.
	noticeHandle := ""
	if len(succeeded) == 0 {
		noticeHandle = handle
	}
	var errs []error
	for _, r := range storage.Failed(results) {
		errs = append(errs, fmt.Errorf("%s: %w", r.Backend, r.Err))
		p.notify(ctx, ev, noticeHandle, p.catalog.UploadFailure(r.Backend.DisplayName(), name))
		noticeHandle = ""
	}
	for _, r := range succeeded {
		log.Info("archived",
			slog.String("backend", string(r.Backend)),
			slog.String("folder", res.Folder.String()),
			slog.String("name", r.Name),
			slog.Duration("elapsed", r.Duration))
	}

	p.cleanup(log, staged)
	res.State = StateCleaned

	if len(succeeded) == 0 {
		res.State = StateFailed
		res.Err = errors.Join(errs...)
		return res
	}
	p.batcher.Enqueue(key, handle, ev.ReceivedAt, reply.Item{Name: name, Kind: ev.Message.Kind})
	res.State = StateBatched
	res.Err = errors.Join(errs...)
	return res
}

func (p *Pipeline) download(ctx context.Context, messageID string) (*media.Staged, error) {
	body, err := p.fetcher.FetchContent(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrDownload, messageID, err)
	}
	defer body.Close()
	staged, err := p.stager.Stage(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("%w: stage %s: %w", ErrDownload, messageID, err)
	}
	return staged, nil
}

func (p *Pipeline) cleanup(log *slog.Logger, staged *media.Staged) {
	if err := staged.Cleanup(); err != nil {
		log.Warn("staged file cleanup failed", slog.String("path", staged.Path), slog.Any("error", err))
	}
}

// notify sends a direct message, replying when handle is set and pushing otherwise.
func (p *Pipeline) notify(ctx context.Context, ev channel.Event, handle, text string) {
	if p.notifier == nil || text == "" {
		return
	}
	if err := channel.Deliver(ctx, p.notifier, handle, ev.Source.ConversationKey(), text); err != nil {
		p.logger.Warn("notice failed", slog.String("event_id", ev.ID), slog.Any("error", err))
	}
}
