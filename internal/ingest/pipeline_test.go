package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winson8942-oss/line-drive-bot/internal/access"
	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/media"
	"github.com/winson8942-oss/line-drive-bot/internal/reply"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
)

var taipei = time.FixedZone("CST", 8*3600)

type fakeGate struct {
	decision access.Decision
}

func (g fakeGate) Authorize(context.Context, channel.Event) access.Outcome {
	return access.Outcome{Decision: g.decision}
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeFetcher) FetchContent(_ context.Context, id string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("content of " + id)), nil
}

type fakeDirectory struct {
	users  map[string]string
	groups map[string]string
}

func (d fakeDirectory) UserDisplayName(_ context.Context, id string) (string, error) {
	if name, ok := d.users[id]; ok {
		return name, nil
	}
	return "", errors.New("profile not found")
}

func (d fakeDirectory) GroupName(_ context.Context, id string) (string, error) {
	if name, ok := d.groups[id]; ok {
		return name, nil
	}
	return "", errors.New("group not found")
}

type sent struct {
	handle string
	to     string
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *fakeNotifier) Reply(_ context.Context, handle, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{handle: handle, text: text})
	return nil
}

func (n *fakeNotifier) Push(_ context.Context, to, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{to: to, text: text})
	return nil
}

type upload struct {
	path storage.FolderPath
	name string
	body string
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	staged  []*media.Staged
	failing map[storage.Kind]error
	kinds   []storage.Kind
	err     error
}

func (u *fakeUploader) Upload(_ context.Context, path storage.FolderPath, desired string, content storage.Content) ([]storage.Result, error) {
	if u.err != nil {
		return nil, u.err
	}
	r, err := content.Open()
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.uploads = append(u.uploads, upload{path: path, name: desired, body: string(body)})
	if s, ok := content.(*media.Staged); ok {
		u.staged = append(u.staged, s)
	}
	u.mu.Unlock()

	kinds := u.kinds
	if len(kinds) == 0 {
		kinds = []storage.Kind{storage.KindGoogle}
	}
	results := make([]storage.Result, 0, len(kinds))
	for _, k := range kinds {
		res := storage.Result{Backend: k, Name: desired}
		if err := u.failing[k]; err != nil {
			res.Err = err
		} else {
			res.Item = storage.Item{ID: string(k) + "-id", Name: desired}
		}
		results = append(results, res)
	}
	return results, nil
}

type enqueued struct {
	key    string
	handle string
	item   reply.Item
}

type fakeBatcher struct {
	mu    sync.Mutex
	items []enqueued
}

func (b *fakeBatcher) Enqueue(key, handle string, _ time.Time, item reply.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, enqueued{key: key, handle: handle, item: item})
}

type fixture struct {
	pipeline *Pipeline
	fetcher  *fakeFetcher
	uploader *fakeUploader
	batcher  *fakeBatcher
	notifier *fakeNotifier
}

func newFixture(t *testing.T, decision access.Decision, opts Options) *fixture {
	t.Helper()
	stager, err := media.NewStager(nil, t.TempDir(), 0)
	require.NoError(t, err)
	f := &fixture{
		fetcher:  &fakeFetcher{},
		uploader: &fakeUploader{failing: map[storage.Kind]error{}},
		batcher:  &fakeBatcher{},
		notifier: &fakeNotifier{},
	}
	if opts.Root == "" {
		opts.Root = "LINE-bot"
	}
	if opts.Location == nil {
		opts.Location = taipei
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	}
	f.pipeline, err = NewPipeline(nil, Deps{
		Gate:      fakeGate{decision: decision},
		Fetcher:   f.fetcher,
		Directory: fakeDirectory{users: map[string]string{"U1": "Alice"}, groups: map[string]string{"C1234ABCD": "Family"}},
		Notifier:  f.notifier,
		Stager:    stager,
		Uploader:  f.uploader,
		Batcher:   f.batcher,
	}, opts)
	require.NoError(t, err)
	return f
}

func imageEvent(id string) channel.Event {
	return channel.Event{
		ID:          id,
		Type:        channel.EventMessage,
		Message:     channel.Message{Kind: channel.MessageImage, ID: "m-" + id},
		Source:      channel.Source{Kind: channel.SourceUser, UserID: "U1"},
		ReplyHandle: "tok-" + id,
	}
}

func TestArchivesMedia(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{})

	res := f.pipeline.Handle(context.Background(), imageEvent("e1"))
	require.NoError(t, res.Err)
	assert.Equal(t, StateBatched, res.State)
	assert.Equal(t, storage.FolderPath{"LINE-bot", "User-Alice"}, res.Folder)
	assert.Equal(t, "2026-01-02_11-04-05_m-e1.jpg", res.Name)

	require.Len(t, f.uploader.uploads, 1)
	assert.Equal(t, "content of m-e1", f.uploader.uploads[0].body)
	assert.Equal(t, []enqueued{{key: "U1", handle: "tok-e1", item: reply.Item{Name: "m-e1.jpg", Kind: channel.MessageImage}}}, f.batcher.items)
	assert.Empty(t, f.notifier.sent)

	staged := f.uploader.staged[0]
	assert.Equal(t, 1, staged.Cleanups())
	_, err := os.Stat(staged.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestPartialDualSuccess(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{})
	f.uploader.kinds = []storage.Kind{storage.KindGoogle, storage.KindOneDrive}
	graphErr := errors.New("graph 503")
	f.uploader.failing[storage.KindOneDrive] = graphErr

	ev := imageEvent("e1")
	ev.Message.FileName = "a.jpg"
	res := f.pipeline.Handle(context.Background(), ev)

	assert.Equal(t, StateBatched, res.State)
	assert.ErrorIs(t, res.Err, graphErr)
	require.Len(t, res.Uploads, 2)
	assert.NoError(t, res.Uploads[0].Err)
	assert.Equal(t, storage.KindGoogle, res.Uploads[0].Backend)

	require.Len(t, f.batcher.items, 1)
	assert.Equal(t, "tok-e1", f.batcher.items[0].handle)
	assert.Equal(t, "a.jpg", f.batcher.items[0].item.Name)
	assert.Equal(t, []sent{{to: "U1", text: "❌ OneDrive 備份失敗：a.jpg"}}, f.notifier.sent)
	assert.Equal(t, 1, f.uploader.staged[0].Cleanups())
}

func TestAllBackendsFail(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{})
	f.uploader.failing[storage.KindGoogle] = storage.ErrUpload

	res := f.pipeline.Handle(context.Background(), imageEvent("e1"))
	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, storage.ErrUpload)
	assert.Empty(t, f.batcher.items)
	assert.Equal(t, []sent{{handle: "tok-e1", text: "❌ Google Drive 備份失敗：m-e1.jpg"}}, f.notifier.sent)
	assert.Equal(t, 1, f.uploader.staged[0].Cleanups())
}

func TestNoBackendsConfigured(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{})
	f.uploader.err = storage.ErrNoBackends

	res := f.pipeline.Handle(context.Background(), imageEvent("e1"))
	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, storage.ErrNoBackends)
	assert.Equal(t, []sent{{handle: "tok-e1", text: "❌ 雲端 備份失敗：m-e1.jpg"}}, f.notifier.sent)
}

func TestDownloadFailure(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{})
	f.fetcher.err = errors.New("content expired")

	res := f.pipeline.Handle(context.Background(), imageEvent("e1"))
	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrDownload)
	assert.Empty(t, f.uploader.uploads)
	assert.Equal(t, []sent{{handle: "tok-e1", text: "❌ 檔案下載失敗：m-e1.jpg"}}, f.notifier.sent)
}

func TestGateShortCircuits(t *testing.T) {
	tests := []struct {
		decision access.Decision
		want     State
	}{
		{access.Denied, StateDenied},
		{access.Enrolled, StateEnrollmentHandled},
		{access.RequiresEnrollment, StateEnrollmentHandled},
		{access.AdminHandled, StateAdminHandled},
	}
	for _, tt := range tests {
		t.Run(string(tt.decision), func(t *testing.T) {
			f := newFixture(t, tt.decision, Options{})
			res := f.pipeline.Handle(context.Background(), imageEvent("e1"))
			assert.Equal(t, tt.want, res.State)
			assert.Equal(t, tt.decision, res.Decision)
			assert.Empty(t, f.fetcher.calls)
			assert.Empty(t, f.batcher.items)
		})
	}
}

func TestNonMediaIgnored(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{})
	ev := imageEvent("e1")
	ev.Message = channel.Message{Kind: channel.MessageText, Text: "hi"}
	assert.Equal(t, StateIgnored, f.pipeline.Handle(context.Background(), ev).State)

	ev = imageEvent("e2")
	ev.Type = channel.EventFollow
	assert.Equal(t, StateIgnored, f.pipeline.Handle(context.Background(), ev).State)
	assert.Empty(t, f.fetcher.calls)
}

func TestRedeliveryIsSkipped(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{})
	ctx := context.Background()

	first := f.pipeline.Handle(ctx, imageEvent("e1"))
	require.NoError(t, first.Err)
	ev := imageEvent("e1")
	ev.Redelivery = true
	second := f.pipeline.Handle(ctx, ev)

	assert.ErrorIs(t, second.Err, ErrDuplicate)
	assert.Equal(t, StateIgnored, second.State)
	assert.Len(t, f.fetcher.calls, 1)
	assert.Len(t, f.batcher.items, 1)
}

func TestProcessingNoticeSpendsHandle(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{ProcessingNotice: true})

	res := f.pipeline.Handle(context.Background(), imageEvent("e1"))
	require.NoError(t, res.Err)
	assert.Equal(t, []sent{{handle: "tok-e1", text: "⏳ 收到檔案，備份中…"}}, f.notifier.sent)
	require.Len(t, f.batcher.items, 1)
	assert.Empty(t, f.batcher.items[0].handle)
}

func TestMonthBuckets(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{
		MonthBuckets: true,
		Now:          func() time.Time { return time.Date(2026, 1, 31, 20, 0, 0, 0, time.UTC) },
	})

	res := f.pipeline.Handle(context.Background(), imageEvent("e1"))
	require.NoError(t, res.Err)
	assert.Equal(t, storage.FolderPath{"LINE-bot", "User-Alice", "2026-02"}, res.Folder)
	assert.Equal(t, "2026-02-01_04-00-00_m-e1.jpg", res.Name)
}

func TestTenantFolder(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{})
	ctx := context.Background()
	tests := []struct {
		name string
		src  channel.Source
		want string
	}{
		{"named group", channel.Source{Kind: channel.SourceGroup, GroupID: "C1234ABCD"}, "Family"},
		{"unnamed group", channel.Source{Kind: channel.SourceGroup, GroupID: "C999WXYZ"}, "Group-WXYZ"},
		{"room", channel.Source{Kind: channel.SourceRoom, RoomID: "R55556789"}, "Room-6789"},
		{"user", channel.Source{Kind: channel.SourceUser, UserID: "U1"}, "User-Alice"},
		{"unknown user", channel.Source{Kind: channel.SourceUser, UserID: "U2"}, "未知聊天室"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.pipeline.tenantFolder(ctx, tt.src))
		})
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "clip.mov", fileName(channel.Message{Kind: channel.MessageVideo, ID: "1", FileName: " clip.mov "}))
	assert.Equal(t, "1.mp4", fileName(channel.Message{Kind: channel.MessageVideo, ID: "1"}))
	assert.Equal(t, "2.m4a", fileName(channel.Message{Kind: channel.MessageAudio, ID: "2"}))
	assert.Equal(t, "3.dat", fileName(channel.Message{Kind: channel.MessageFile, ID: "3"}))
}

func TestStoredNameSanitizesReservedCharacters(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-05-01_10-30-00_Meeting 10_30.pdf", storedName(at, time.UTC, "Meeting 10:30.pdf"))
	assert.Equal(t, "2024-05-01_10-30-00_a_b_.jpg", storedName(at, time.UTC, `a/b?.jpg`))
}

func TestHandleBatchKeepsEventOrder(t *testing.T) {
	f := newFixture(t, access.Allowed, Options{Concurrency: 2})
	events := []channel.Event{imageEvent("e1"), imageEvent("e2"), imageEvent("e3")}
	events[1].Type = channel.EventJoin

	results := f.pipeline.HandleBatch(context.Background(), events)
	require.Len(t, results, 3)
	assert.Equal(t, "e1", results[0].EventID)
	assert.Equal(t, StateBatched, results[0].State)
	assert.Equal(t, StateIgnored, results[1].State)
	assert.Equal(t, StateBatched, results[2].State)
	assert.Len(t, f.batcher.items, 2)
}

func TestNewPipelineRequiresDeps(t *testing.T) {
	_, err := NewPipeline(nil, Deps{}, Options{})
	assert.Error(t, err)
}
