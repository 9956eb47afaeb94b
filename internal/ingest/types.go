// Package ingest runs each inbound webhook event through access control, staging, upload
// and acknowledgment batching.
package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/winson8942-oss/line-drive-bot/internal/access"
	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/media"
	"github.com/winson8942-oss/line-drive-bot/internal/reply"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
)

var (
	// ErrDownload wraps failures fetching or staging message content.
	ErrDownload = errors.New("media download failed")
	// ErrDuplicate marks a redelivered event that was already handled.
	ErrDuplicate = errors.New("duplicate event")
)

// State is a pipeline stage. Handle reports the last state an event reached.
type State string

const (
	StateReceived          State = "received"
	StateAccessChecked     State = "access_checked"
	StateDenied            State = "denied"
	StateEnrollmentHandled State = "enrollment_handled"
	StateAdminHandled      State = "admin_handled"
	StateIgnored           State = "ignored"
	StateMediaAccepted     State = "media_accepted"
	StateDownloaded        State = "downloaded"
	StateFolderResolved    State = "folder_resolved"
	StateUploaded          State = "uploaded"
	StateCleaned           State = "cleaned"
	StateBatched           State = "batched"
	StateFailed            State = "failed"
)

// Result describes how one event was handled.
type Result struct {
	EventID  string
	State    State
	Decision access.Decision
	Folder   storage.FolderPath
	Name     string
	Uploads  []storage.Result
	Err      error
}

// Authorizer is the access gate.
type Authorizer interface {
	Authorize(ctx context.Context, ev channel.Event) access.Outcome
}

// Uploader writes staged content to every configured backend.
type Uploader interface {
	Upload(ctx context.Context, path storage.FolderPath, desired string, content storage.Content) ([]storage.Result, error)
}

// Enqueuer buffers acknowledgments per conversation.
type Enqueuer interface {
	Enqueue(key, replyHandle string, issuedAt time.Time, item reply.Item)
}

// Stager spools downloaded content to local storage.
type Stager interface {
	Stage(ctx context.Context, r io.Reader) (*media.Staged, error)
}

// EventObserver counts terminal states.
type EventObserver interface {
	ObserveEvent(state string)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Gate      Authorizer
	Fetcher   channel.ContentFetcher
	Directory channel.Directory
	Notifier  channel.Notifier
	Stager    Stager
	Uploader  Uploader
	Batcher   Enqueuer
	Catalog   *reply.Catalog
	Observer  EventObserver
}

// Options configures a Pipeline.
type Options struct {
	// Root is the archive root folder name.
	Root         string
	Location     *time.Location
	MonthBuckets bool
	// ProcessingNotice replies immediately when media is accepted; the reply handle is then
	// spent and the batched acknowledgment is pushed.
	ProcessingNotice bool
	Concurrency      int
	DedupSize        int
	Now              func() time.Time
}
