// Package channel defines the chat-platform boundary: normalized webhook events and the
// ports the archival pipeline uses to talk back to the platform.
package channel

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// ErrInvalidSignature is returned by an EventParser when the webhook signature does not verify.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// EventParser verifies and decodes a webhook request.
type EventParser interface {
	ParseRequest(r *http.Request) ([]Event, error)
}

// Notifier sends text back to the platform. Reply consumes a single-use reply handle;
// Push addresses a conversation key directly.
type Notifier interface {
	Reply(ctx context.Context, replyHandle, text string) error
	Push(ctx context.Context, to, text string) error
}

// ContentFetcher streams the content of a media message.
type ContentFetcher interface {
	FetchContent(ctx context.Context, messageID string) (io.ReadCloser, error)
}

// Directory looks up display names.
type Directory interface {
	UserDisplayName(ctx context.Context, userID string) (string, error)
	GroupName(ctx context.Context, groupID string) (string, error)
}
