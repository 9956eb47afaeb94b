// Package storage defines the cloud-storage backend abstraction and the backend-neutral
// archival steps built on it: folder resolution, collision-free naming and upload routing.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrAlreadyExists is returned by CreateFile or CreateFolder when the name is taken.
	ErrAlreadyExists = errors.New("item already exists")
	// ErrAuthInit marks credential or token failures. The backend is re-initialised lazily.
	ErrAuthInit = errors.New("backend auth init failed")
	// ErrFolderResolution wraps failures while resolving a folder path.
	ErrFolderResolution = errors.New("folder resolution failed")
	// ErrUpload wraps failures while writing file content.
	ErrUpload = errors.New("upload failed")
	// ErrNameExhausted is returned when no free name was found within the attempt limit.
	ErrNameExhausted = errors.New("no free file name")
	// ErrNoBackends is returned by the router when no target is configured.
	ErrNoBackends = errors.New("no storage backends configured")
)

// Kind identifies a backend implementation.
type Kind string

const (
	KindGoogle   Kind = "google"
	KindOneDrive Kind = "onedrive"
)

// DisplayName is the user-facing backend name.
func (k Kind) DisplayName() string {
	switch k {
	case KindGoogle:
		return "Google Drive"
	case KindOneDrive:
		return "OneDrive"
	default:
		return string(k)
	}
}

// Mode selects which backends receive uploads.
type Mode string

const (
	ModeGoogle   Mode = "google"
	ModeOneDrive Mode = "onedrive"
	ModeBoth     Mode = "both"
)

// ParseMode parses a mode name case-insensitively.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeGoogle:
		return ModeGoogle, nil
	case ModeOneDrive:
		return ModeOneDrive, nil
	case ModeBoth:
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("unknown drive mode %q", raw)
	}
}

// Kinds lists the backends enabled by m in upload order.
func (m Mode) Kinds() []Kind {
	switch m {
	case ModeGoogle:
		return []Kind{KindGoogle}
	case ModeOneDrive:
		return []Kind{KindOneDrive}
	case ModeBoth:
		return []Kind{KindGoogle, KindOneDrive}
	default:
		return nil
	}
}

// Uses reports whether m uploads to k.
func (m Mode) Uses(k Kind) bool {
	for _, kind := range m.Kinds() {
		if kind == k {
			return true
		}
	}
	return false
}

// Item is a file or folder handle on a backend.
type Item struct {
	ID       string
	Name     string
	IsFolder bool
	WebURL   string
}

// ContentReader is an open stream over staged content. Chunked uploads read sections
// through ReadAt.
type ContentReader interface {
	io.Reader
	io.ReaderAt
	io.Closer
}

// Content is staged file content. Every backend opens its own reader.
type Content interface {
	Open() (ContentReader, error)
	Size() int64
	MimeType() string
}

// Backend is the set of primitives a cloud drive must offer. Each call is assumed atomic.
type Backend interface {
	Kind() Kind
	// RootID is the id of the drive root under which folder paths are resolved.
	RootID() string
	// FindChild looks up a direct child by exact name. With folder set only folders match;
	// otherwise any item with that name is reported.
	FindChild(ctx context.Context, parentID, name string, folder bool) (Item, bool, error)
	CreateFolder(ctx context.Context, parentID, name string) (Item, error)
	// CreateFile writes a new file. Backends that enforce unique names return ErrAlreadyExists.
	CreateFile(ctx context.Context, parentID, name string, content Content) (Item, error)
}

type nopReaderAt struct {
	*strings.Reader
}

func (nopReaderAt) Close() error { return nil }

// BytesContent is in-memory Content.
type BytesContent struct {
	Data string
	Mime string
}

func (c BytesContent) Open() (ContentReader, error) {
	return nopReaderAt{strings.NewReader(c.Data)}, nil
}

func (c BytesContent) Size() int64 { return int64(len(c.Data)) }

func (c BytesContent) MimeType() string {
	if c.Mime == "" {
		return "application/octet-stream"
	}
	return c.Mime
}
