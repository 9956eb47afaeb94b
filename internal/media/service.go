// Package media spools downloaded message content to a local staging area.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxBytes caps a single staged payload.
const DefaultMaxBytes int64 = 300 << 20

// Stager writes payloads to files under a staging directory.
type Stager struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

// NewStager creates dir when needed. An empty dir stages under the OS temp directory.
func NewStager(log *slog.Logger, dir string, maxBytes int64) (*Stager, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "linedrive-staging")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Stager{
		dir:      dir,
		maxBytes: maxBytes,
		logger:   log.With(slog.String("service", "media")),
	}, nil
}

// Dir returns the staging directory.
func (s *Stager) Dir() string { return s.dir }

// Stage copies r into a new staged file. The caller owns the result and must Cleanup it.
func (s *Stager) Stage(ctx context.Context, r io.Reader) (*Staged, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is required")
	}
	path := filepath.Join(s.dir, uuid.NewString())
	hash, written, err := spoolWithLimit(ctx, r, path, s.maxBytes)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("detect mime: %w", err)
	}
	staged := &Staged{
		Path:        path,
		ContentHash: hash,
		Bytes:       written,
		Mime:        mime.String(),
		Extension:   mime.Extension(),
	}
	s.logger.Debug("staged",
		slog.String("path", path),
		slog.Int64("bytes", written),
		slog.String("mime", staged.Mime))
	return staged, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func spoolWithLimit(ctx context.Context, reader io.Reader, path string, maxBytes int64) (string, int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create staged file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	limited := &io.LimitedReader{R: ctxReader{ctx: ctx, r: reader}, N: maxBytes + 1}
	written, err := io.Copy(io.MultiWriter(f, hasher), limited)
	if err != nil {
		return "", 0, fmt.Errorf("copy to staged file: %w", err)
	}
	if written > maxBytes {
		return "", 0, fmt.Errorf("%w: max %d bytes", ErrTooLarge, maxBytes)
	}
	if written == 0 {
		return "", 0, ErrEmpty
	}
	if err := f.Sync(); err != nil {
		return "", 0, fmt.Errorf("sync staged file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}
