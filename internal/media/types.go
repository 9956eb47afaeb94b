package media

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/winson8942-oss/line-drive-bot/internal/storage"
)

var (
	// ErrTooLarge is returned when the payload exceeds the staging limit.
	ErrTooLarge = errors.New("media exceeds size limit")
	// ErrEmpty is returned for a zero-byte payload.
	ErrEmpty = errors.New("media payload is empty")
)

// Staged is downloaded content held in a local file until every upload finished.
// It implements storage.Content.
type Staged struct {
	Path        string
	ContentHash string
	Bytes       int64
	Mime        string
	Extension   string

	once       sync.Once
	cleanupErr error
	cleanups   int
}

var _ storage.Content = (*Staged)(nil)

func (s *Staged) Open() (storage.ContentReader, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	return f, nil
}

func (s *Staged) Size() int64 { return s.Bytes }

func (s *Staged) MimeType() string { return s.Mime }

// Cleanup removes the staged file. Only the first call has an effect.
func (s *Staged) Cleanup() error {
	s.once.Do(func() {
		s.cleanups++
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.cleanupErr = err
		}
	})
	return s.cleanupErr
}

// Cleanups reports how many times the file was actually removed.
func (s *Staged) Cleanups() int {
	return s.cleanups
}
