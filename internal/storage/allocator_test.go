package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitName(t *testing.T) {
	tests := []struct {
		name, base, ext string
	}{
		{"photo.jpg", "photo", ".jpg"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"report", "report", ""},
		{".env", ".env", ""},
		{"trailing.", "trailing", "."},
	}
	for _, tt := range tests {
		base, ext := SplitName(tt.name)
		assert.Equal(t, tt.base, base, tt.name)
		assert.Equal(t, tt.ext, ext, tt.name)
	}
}

func TestAllocateSkipsTakenNames(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend(KindGoogle)
	b.seed("f", "photo.jpg", false)
	b.seed("f", "photo_1.jpg", false)
	b.seed("f", "report", false)

	a := NewAllocator(0)
	got, err := a.Allocate(ctx, b, "f", "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "photo_2.jpg", got)

	got, err = a.Allocate(ctx, b, "f", "report")
	require.NoError(t, err)
	assert.Equal(t, "report_1", got)

	got, err = a.Allocate(ctx, b, "f", "fresh.pdf")
	require.NoError(t, err)
	assert.Equal(t, "fresh.pdf", got)
}

func TestAllocateLeadingDot(t *testing.T) {
	b := newMemBackend(KindGoogle)
	b.seed("f", ".env", false)

	got, err := NewAllocator(0).Allocate(context.Background(), b, "f", ".env")
	require.NoError(t, err)
	assert.Equal(t, ".env_1", got)
}

func TestAllocateExhausted(t *testing.T) {
	b := newMemBackend(KindGoogle)
	b.seed("f", "a.txt", false)
	b.seed("f", "a_1.txt", false)

	_, err := NewAllocator(2).Allocate(context.Background(), b, "f", "a.txt")
	assert.ErrorIs(t, err, ErrNameExhausted)
}

func TestStoreReprobesAfterConflict(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend(KindOneDrive)
	b.seed("f", "photo.jpg", false)
	b.raceNames["photo_1.jpg"] = true

	item, err := NewAllocator(0).Store(ctx, b, "f", "photo.jpg", BytesContent{Data: "img"})
	require.NoError(t, err)
	assert.Equal(t, "photo_2.jpg", item.Name)
	assert.Equal(t, "img", b.dataOf(item.ID))
}

func TestStorePropagatesOtherErrors(t *testing.T) {
	b := newMemBackend(KindGoogle)
	boom := errors.New("quota exceeded")
	b.createFileErr = boom

	_, err := NewAllocator(0).Store(context.Background(), b, "f", "a.txt", BytesContent{Data: "x"})
	assert.ErrorIs(t, err, boom)
}
