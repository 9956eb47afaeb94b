package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxAttempts bounds the suffix probe.
const DefaultMaxAttempts = 50

// SplitName splits at the last dot. A leading dot or no dot keeps the whole name as base.
func SplitName(name string) (base, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}

func candidateName(desired string, n int) string {
	if n == 0 {
		return desired
	}
	base, ext := SplitName(desired)
	return base + "_" + strconv.Itoa(n) + ext
}

// Allocator finds free file names in a folder.
type Allocator struct {
	MaxAttempts int
}

func NewAllocator(maxAttempts int) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{MaxAttempts: maxAttempts}
}

// Allocate returns desired when free, else the first free base_N.ext.
func (a *Allocator) Allocate(ctx context.Context, b Backend, folderID, desired string) (string, error) {
	name, _, err := a.probe(ctx, b, folderID, desired, 0)
	return name, err
}

func (a *Allocator) probe(ctx context.Context, b Backend, folderID, desired string, from int) (string, int, error) {
	for n := from; n < a.MaxAttempts; n++ {
		name := candidateName(desired, n)
		_, taken, err := b.FindChild(ctx, folderID, name, false)
		if err != nil {
			return "", n, err
		}
		if !taken {
			return name, n, nil
		}
	}
	return "", a.MaxAttempts, fmt.Errorf("%w: %s", ErrNameExhausted, desired)
}

// Store allocates a name and writes content under it. A create that loses a race on the
// name continues probing from the next suffix.
func (a *Allocator) Store(ctx context.Context, b Backend, folderID, desired string, content Content) (Item, error) {
	from := 0
	for from < a.MaxAttempts {
		name, n, err := a.probe(ctx, b, folderID, desired, from)
		if err != nil {
			return Item{}, err
		}
		item, err := b.CreateFile(ctx, folderID, name, content)
		if err == nil {
			if item.Name == "" {
				item.Name = name
			}
			return item, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return Item{}, err
		}
		from = n + 1
	}
	return Item{}, fmt.Errorf("%w: %s", ErrNameExhausted, desired)
}
