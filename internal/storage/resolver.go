package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Resolver maps folder paths onto backend folder ids, creating missing segments.
// Concurrent resolutions of the same prefix on the same backend share one lookup.
type Resolver struct {
	logger *slog.Logger
	group  singleflight.Group
}

func NewResolver(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{logger: log.With(slog.String("service", "folder_resolver"))}
}

// Resolve returns the folder at path, starting from the backend root.
func (r *Resolver) Resolve(ctx context.Context, b Backend, path FolderPath) (Item, error) {
	current := Item{ID: b.RootID(), IsFolder: true}
	for i := range path {
		parent := current
		name := path[i]
		v, err, _ := r.group.Do(path.prefixKey(b.Kind(), i+1), func() (any, error) {
			return r.ensureChild(ctx, b, parent.ID, name)
		})
		if err != nil {
			return Item{}, fmt.Errorf("%w: %s on %s: %w", ErrFolderResolution, path.String(), b.Kind(), err)
		}
		current = v.(Item)
	}
	return current, nil
}

// maxFolderAlternates bounds the name_N fallback used when a file holds a folder's name.
const maxFolderAlternates = 20

func folderAlternate(name string, n int) string {
	if n == 0 {
		return name
	}
	return name + "_" + strconv.Itoa(n)
}

// ensureChild returns the folder called name under parentID, or the first name_N folder
// when a non-folder item already holds the name.
func (r *Resolver) ensureChild(ctx context.Context, b Backend, parentID, name string) (Item, error) {
	for n := 0; n <= maxFolderAlternates; n++ {
		candidate := folderAlternate(name, n)
		item, err := r.ensureNamed(ctx, b, parentID, candidate)
		if !errors.Is(err, errNameHeldByFile) {
			return item, err
		}
		r.logger.Warn("folder name held by a file",
			slog.String("backend", string(b.Kind())),
			slog.String("name", candidate))
	}
	return Item{}, fmt.Errorf("%w: folder %s", ErrNameExhausted, name)
}

var errNameHeldByFile = errors.New("name held by a file")

func (r *Resolver) ensureNamed(ctx context.Context, b Backend, parentID, name string) (Item, error) {
	item, found, err := b.FindChild(ctx, parentID, name, true)
	if err != nil {
		return Item{}, err
	}
	if found {
		return item, nil
	}
	other, taken, err := b.FindChild(ctx, parentID, name, false)
	if err != nil {
		return Item{}, err
	}
	if taken && !other.IsFolder {
		return Item{}, errNameHeldByFile
	}
	created, err := b.CreateFolder(ctx, parentID, name)
	if err == nil {
		r.logger.Info("folder created",
			slog.String("backend", string(b.Kind())),
			slog.String("name", name),
			slog.String("id", created.ID))
		return created, nil
	}
	// Another writer may have created it first.
	item, found, findErr := b.FindChild(ctx, parentID, name, true)
	if findErr == nil && found {
		return item, nil
	}
	return Item{}, errors.Join(err, findErr)
}
