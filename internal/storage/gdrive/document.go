package gdrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/winson8942-oss/line-drive-bot/internal/storage"
	"github.com/winson8942-oss/line-drive-bot/internal/whitelist"
)

// Document stores a single JSON document in the bot's root folder on Drive.
type Document struct {
	backend  *Backend
	lookup   storage.Backend
	resolver *storage.Resolver
	limiter  *rate.Limiter
	root     string
	name     string

	mu     sync.Mutex
	fileID string
	rootID string
}

// NewDocument addresses <root>/<name>. Folder resolution goes through resolver and every
// Drive call waits for limiter, so both can be shared with the upload path.
func NewDocument(b *Backend, resolver *storage.Resolver, limiter *rate.Limiter, root, name string) *Document {
	if resolver == nil {
		resolver = storage.NewResolver(b.logger)
	}
	return &Document{
		backend:  b,
		lookup:   storage.Throttle(b, limiter),
		resolver: resolver,
		limiter:  limiter,
		root:     root,
		name:     name,
	}
}

func (d *Document) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

func (d *Document) locate(ctx context.Context, create bool) (string, error) {
	if d.fileID != "" {
		return d.fileID, nil
	}
	if d.rootID == "" {
		folder, err := d.resolver.Resolve(ctx, d.lookup, storage.NewFolderPath(d.root))
		if err != nil {
			return "", err
		}
		d.rootID = folder.ID
	}
	item, found, err := d.lookup.FindChild(ctx, d.rootID, d.name, false)
	if err != nil {
		return "", err
	}
	if found {
		d.fileID = item.ID
		return d.fileID, nil
	}
	if !create {
		return "", whitelist.ErrDocumentNotFound
	}
	return "", nil
}

// ReadDocument downloads the document. whitelist.ErrDocumentNotFound when it does not exist yet.
func (d *Document) ReadDocument(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.locate(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := d.backend.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, classify("download document", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}

// WriteDocument replaces the document content, creating the file on first write.
func (d *Document) WriteDocument(ctx context.Context, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.locate(ctx, true)
	if err != nil {
		return err
	}
	if err := d.wait(ctx); err != nil {
		return err
	}
	media := googleapi.ContentType("application/json")
	if id == "" {
		f, err := d.backend.svc.Files.Create(&drive.File{
			Name:     d.name,
			Parents:  []string{d.rootID},
			MimeType: "application/json",
		}).Media(bytes.NewReader(data), media).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
		if err != nil {
			return classify("create document", err)
		}
		d.fileID = f.Id
		return nil
	}
	_, err = d.backend.svc.Files.Update(id, &drive.File{}).
		Media(bytes.NewReader(data), media).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return classify("update document", err)
	}
	return nil
}
