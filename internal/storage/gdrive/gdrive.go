// Package gdrive implements storage.Backend on the Google Drive v3 API.
package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/winson8942-oss/line-drive-bot/internal/config"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	itemFields     = "id, name, mimeType, webViewLink"
)

// Backend talks to a single Drive account.
type Backend struct {
	svc    *drive.Service
	logger *slog.Logger
}

// New wraps an existing Drive service.
func New(log *slog.Logger, svc *drive.Service) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{svc: svc, logger: log.With(slog.String("backend", string(storage.KindGoogle)))}
}

// NewService builds a Drive client from an OAuth client secret and a stored user token.
// Credential errors wrap storage.ErrAuthInit.
func NewService(ctx context.Context, cfg config.GoogleConfig, opts ...option.ClientOption) (*drive.Service, error) {
	secret := strings.TrimSpace(cfg.ClientSecretJSON)
	rawToken := strings.TrimSpace(cfg.TokenJSON)
	if secret == "" || rawToken == "" {
		return nil, fmt.Errorf("%w: google client secret and token are required", storage.ErrAuthInit)
	}
	oauthCfg, err := google.ConfigFromJSON([]byte(secret), drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse google client secret: %w", storage.ErrAuthInit, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(rawToken), &tok); err != nil {
		return nil, fmt.Errorf("%w: parse google token: %w", storage.ErrAuthInit, err)
	}
	ts := oauthCfg.TokenSource(ctx, &tok)
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create drive service: %w", storage.ErrAuthInit, err)
	}
	return svc, nil
}

// Factory returns a storage.Factory that builds the backend from cfg.
func Factory(log *slog.Logger, cfg config.GoogleConfig) storage.Factory {
	return func(ctx context.Context) (storage.Backend, error) {
		svc, err := NewService(context.WithoutCancel(ctx), cfg)
		if err != nil {
			return nil, err
		}
		return New(log, svc), nil
	}
}

func (b *Backend) Kind() storage.Kind { return storage.KindGoogle }

func (b *Backend) RootID() string { return "root" }

// EscapeQuery escapes a value for a single-quoted Drive query literal.
func EscapeQuery(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}

func childQuery(parentID, name string, folder bool) string {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", EscapeQuery(name), EscapeQuery(parentID))
	if folder {
		q += " and mimeType = '" + folderMimeType + "'"
	}
	return q
}

func (b *Backend) FindChild(ctx context.Context, parentID, name string, folder bool) (storage.Item, bool, error) {
	list, err := b.svc.Files.List().
		Q(childQuery(parentID, name, folder)).
		Fields(googleapi.Field("files(" + itemFields + ")")).
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return storage.Item{}, false, classify("list children", err)
	}
	if len(list.Files) == 0 {
		return storage.Item{}, false, nil
	}
	return toItem(list.Files[0]), true, nil
}

func (b *Backend) CreateFolder(ctx context.Context, parentID, name string) (storage.Item, error) {
	f, err := b.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Fields(itemFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return storage.Item{}, classify("create folder", err)
	}
	return toItem(f), nil
}

// CreateFile streams content with a media upload. Drive allows duplicate names, so
// uniqueness relies on the caller probing first.
func (b *Backend) CreateFile(ctx context.Context, parentID, name string, content storage.Content) (storage.Item, error) {
	r, err := content.Open()
	if err != nil {
		return storage.Item{}, fmt.Errorf("open staged content: %w", err)
	}
	defer r.Close()
	f, err := b.svc.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{parentID},
	}).Media(r, googleapi.ContentType(content.MimeType())).
		Fields(itemFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return storage.Item{}, classify("upload file", err)
	}
	b.logger.Debug("file created", slog.String("name", name), slog.String("id", f.Id))
	return toItem(f), nil
}

func toItem(f *drive.File) storage.Item {
	return storage.Item{
		ID:       f.Id,
		Name:     f.Name,
		IsFolder: f.MimeType == folderMimeType,
		WebURL:   f.WebViewLink,
	}
}

func classify(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %s: %w", storage.ErrAuthInit, op, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s: %w", storage.ErrAuthInit, op, err)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s: %w", storage.ErrAlreadyExists, op, err)
		}
	}
	return fmt.Errorf("drive %s: %w", op, err)
}
