// Package onedrive implements storage.Backend on the Microsoft Graph drive API.
package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/winson8942-oss/line-drive-bot/internal/config"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0/me/drive"
	DefaultTenant  = "common"

	// SimpleUploadLimit is the largest body accepted by a single PUT to /content.
	SimpleUploadLimit = 4 << 20
	// ChunkSize must be a multiple of 320 KiB.
	ChunkSize = 10 * 320 << 10

	conflictFail = "fail"
)

var scopes = []string{"Files.ReadWrite", "User.Read", "offline_access"}

// APIError is a non-success Graph response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("graph: status %d", e.Status)
	}
	return fmt.Sprintf("graph: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Backend addresses one drive through Graph.
type Backend struct {
	client  *http.Client
	upload  *http.Client
	baseURL string
	logger  *slog.Logger
}

// New builds a backend. client must authenticate requests; upload sessions use a plain
// client because their URLs are pre-authorised.
func New(log *slog.Logger, client *http.Client, baseURL string) *Backend {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Backend{
		client:  client,
		upload:  &http.Client{Timeout: client.Timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.With(slog.String("backend", string(storage.KindOneDrive))),
	}
}

// TokenSource exchanges the configured refresh token for access tokens.
func TokenSource(ctx context.Context, cfg config.OneDriveConfig) (oauth2.TokenSource, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.RefreshToken) == "" {
		return nil, fmt.Errorf("%w: onedrive client id and refresh token are required", storage.ErrAuthInit)
	}
	tenant := strings.TrimSpace(cfg.TenantID)
	if tenant == "" {
		tenant = DefaultTenant
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
		Scopes:       scopes,
	}
	return oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}), nil
}

// Factory returns a storage.Factory that refreshes a token up front so bad credentials
// surface at init.
func Factory(log *slog.Logger, cfg config.OneDriveConfig) storage.Factory {
	return func(ctx context.Context) (storage.Backend, error) {
		ts, err := TokenSource(context.WithoutCancel(ctx), cfg)
		if err != nil {
			return nil, err
		}
		if _, err := ts.Token(); err != nil {
			return nil, fmt.Errorf("%w: onedrive token refresh: %w", storage.ErrAuthInit, err)
		}
		return New(log, oauth2.NewClient(context.WithoutCancel(ctx), ts), cfg.BaseURL), nil
	}
}

func (b *Backend) Kind() storage.Kind { return storage.KindOneDrive }

func (b *Backend) RootID() string { return "root" }

type driveItem struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	WebURL string    `json:"webUrl"`
	Folder *struct{} `json:"folder,omitempty"`
}

func (d driveItem) toItem() storage.Item {
	return storage.Item{ID: d.ID, Name: d.Name, IsFolder: d.Folder != nil, WebURL: d.WebURL}
}

// escapeName escapes a path segment for colon-delimited item addressing.
func escapeName(name string) string {
	return strings.ReplaceAll(url.PathEscape(name), ":", "%3A")
}

func (b *Backend) itemPath(parentID, name string) string {
	return b.baseURL + "/items/" + escapeName(parentID) + ":/" + escapeName(name)
}

func (b *Backend) FindChild(ctx context.Context, parentID, name string, folder bool) (storage.Item, bool, error) {
	var item driveItem
	err := b.do(ctx, b.client, http.MethodGet, b.itemPath(parentID, name), nil, "", &item)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return storage.Item{}, false, nil
		}
		return storage.Item{}, false, classify("get item", err)
	}
	if folder && item.Folder == nil {
		return storage.Item{}, false, nil
	}
	return item.toItem(), true, nil
}

func (b *Backend) CreateFolder(ctx context.Context, parentID, name string) (storage.Item, error) {
	body, err := json.Marshal(map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": conflictFail,
	})
	if err != nil {
		return storage.Item{}, err
	}
	var item driveItem
	endpoint := b.baseURL + "/items/" + url.PathEscape(parentID) + "/children"
	if err := b.do(ctx, b.client, http.MethodPost, endpoint, bytes.NewReader(body), "application/json", &item); err != nil {
		return storage.Item{}, classify("create folder", err)
	}
	return item.toItem(), nil
}

// CreateFile uses a single PUT up to SimpleUploadLimit and an upload session above it.
// Both fail with storage.ErrAlreadyExists when the name is taken.
func (b *Backend) CreateFile(ctx context.Context, parentID, name string, content storage.Content) (storage.Item, error) {
	r, err := content.Open()
	if err != nil {
		return storage.Item{}, fmt.Errorf("open staged content: %w", err)
	}
	defer r.Close()

	var item driveItem
	if content.Size() <= SimpleUploadLimit {
		endpoint := b.itemPath(parentID, name) + ":/content?@microsoft.graph.conflictBehavior=" + conflictFail
		err = b.do(ctx, b.client, http.MethodPut, endpoint, r, content.MimeType(), &item)
	} else {
		item, err = b.uploadSession(ctx, parentID, name, r, content.Size())
	}
	if err != nil {
		return storage.Item{}, classify("upload file", err)
	}
	b.logger.Debug("file created", slog.String("name", name), slog.String("id", item.ID))
	return item.toItem(), nil
}

func (b *Backend) uploadSession(ctx context.Context, parentID, name string, r io.ReaderAt, size int64) (driveItem, error) {
	body, err := json.Marshal(map[string]any{
		"item": map[string]any{"@microsoft.graph.conflictBehavior": conflictFail},
	})
	if err != nil {
		return driveItem{}, err
	}
	var session struct {
		UploadURL string `json:"uploadUrl"`
	}
	endpoint := b.itemPath(parentID, name) + ":/createUploadSession"
	if err := b.do(ctx, b.client, http.MethodPost, endpoint, bytes.NewReader(body), "application/json", &session); err != nil {
		return driveItem{}, err
	}
	if session.UploadURL == "" {
		return driveItem{}, fmt.Errorf("graph: upload session without url")
	}

	var item driveItem
	for offset := int64(0); offset < size; offset += ChunkSize {
		end := min(offset+ChunkSize, size)
		section := io.NewSectionReader(r, offset, end-offset)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, section)
		if err != nil {
			return driveItem{}, err
		}
		req.ContentLength = end - offset
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end-1, size))
		if err := b.send(b.upload, req, &item); err != nil {
			b.cancelSession(session.UploadURL)
			return driveItem{}, err
		}
	}
	return item, nil
}

func (b *Backend) cancelSession(uploadURL string) {
	req, err := http.NewRequest(http.MethodDelete, uploadURL, nil)
	if err != nil {
		return
	}
	if err := b.send(b.upload, req, nil); err != nil {
		b.logger.Warn("cancel upload session failed", slog.Any("error", err))
	}
}

func (b *Backend) do(ctx context.Context, client *http.Client, method, endpoint string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return b.send(client, req, out)
}

func (b *Backend) send(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error *APIError `json:"error"`
		}
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil && json.Unmarshal(data, &payload) == nil && payload.Error != nil {
			apiErr.Code = payload.Error.Code
			apiErr.Message = payload.Error.Message
		}
		return apiErr
	}
	// 202 marks an accepted chunk with no item yet.
	if out == nil || resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func classify(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %s: %w", storage.ErrAuthInit, op, err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s: %w", storage.ErrAuthInit, op, err)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s: %w", storage.ErrAlreadyExists, op, err)
		}
	}
	return fmt.Errorf("onedrive %s: %w", op, err)
}
