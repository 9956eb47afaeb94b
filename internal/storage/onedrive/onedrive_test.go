package onedrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/winson8942-oss/line-drive-bot/internal/config"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
)

type graphItem struct {
	driveItem
	parent string
	data   []byte
}

// fakeGraph implements the slice of the drive API the backend uses.
type fakeGraph struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	items     map[string]*graphItem
	seq       int
	sessions  map[string]*graphItem
	chunks    []string
	authOnPut []string
}

func newFakeGraph(t *testing.T) *fakeGraph {
	g := &fakeGraph{t: t, items: map[string]*graphItem{}, sessions: map[string]*graphItem{}}
	g.srv = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGraph) backend() *Backend {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, g.srv.Client())
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}))
	return New(nil, client, g.srv.URL+"/drive")
}

func (g *fakeGraph) find(parent, name string) *graphItem {
	for _, it := range g.items {
		if it.parent == parent && it.Name == name {
			return it
		}
	}
	return nil
}

func (g *fakeGraph) add(parent, name string, folder bool, data []byte) *graphItem {
	g.seq++
	it := &graphItem{parent: parent, data: data}
	it.ID = "item-" + strconv.Itoa(g.seq)
	it.Name = name
	it.WebURL = "https://onedrive.example/" + it.ID
	if folder {
		it.Folder = &struct{}{}
	}
	g.items[it.ID] = it
	return it
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func graphError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"code": code, "message": code}})
}

func (g *fakeGraph) serve(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/upload/") {
		g.serveChunk(w, r)
		return
	}
	rest, ok := strings.CutPrefix(r.URL.EscapedPath(), "/drive/items/")
	require.True(g.t, ok, r.URL.Path)
	assert.Equal(g.t, "Bearer tok", r.Header.Get("Authorization"))

	if parent, ok := strings.CutSuffix(rest, "/children"); ok && r.Method == http.MethodPost {
		parent = unescape(g.t, parent)
		var body map[string]any
		require.NoError(g.t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(g.t, "fail", body["@microsoft.graph.conflictBehavior"])
		name := body["name"].(string)
		if g.find(parent, name) != nil {
			graphError(w, http.StatusConflict, "nameAlreadyExists")
			return
		}
		writeJSON(w, http.StatusCreated, g.add(parent, name, true, nil).driveItem)
		return
	}

	parent, path, ok := strings.Cut(rest, ":/")
	require.True(g.t, ok, rest)
	name, action, _ := strings.Cut(path, ":/")
	parent, name = unescape(g.t, parent), unescape(g.t, name)
	existing := g.find(parent, name)

	switch {
	case r.Method == http.MethodGet && action == "":
		if existing == nil {
			graphError(w, http.StatusNotFound, "itemNotFound")
			return
		}
		writeJSON(w, http.StatusOK, existing.driveItem)
	case r.Method == http.MethodPut && action == "content":
		assert.Equal(g.t, "fail", r.URL.Query().Get("@microsoft.graph.conflictBehavior"))
		if existing != nil {
			graphError(w, http.StatusConflict, "nameAlreadyExists")
			return
		}
		data, err := io.ReadAll(r.Body)
		require.NoError(g.t, err)
		writeJSON(w, http.StatusCreated, g.add(parent, name, false, data).driveItem)
	case r.Method == http.MethodPost && action == "createUploadSession":
		if existing != nil {
			graphError(w, http.StatusConflict, "nameAlreadyExists")
			return
		}
		id := fmt.Sprintf("s%d", len(g.sessions)+1)
		it := &graphItem{parent: parent}
		it.Name = name
		g.sessions[id] = it
		writeJSON(w, http.StatusOK, map[string]string{"uploadUrl": g.srv.URL + "/upload/" + id})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func unescape(t *testing.T, s string) string {
	out, err := url.PathUnescape(s)
	require.NoError(t, err)
	return out
}

func (g *fakeGraph) serveChunk(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/upload/")
	session := g.sessions[id]
	require.NotNil(g.t, session)
	g.authOnPut = append(g.authOnPut, r.Header.Get("Authorization"))
	contentRange := r.Header.Get("Content-Range")
	g.chunks = append(g.chunks, contentRange)

	var start, end, total int64
	_, err := fmt.Sscanf(contentRange, "bytes %d-%d/%d", &start, &end, &total)
	require.NoError(g.t, err)
	data, err := io.ReadAll(r.Body)
	require.NoError(g.t, err)
	require.Equal(g.t, end-start+1, int64(len(data)))
	require.Equal(g.t, int64(len(session.data)), start)
	session.data = append(session.data, data...)

	if end+1 < total {
		writeJSON(w, http.StatusAccepted, map[string]any{"nextExpectedRanges": []string{fmt.Sprintf("%d-", end+1)}})
		return
	}
	it := g.add(session.parent, session.Name, false, session.data)
	writeJSON(w, http.StatusCreated, it.driveItem)
}

func TestFindChild(t *testing.T) {
	g := newFakeGraph(t)
	folder := g.add("root", "LINE-bot", true, nil)
	g.add("root", "notes.txt", false, nil)
	b := g.backend()
	ctx := context.Background()

	item, found, err := b.FindChild(ctx, "root", "LINE-bot", true)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, folder.ID, item.ID)
	assert.True(t, item.IsFolder)

	_, found, err = b.FindChild(ctx, "root", "notes.txt", true)
	require.NoError(t, err)
	assert.False(t, found, "files never satisfy a folder lookup")

	_, found, err = b.FindChild(ctx, "root", "notes.txt", false)
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = b.FindChild(ctx, "root", "missing", false)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCreateFolderConflict(t *testing.T) {
	g := newFakeGraph(t)
	g.add("root", "LINE-bot", true, nil)

	_, err := g.backend().CreateFolder(context.Background(), "root", "LINE-bot")
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestResolveAndSimpleUpload(t *testing.T) {
	g := newFakeGraph(t)
	b := g.backend()
	ctx := context.Background()

	folder, err := storage.NewResolver(nil).Resolve(ctx, b, storage.NewFolderPath("LINE-bot", "User-小明 (Amy)"))
	require.NoError(t, err)
	assert.Equal(t, "User-小明 (Amy)", folder.Name)

	item, err := b.CreateFile(ctx, folder.ID, "2024-05-01_10-00-00_a b.jpg", storage.BytesContent{Data: "jpeg", Mime: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01_10-00-00_a b.jpg", item.Name)
	assert.NotEmpty(t, item.WebURL)
	assert.Equal(t, []byte("jpeg"), g.items[item.ID].data)

	_, err = b.CreateFile(ctx, folder.ID, "2024-05-01_10-00-00_a b.jpg", storage.BytesContent{Data: "again"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestItemPathEscapesColon(t *testing.T) {
	b := New(nil, http.DefaultClient, "https://graph.example/drive")
	assert.Equal(t, "https://graph.example/drive/items/root:/Meeting%2010%3A30.pdf", b.itemPath("root", "Meeting 10:30.pdf"))
}

func TestColonNameRoundTrips(t *testing.T) {
	g := newFakeGraph(t)
	b := g.backend()
	ctx := context.Background()

	item, err := storage.NewAllocator(0).Store(ctx, b, "root", "Meeting 10:30.pdf", storage.BytesContent{Data: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "Meeting 10:30.pdf", item.Name)

	found, ok, err := b.FindChild(ctx, "root", "Meeting 10:30.pdf", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, item.ID, found.ID)
}

func TestAllocatorAgainstGraph(t *testing.T) {
	g := newFakeGraph(t)
	g.add("root", "photo.jpg", false, nil)
	g.add("root", "photo_1.jpg", false, nil)

	item, err := storage.NewAllocator(0).Store(context.Background(), g.backend(), "root", "photo.jpg", storage.BytesContent{Data: "x"})
	require.NoError(t, err)
	assert.Equal(t, "photo_2.jpg", item.Name)
}

func TestLargeUploadUsesSession(t *testing.T) {
	g := newFakeGraph(t)
	size := SimpleUploadLimit + ChunkSize/2
	payload := strings.Repeat("z", size)

	item, err := g.backend().CreateFile(context.Background(), "root", "big.mp4", storage.BytesContent{Data: payload})
	require.NoError(t, err)
	assert.Equal(t, "big.mp4", item.Name)
	assert.Equal(t, []string{
		fmt.Sprintf("bytes 0-%d/%d", ChunkSize-1, size),
		fmt.Sprintf("bytes %d-%d/%d", ChunkSize, size-1, size),
	}, g.chunks)
	assert.Equal(t, []string{"", ""}, g.authOnPut)
	assert.Len(t, g.items[item.ID].data, size)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify("x", &APIError{Status: http.StatusUnauthorized}), storage.ErrAuthInit)
	assert.ErrorIs(t, classify("x", &APIError{Status: http.StatusConflict}), storage.ErrAlreadyExists)
	assert.ErrorIs(t, classify("x", &oauth2.RetrieveError{}), storage.ErrAuthInit)
	assert.NotErrorIs(t, classify("x", &APIError{Status: http.StatusInternalServerError}), storage.ErrAuthInit)
}

func TestAPIErrorMessage(t *testing.T) {
	assert.Equal(t, "graph: status 404", (&APIError{Status: 404}).Error())
	assert.Equal(t, "graph: status 409: nameAlreadyExists: taken", (&APIError{Status: 409, Code: "nameAlreadyExists", Message: "taken"}).Error())
}

func TestTokenSourceRequiresCredentials(t *testing.T) {
	_, err := TokenSource(context.Background(), config.OneDriveConfig{ClientID: "id"})
	assert.ErrorIs(t, err, storage.ErrAuthInit)

	ts, err := TokenSource(context.Background(), config.OneDriveConfig{ClientID: "id", RefreshToken: "rt"})
	require.NoError(t, err)
	assert.NotNil(t, ts)
}
