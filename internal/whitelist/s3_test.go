package whitelist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winson8942-oss/line-drive-bot/internal/config"
)

func newS3Fixture(t *testing.T, body string) *S3Blob {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/backups/bot/whitelist.json", r.URL.Path)
		if body == "" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	blob, err := NewS3Blob(context.Background(), config.S3Config{
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		Bucket:    "backups",
		Key:       "bot/whitelist.json",
		AccessKey: "AKIDTEST",
		SecretKey: "secret",
		PathStyle: true,
	}, "whitelist.json")
	require.NoError(t, err)
	return blob
}

func TestS3BlobMissingDocument(t *testing.T) {
	store := NewDocumentStore(newS3Fixture(t, ""))
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestS3BlobReadsDocument(t *testing.T) {
	store := NewDocumentStore(newS3Fixture(t, `{"entries":[{"kind":"user","id":"U1","label":"Amy"}]}`))
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Principal: Principal{Kind: KindUser, ID: "U1"}, Label: "Amy"}}, got)
}

func TestNewS3BlobRequiresBucket(t *testing.T) {
	_, err := NewS3Blob(context.Background(), config.S3Config{}, "whitelist.json")
	assert.Error(t, err)
}
