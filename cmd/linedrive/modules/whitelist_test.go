package modules

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winson8942-oss/line-drive-bot/internal/whitelist"
)

type loadErrStore struct {
	*whitelist.MemoryStore
	err error
}

func (s loadErrStore) Load(context.Context) ([]whitelist.Entry, error) {
	return nil, s.err
}

func TestPrepareWhitelistSchema(t *testing.T) {
	tests := []struct {
		name        string
		loadErr     error
		wantMigrate bool
		wantLog     string
	}{
		{name: "ready", loadErr: nil},
		{name: "missing table", loadErr: &pgconn.PgError{Code: "42P01"}, wantMigrate: true, wantLog: "applying migrations"},
		{name: "unreachable", loadErr: errors.New("password authentication failed"), wantLog: "password authentication failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, nil))
			store := loadErrStore{MemoryStore: whitelist.NewMemoryStore(), err: tt.loadErr}
			migrated := false

			err := prepareWhitelistSchema(context.Background(), log, store, func() error {
				migrated = true
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantMigrate, migrated)
			if tt.wantLog != "" {
				assert.Contains(t, buf.String(), tt.wantLog)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestPrepareWhitelistSchemaReturnsMigrateError(t *testing.T) {
	store := loadErrStore{MemoryStore: whitelist.NewMemoryStore(), err: &pgconn.PgError{Code: "42P01"}}
	err := prepareWhitelistSchema(context.Background(), slog.New(slog.DiscardHandler), store, func() error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}
