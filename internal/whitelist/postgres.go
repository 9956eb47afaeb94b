package whitelist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists entries in the whitelist_entries table created by the migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT kind, id, label FROM whitelist_entries ORDER BY kind, id`)
	if err != nil {
		return nil, fmt.Errorf("query whitelist: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.Kind, &e.ID, &e.Label)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan whitelist: %w", err)
	}
	return entries, nil
}

const postgresUpsert = `INSERT INTO whitelist_entries (kind, id, label) VALUES ($1, $2, $3)
ON CONFLICT (kind, id) DO UPDATE SET label = EXCLUDED.label, updated_at = now()`

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	if _, err := s.pool.Exec(ctx, postgresUpsert, string(e.Kind), e.ID, e.Label); err != nil {
		return fmt.Errorf("insert whitelist entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, p Principal) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM whitelist_entries WHERE kind = $1 AND id = $2`, string(p.Kind), p.ID); err != nil {
		return fmt.Errorf("delete whitelist entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, entries []Entry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM whitelist_entries`); err != nil {
			return fmt.Errorf("clear whitelist: %w", err)
		}
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(postgresUpsert, string(e.Kind), e.ID, e.Label)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
