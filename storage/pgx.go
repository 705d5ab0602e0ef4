package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pressograph/prefsync"
)

// PgxStorage implements prefsync.Store on a pgx connection pool. It shares
// its schema and statements with PostgresStorage.
type PgxStorage struct {
	pool *pgxpool.Pool
}

// NewPgxStorage parses url, opens a pool and creates the table if needed.
func NewPgxStorage(ctx context.Context, url string) (*PgxStorage, error) {
	if url == "" {
		return nil, fmt.Errorf("pgx: database URL is required")
	}
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("pgx: failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgx: failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: failed to run migrations: %w", err)
	}

	return &PgxStorage{pool: pool}, nil
}

func (s *PgxStorage) Get(ctx context.Context, userID, kind string) (*prefsync.Record, error) {
	var rec prefsync.Record
	err := s.pool.QueryRow(ctx, selectSQL, userID, kind).Scan(&rec.UserID, &rec.Kind, &rec.Value, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, prefsync.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgx: failed to get preference for user '%s', kind '%s': %w", userID, kind, err)
	}
	return &rec, nil
}

func (s *PgxStorage) Upsert(ctx context.Context, rec *prefsync.Record) error {
	if err := validRecord(rec); err != nil {
		return err
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, upsertSQL, rec.UserID, rec.Kind, rec.Value, updatedAt); err != nil {
		return fmt.Errorf("pgx: failed to upsert preference for user '%s', kind '%s': %w", rec.UserID, rec.Kind, err)
	}
	return nil
}

func (s *PgxStorage) GetAll(ctx context.Context, userID string) (map[string]*prefsync.Record, error) {
	rows, err := s.pool.Query(ctx, selectAllSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("pgx: failed to query preferences for user '%s': %w", userID, err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*prefsync.Record, error) {
		var rec prefsync.Record
		err := row.Scan(&rec.UserID, &rec.Kind, &rec.Value, &rec.UpdatedAt)
		return &rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgx: failed to scan preferences for user '%s': %w", userID, err)
	}

	out := make(map[string]*prefsync.Record, len(records))
	for _, rec := range records {
		out[rec.Kind] = rec
	}
	return out, nil
}

func (s *PgxStorage) Delete(ctx context.Context, userID, kind string) error {
	tag, err := s.pool.Exec(ctx, deleteSQL, userID, kind)
	if err != nil {
		return fmt.Errorf("pgx: failed to delete preference for user '%s', kind '%s': %w", userID, kind, err)
	}
	if tag.RowsAffected() == 0 {
		return prefsync.ErrNotFound
	}
	return nil
}

// Close closes the connection pool.
func (s *PgxStorage) Close() error {
	s.pool.Close()
	return nil
}
