package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pressograph/prefsync"
)

// sqlOpenFunc is a package-level variable that can be overridden for testing.
var sqlOpenFunc = sql.Open

const (
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, kind)
		);
	`

	upsertSQL = `
		INSERT INTO user_preferences (user_id, kind, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, kind)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	selectSQL = `
		SELECT user_id, kind, value, updated_at
		FROM user_preferences
		WHERE user_id = $1 AND kind = $2
	`

	selectAllSQL = `
		SELECT user_id, kind, value, updated_at
		FROM user_preferences
		WHERE user_id = $1
	`

	deleteSQL = `
		DELETE FROM user_preferences
		WHERE user_id = $1 AND kind = $2
	`
)

// PostgresStorage implements prefsync.Store on database/sql with lib/pq.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage connects using connString and creates the table if needed.
func NewPostgresStorage(connString string) (*PostgresStorage, error) {
	db, err := sqlOpenFunc("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	storage := &PostgresStorage{db: db}
	if err := storage.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to run migrations: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("postgres: failed to execute create table statement: %w", err)
	}
	return nil
}

// Get retrieves the record for userID and kind.
func (s *PostgresStorage) Get(ctx context.Context, userID, kind string) (*prefsync.Record, error) {
	var rec prefsync.Record
	err := s.db.QueryRowContext(ctx, selectSQL, userID, kind).Scan(
		&rec.UserID,
		&rec.Kind,
		&rec.Value,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, prefsync.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan preference for user '%s', kind '%s': %w", userID, kind, err)
	}
	return &rec, nil
}

// Upsert inserts rec or replaces the value of the existing row.
func (s *PostgresStorage) Upsert(ctx context.Context, rec *prefsync.Record) error {
	if err := validRecord(rec); err != nil {
		return err
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, upsertSQL, rec.UserID, rec.Kind, rec.Value, updatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert preference for user '%s', kind '%s': %w", rec.UserID, rec.Kind, err)
	}
	return nil
}

// GetAll retrieves every record for userID, keyed by kind.
func (s *PostgresStorage) GetAll(ctx context.Context, userID string) (map[string]*prefsync.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectAllSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query preferences for user '%s': %w", userID, err)
	}
	return scanRecords(rows)
}

// Delete removes the record for userID and kind.
func (s *PostgresStorage) Delete(ctx context.Context, userID, kind string) error {
	result, err := s.db.ExecContext(ctx, deleteSQL, userID, kind)
	if err != nil {
		return fmt.Errorf("postgres: failed to execute delete for user '%s', kind '%s': %w", userID, kind, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get affected rows for delete user '%s', kind '%s': %w", userID, kind, err)
	}
	if rowsAffected == 0 {
		return prefsync.ErrNotFound
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// scanRecords reads user_id, kind, value, updated_at rows and closes rows.
func scanRecords(rows *sql.Rows) (map[string]*prefsync.Record, error) {
	defer rows.Close()

	out := make(map[string]*prefsync.Record)
	for rows.Next() {
		var rec prefsync.Record
		if err := rows.Scan(&rec.UserID, &rec.Kind, &rec.Value, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preference row: %w", err)
		}
		out[rec.Kind] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preference rows: %w", err)
	}
	return out, nil
}
