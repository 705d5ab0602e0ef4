package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go SQLite driver, registered as "sqlite"

	"github.com/pressograph/prefsync"
)

const (
	sqliteCreateTableSQL = `
		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, kind)
		);
	`

	sqliteUpsertSQL = `
		INSERT INTO user_preferences (user_id, kind, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, kind)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	sqliteSelectSQL = `
		SELECT user_id, kind, value, updated_at
		FROM user_preferences
		WHERE user_id = ? AND kind = ?
	`

	sqliteSelectAllSQL = `
		SELECT user_id, kind, value, updated_at
		FROM user_preferences
		WHERE user_id = ?
	`

	sqliteDeleteSQL = `
		DELETE FROM user_preferences
		WHERE user_id = ? AND kind = ?
	`
)

// SQLiteStorage implements prefsync.Store using SQLite. updated_at is kept
// as RFC 3339 text so both drivers read it back identically.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens dbPath with the pure Go driver.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	return NewSQLiteStorageWithDriver(DriverSQLite, dbPath)
}

// NewSQLiteStorageWithDriver opens dbPath with driver, either "sqlite"
// (modernc.org/sqlite) or "sqlite3" (mattn/go-sqlite3), in WAL mode with a
// five second busy timeout.
func NewSQLiteStorageWithDriver(driver, dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	dsn, err := sqliteDSN(driver, dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite doesn't support multiple writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

func sqliteDSN(driver, dbPath string) (string, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	switch driver {
	case DriverSQLite:
		return dbPath + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", nil
	case DriverSQLite3:
		return dbPath + sep + "_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", nil
	default:
		return "", fmt.Errorf("sqlite: unsupported driver %q", driver)
	}
}

func (s *SQLiteStorage) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteCreateTableSQL)
	return err
}

// Get retrieves the record for userID and kind.
func (s *SQLiteStorage) Get(ctx context.Context, userID, kind string) (*prefsync.Record, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectSQL, userID, kind)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, prefsync.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}
	return rec, nil
}

// Upsert inserts rec or replaces the value of the existing row.
func (s *SQLiteStorage) Upsert(ctx context.Context, rec *prefsync.Record) error {
	if err := validRecord(rec); err != nil {
		return err
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, sqliteUpsertSQL,
		rec.UserID,
		rec.Kind,
		rec.Value,
		updatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preference: %w", err)
	}
	return nil
}

// GetAll retrieves every record for userID, keyed by kind.
func (s *SQLiteStorage) GetAll(ctx context.Context, userID string) (map[string]*prefsync.Record, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectAllSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*prefsync.Record)
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		out[rec.Kind] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// Delete removes the record for userID and kind.
func (s *SQLiteStorage) Delete(ctx context.Context, userID, kind string) error {
	result, err := s.db.ExecContext(ctx, sqliteDeleteSQL, userID, kind)
	if err != nil {
		return fmt.Errorf("failed to delete preference: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return prefsync.ErrNotFound
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*prefsync.Record, error) {
	var (
		rec       prefsync.Record
		updatedAt string
	)
	if err := row.Scan(&rec.UserID, &rec.Kind, &rec.Value, &updatedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	rec.UpdatedAt = t
	return &rec, nil
}
