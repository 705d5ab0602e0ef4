// storage/storage.go

// Package storage provides Tier 3 implementations of prefsync.Store.
//
// Every SQL backend uses the same table:
//
//	user_preferences(user_id, kind, value, updated_at) PRIMARY KEY (user_id, kind)
//
// Upsert is last-write-wins on (user_id, kind). Get and Delete report a
// missing row as prefsync.ErrNotFound.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/pressograph/prefsync"
)

var (
	_ prefsync.Store = (*MemoryStorage)(nil)
	_ prefsync.Store = (*PostgresStorage)(nil)
	_ prefsync.Store = (*PgxStorage)(nil)
	_ prefsync.Store = (*SQLiteStorage)(nil)
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
)

// Open builds the Store named by driver. dsn is a connection URL for the
// Postgres drivers and a file path for the SQLite drivers; it is ignored
// for the memory driver.
func Open(ctx context.Context, driver, dsn string) (prefsync.Store, error) {
	switch strings.ToLower(driver) {
	case DriverMemory, "":
		return NewMemoryStorage(), nil
	case DriverPostgres:
		return NewPostgresStorage(dsn)
	case DriverPgx:
		return NewPgxStorage(ctx, dsn)
	case DriverSQLite:
		return NewSQLiteStorage(dsn)
	case DriverSQLite3:
		return NewSQLiteStorageWithDriver(DriverSQLite3, dsn)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}

func validRecord(rec *prefsync.Record) error {
	if rec == nil || rec.UserID == "" || rec.Kind == "" {
		return prefsync.ErrInvalidInput
	}
	return nil
}
