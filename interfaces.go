// Package prefsync defines interfaces for the carrier, cache, store and notification tiers.
package prefsync

import (
	"context"
	"time"
)

// Carrier is the request-scoped fast path (Tier 1), typically a cookie jar
// bound to one request/response pair. Values written through a Carrier must
// be visible to later reads on the same Carrier.
type Carrier interface {
	Read(name string) (string, bool)
	Write(name, value string) error
	Clear(name string)
}

// Cache defines the methods required for the shared cache tier (Tier 2).
// Get returns ErrNotFound on a miss or an expired entry.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store defines the methods required for the system of record (Tier 3).
// Get and Delete return ErrNotFound when no row exists; the Syncer treats a
// missing row on Delete as already cleared. Upsert keeps at most one record
// per user and kind. GetAll returns an empty map for an unknown user.
type Store interface {
	Get(ctx context.Context, userID, kind string) (*Record, error)
	Upsert(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, userID, kind string) error
	GetAll(ctx context.Context, userID string) (map[string]*Record, error)
	Close() error
}

// Notifier receives a Change after the carrier tier has been updated.
type Notifier interface {
	Notify(ctx context.Context, change Change) error
}
