// errors.go
package prefsync

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input parameters")
	ErrInvalidKind        = errors.New("invalid preference kind")
	ErrUnknownKind        = errors.New("preference kind not defined")
	ErrInvalidValue       = errors.New("invalid preference value")
	ErrNotFound           = errors.New("preference not found")
	ErrStorageUnavailable = errors.New("storage backend unavailable")
	ErrCacheUnavailable   = errors.New("cache backend unavailable")
	ErrCarrierUnavailable = errors.New("request carrier unavailable")
)

// Tier identifies one of the three places a preference value can live.
type Tier string

const (
	TierCarrier Tier = "carrier"
	TierCache   Tier = "cache"
	TierStore   Tier = "store"
)

// TierError records a failed call against a cache or store tier.
// It unwraps to both the tier's sentinel (ErrCacheUnavailable or
// ErrStorageUnavailable) and the underlying cause.
type TierError struct {
	Op     string
	Tier   Tier
	Kind   string
	UserID string
	Err    error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("prefsync: %s %s kind=%q user=%q: %v", e.Tier, e.Op, e.Kind, e.UserID, e.Err)
}

func (e *TierError) Unwrap() []error {
	return []error{tierSentinel(e.Tier), e.Err}
}

func tierSentinel(t Tier) error {
	switch t {
	case TierCache:
		return ErrCacheUnavailable
	case TierStore:
		return ErrStorageUnavailable
	default:
		return ErrCarrierUnavailable
	}
}
