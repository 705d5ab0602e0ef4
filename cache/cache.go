// Package cache provides Tier 2 implementations of prefsync.Cache.
//
// Values are stored as plain strings under keys of the form "kind:userID".
// A missing or expired key is reported as prefsync.ErrNotFound.
package cache

import (
	"github.com/pressograph/prefsync"
)

var (
	_ prefsync.Cache = (*MemoryCache)(nil)
	_ prefsync.Cache = (*RedisCache)(nil)
)
