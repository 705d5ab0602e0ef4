// Package prefsync keeps a user-scoped preference, such as a theme or a
// locale, consistent across three tiers: a request-scoped carrier (a
// cookie), a shared cache keyed by user, and a durable per-user record.
//
// Reads stop at the first tier holding a valid value and backfill the
// faster tiers. Writes update the carrier before returning and persist to
// the cache and store concurrently, reporting partial failure without
// undoing the carrier write. Storage backends live in the storage package,
// caches in the cache package and the HTTP cookie carrier in the cookie
// package.
package prefsync
