// syncer.go
package prefsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Syncer keeps user preferences consistent across the carrier (Tier 1), the
// shared cache (Tier 2) and the system of record (Tier 3).
//
// Reads cascade from the fastest tier to the slowest and backfill every
// faster tier on a hit. Writes update the carrier synchronously, then the
// cache and store concurrently. Cache and store failures never fail a read
// and never roll back the carrier on a write.
//
// A Syncer is safe for concurrent use.
type Syncer struct {
	mu     sync.RWMutex
	kinds  map[string]Kind
	order  []string
	config *Config

	cacheGuard *tierGuard
	storeGuard *tierGuard

	pending *pendingSet
}

// New creates a Syncer. ThemeKind and LocaleKind are registered unless
// WithKinds supplies an explicit set.
func New(opts ...Option) (*Syncer, error) {
	cfg := &Config{
		logger:      NewDefaultLogger(),
		cacheTTL:    DefaultCacheTTL,
		tierTimeout: DefaultTierTimeout,
		retries:     DefaultRetries,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger{}
	}
	if len(cfg.kinds) == 0 {
		cfg.kinds = []Kind{ThemeKind(), LocaleKind()}
	}

	s := &Syncer{
		kinds:      make(map[string]Kind, len(cfg.kinds)),
		config:     cfg,
		cacheGuard: newTierGuard(TierCache, cfg),
		storeGuard: newTierGuard(TierStore, cfg),
		pending:    newPendingSet(),
	}
	for _, k := range cfg.kinds {
		if err := s.DefineKind(k); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DefineKind registers or replaces a preference kind.
func (s *Syncer) DefineKind(k Kind) error {
	if err := validateKind(k); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.kinds[k.Name]; !exists {
		s.order = append(s.order, k.Name)
	}
	s.kinds[k.Name] = k
	return nil
}

// Kind returns the registered kind with the given name.
func (s *Syncer) Kind(name string) (Kind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.kinds[name]
	return k, ok
}

// Kinds returns all registered kinds in registration order.
func (s *Syncer) Kinds() []Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Kind, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.kinds[name])
	}
	return out
}

// CacheKey is the Tier 2 key for a user's value of a kind.
func CacheKey(kind, userID string) string {
	return kind + ":" + userID
}

// Get returns the effective value of kind for the request behind carrier.
// An empty userID means an anonymous session: only the carrier is consulted.
//
// The only error is ErrUnknownKind. Cache and store failures are logged and
// treated as a miss; when no tier holds a valid value the kind's default is
// returned and nothing is written back.
func (s *Syncer) Get(ctx context.Context, carrier Carrier, kind, userID string) (string, error) {
	k, ok := s.Kind(kind)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if v, ok := s.readCarrier(carrier, k); ok {
		return v, nil
	}
	if userID == "" {
		return k.Default, nil
	}

	if v, ok := s.readCache(ctx, k, userID); ok {
		s.backfillCarrier(carrier, k, userID, v)
		return v, nil
	}

	if v, ok := s.readStore(ctx, k, userID); ok {
		s.backfillCache(ctx, k, userID, v)
		s.backfillCarrier(carrier, k, userID, v)
		return v, nil
	}

	return k.Default, nil
}

// Snapshot returns the effective value of every registered kind. It
// resolves each kind like Get, except that kinds missing from the carrier
// and cache are read from the store with a single GetAll.
func (s *Syncer) Snapshot(ctx context.Context, carrier Carrier, userID string) map[string]string {
	kinds := s.Kinds()
	out := make(map[string]string, len(kinds))
	var missing []Kind
	for _, k := range kinds {
		if v, ok := s.readCarrier(carrier, k); ok {
			out[k.Name] = v
			continue
		}
		if userID == "" {
			out[k.Name] = k.Default
			continue
		}
		if v, ok := s.readCache(ctx, k, userID); ok {
			s.backfillCarrier(carrier, k, userID, v)
			out[k.Name] = v
			continue
		}
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return out
	}

	stored := s.readStoreAll(ctx, userID)
	for _, k := range missing {
		v, ok := s.storedValue(stored, k, userID)
		if !ok {
			out[k.Name] = k.Default
			continue
		}
		s.backfillCache(ctx, k, userID, v)
		s.backfillCarrier(carrier, k, userID, v)
		out[k.Name] = v
	}
	return out
}

// Set validates value, writes it to the carrier and, for a known user,
// upserts the store and cache concurrently.
//
// A returned error means nothing was written: the kind is unknown, the value
// is invalid, or the carrier refused the write. Cache or store failures are
// reported through Result.Success=false instead; the carrier keeps the new
// value and the failed tiers are queued for reconciliation.
func (s *Syncer) Set(ctx context.Context, carrier Carrier, kind, value, userID string) (Result, error) {
	k, ok := s.Kind(kind)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	v, err := validateValue(k, value)
	if err != nil {
		return Result{}, err
	}

	if carrier != nil {
		if err := carrier.Write(k.Name, v); err != nil {
			return Result{}, &TierError{Op: "set", Tier: TierCarrier, Kind: k.Name, UserID: userID, Err: err}
		}
	}

	s.notify(ctx, Change{Kind: k.Name, UserID: userID, Value: v, At: time.Now()})

	if userID == "" {
		return Result{Success: true}, nil
	}

	seq := s.pending.begin(userID, k.Name)
	failed, err := s.persist(ctx, k, userID, v)
	s.pending.finish(pendingWrite{userID: userID, kind: k.Name, value: v, seq: seq, started: seq}, s.reached(failed), failed)
	if err != nil {
		return Result{Success: false, Err: err}, nil
	}
	return Result{Success: true}, nil
}

// Clear removes the carrier value and, for a known user, deletes the store
// record and then the cache entry. Subsequent reads return the default.
// Tier failures are logged and queued for reconciliation; the only error is
// ErrUnknownKind.
func (s *Syncer) Clear(ctx context.Context, carrier Carrier, kind, userID string) error {
	k, ok := s.Kind(kind)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if carrier != nil {
		carrier.Clear(k.Name)
	}

	s.notify(ctx, Change{Kind: k.Name, UserID: userID, Value: k.Default, Cleared: true, At: time.Now()})

	if userID == "" {
		return nil
	}

	seq := s.pending.begin(userID, k.Name)
	failed, _ := s.erase(ctx, k, userID)
	s.pending.finish(pendingWrite{userID: userID, kind: k.Name, clear: true, seq: seq, started: seq}, s.reached(failed), failed)
	return nil
}

// persist upserts the store and the cache concurrently. It returns the tiers
// that failed and their joined errors.
func (s *Syncer) persist(ctx context.Context, k Kind, userID, v string) ([]Tier, error) {
	var (
		g        errgroup.Group
		storeErr error
		cacheErr error
	)
	if s.config.store != nil {
		g.Go(func() error {
			storeErr = s.writeStore(ctx, k, userID, v)
			return nil
		})
	}
	if s.config.cache != nil {
		g.Go(func() error {
			cacheErr = s.writeCache(ctx, k, userID, v)
			return nil
		})
	}
	_ = g.Wait()

	return failedTiers(storeErr, cacheErr)
}

// erase deletes the store record before the cache entry so a concurrent
// read cannot repopulate the cache from a record that is about to go.
func (s *Syncer) erase(ctx context.Context, k Kind, userID string) ([]Tier, error) {
	var storeErr, cacheErr error
	if s.config.store != nil {
		storeErr = s.deleteStore(ctx, k, userID)
	}
	if s.config.cache != nil {
		cacheErr = s.deleteCache(ctx, k, userID)
	}
	return failedTiers(storeErr, cacheErr)
}

// reached returns the configured cache and store tiers not listed in failed.
func (s *Syncer) reached(failed []Tier) []Tier {
	var tiers []Tier
	if s.config.store != nil && !slices.Contains(failed, TierStore) {
		tiers = append(tiers, TierStore)
	}
	if s.config.cache != nil && !slices.Contains(failed, TierCache) {
		tiers = append(tiers, TierCache)
	}
	return tiers
}

func failedTiers(storeErr, cacheErr error) ([]Tier, error) {
	var tiers []Tier
	if storeErr != nil {
		tiers = append(tiers, TierStore)
	}
	if cacheErr != nil {
		tiers = append(tiers, TierCache)
	}
	return tiers, errors.Join(storeErr, cacheErr)
}

func (s *Syncer) readCarrier(carrier Carrier, k Kind) (string, bool) {
	if carrier == nil {
		return "", false
	}
	raw, ok := carrier.Read(k.Name)
	if !ok {
		return "", false
	}
	v, ok := k.Valid(raw)
	if !ok {
		s.config.logger.Debug("ignoring malformed carrier value", "tier", TierCarrier, "kind", k.Name)
		return "", false
	}
	return v, true
}

func (s *Syncer) readCache(ctx context.Context, k Kind, userID string) (string, bool) {
	if s.config.cache == nil {
		return "", false
	}
	out, err := s.cacheGuard.do(ctx, "get", k.Name, func(ctx context.Context) (any, error) {
		return s.config.cache.Get(ctx, CacheKey(k.Name, userID))
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logTierError(&TierError{Op: "get", Tier: TierCache, Kind: k.Name, UserID: userID, Err: err})
		}
		return "", false
	}
	raw, _ := out.(string)
	v, ok := k.Valid(raw)
	if !ok {
		s.config.logger.Warn("ignoring malformed cached preference",
			"op", "get", "tier", TierCache, "kind", k.Name, "user_id", userID)
		return "", false
	}
	return v, true
}

func (s *Syncer) readStore(ctx context.Context, k Kind, userID string) (string, bool) {
	if s.config.store == nil {
		return "", false
	}
	out, err := s.storeGuard.do(ctx, "get", k.Name, func(ctx context.Context) (any, error) {
		return s.config.store.Get(ctx, userID, k.Name)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logTierError(&TierError{Op: "get", Tier: TierStore, Kind: k.Name, UserID: userID, Err: err})
		}
		return "", false
	}
	rec, _ := out.(*Record)
	if rec == nil {
		return "", false
	}
	v, ok := k.Valid(rec.Value)
	if !ok {
		s.config.logger.Warn("ignoring malformed stored preference",
			"op", "get", "tier", TierStore, "kind", k.Name, "user_id", userID)
		return "", false
	}
	return v, true
}

func (s *Syncer) writeCache(ctx context.Context, k Kind, userID, v string) error {
	_, err := s.cacheGuard.do(ctx, "set", k.Name, func(ctx context.Context) (any, error) {
		return nil, s.config.cache.Set(ctx, CacheKey(k.Name, userID), v, s.config.cacheTTL)
	})
	if err != nil {
		te := &TierError{Op: "set", Tier: TierCache, Kind: k.Name, UserID: userID, Err: err}
		s.logTierError(te)
		return te
	}
	return nil
}

func (s *Syncer) writeStore(ctx context.Context, k Kind, userID, v string) error {
	rec := &Record{UserID: userID, Kind: k.Name, Value: v, UpdatedAt: time.Now().UTC()}
	_, err := s.storeGuard.do(ctx, "upsert", k.Name, func(ctx context.Context) (any, error) {
		return nil, s.config.store.Upsert(ctx, rec)
	})
	if err != nil {
		te := &TierError{Op: "upsert", Tier: TierStore, Kind: k.Name, UserID: userID, Err: err}
		s.logTierError(te)
		return te
	}
	return nil
}

func (s *Syncer) deleteCache(ctx context.Context, k Kind, userID string) error {
	_, err := s.cacheGuard.do(ctx, "delete", k.Name, func(ctx context.Context) (any, error) {
		err := s.config.cache.Delete(ctx, CacheKey(k.Name, userID))
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		te := &TierError{Op: "delete", Tier: TierCache, Kind: k.Name, UserID: userID, Err: err}
		s.logTierError(te)
		return te
	}
	return nil
}

func (s *Syncer) deleteStore(ctx context.Context, k Kind, userID string) error {
	_, err := s.storeGuard.do(ctx, "delete", k.Name, func(ctx context.Context) (any, error) {
		err := s.config.store.Delete(ctx, userID, k.Name)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		te := &TierError{Op: "delete", Tier: TierStore, Kind: k.Name, UserID: userID, Err: err}
		s.logTierError(te)
		return te
	}
	return nil
}

// readStoreAll returns nil when the store is absent or failed.
func (s *Syncer) readStoreAll(ctx context.Context, userID string) map[string]*Record {
	if s.config.store == nil {
		return nil
	}
	out, err := s.storeGuard.do(ctx, "get_all", "", func(ctx context.Context) (any, error) {
		return s.config.store.GetAll(ctx, userID)
	})
	if err != nil {
		s.logTierError(&TierError{Op: "get_all", Tier: TierStore, UserID: userID, Err: err})
		return nil
	}
	recs, _ := out.(map[string]*Record)
	return recs
}

func (s *Syncer) storedValue(stored map[string]*Record, k Kind, userID string) (string, bool) {
	rec := stored[k.Name]
	if rec == nil {
		return "", false
	}
	v, ok := k.Valid(rec.Value)
	if !ok {
		s.config.logger.Warn("ignoring malformed stored preference",
			"op", "get_all", "tier", TierStore, "kind", k.Name, "user_id", userID)
		return "", false
	}
	return v, true
}

// backfillCarrier and backfillCache are best-effort: the outcome is logged
// and never changes the result of the read that triggered them.
func (s *Syncer) backfillCarrier(carrier Carrier, k Kind, userID, v string) {
	if carrier == nil {
		return
	}
	if err := carrier.Write(k.Name, v); err != nil {
		s.config.logger.Warn("carrier backfill failed",
			"op", "backfill", "tier", TierCarrier, "kind", k.Name, "user_id", userID, "error", err)
	}
}

func (s *Syncer) backfillCache(ctx context.Context, k Kind, userID, v string) {
	if s.config.cache == nil {
		return
	}
	if err := s.writeCache(ctx, k, userID, v); err != nil {
		s.config.logger.Debug("cache backfill skipped", "op", "backfill", "kind", k.Name, "user_id", userID)
	}
}

func (s *Syncer) notify(ctx context.Context, change Change) {
	if s.config.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.tierTimeout)
	defer cancel()
	if err := s.config.notifier.Notify(ctx, change); err != nil {
		s.config.logger.Warn("preference change notification failed",
			"op", "notify", "kind", change.Kind, "user_id", change.UserID, "error", err)
	}
}

func (s *Syncer) logTierError(e *TierError) {
	s.config.logger.Error("preference tier unavailable",
		"op", e.Op,
		"tier", e.Tier,
		"kind", e.Kind,
		"user_id", e.UserID,
		"error", e.Err,
	)
}

// Close releases the cache and store. Either may be nil.
func (s *Syncer) Close() error {
	var errs []error
	if s.config.cache != nil {
		errs = append(errs, s.config.cache.Close())
	}
	if s.config.store != nil {
		errs = append(errs, s.config.store.Close())
	}
	return errors.Join(errs...)
}
