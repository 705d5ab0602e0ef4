package prefsync

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// pendingWrite is a cache or store write that failed during Set or Clear.
// Only the most recent write per user and kind is kept.
type pendingWrite struct {
	userID   string
	kind     string
	value    string
	clear    bool
	tiers    []Tier
	seq      uint64
	attempts int

	// started and finished are pendingSet counter values. A settled write
	// keeps the tiers it reached in tiers.
	started  uint64
	finished uint64
}

// pendingSet orders the cache and store writes for each user and kind.
//
// Every write takes a sequence number from begin and reports back through
// finish, whether it came from Set, Clear or a replay. While writes for a
// key overlap, settled remembers the newest one that finished so an older
// write landing late is either ignored (it failed) or redone with the newer
// value on the tiers it touched (it succeeded). The same redo applies when an
// older write finishes while a newer one is still running. Keys with no write
// in flight keep no bookkeeping beyond their queued entry.
type pendingSet struct {
	mu       sync.Mutex
	seq      uint64
	entries  map[string]*pendingWrite
	inflight map[string]int
	settled  map[string]pendingWrite
}

func newPendingSet() *pendingSet {
	return &pendingSet{
		entries:  make(map[string]*pendingWrite),
		inflight: make(map[string]int),
		settled:  make(map[string]pendingWrite),
	}
}

func pendingKey(userID, kind string) string {
	return CacheKey(kind, userID)
}

// begin registers a write for user and kind and returns its sequence number.
func (p *pendingSet) begin(userID, kind string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.inflight[pendingKey(userID, kind)]++
	return p.seq
}

// beginReplay registers a replay of w and returns the counter value it
// started at. It reports false when w is no longer the queued entry for its
// key.
func (p *pendingSet) beginReplay(w pendingWrite) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pendingKey(w.userID, w.kind)
	cur, ok := p.entries[key]
	if !ok || cur.seq != w.seq {
		return 0, false
	}
	p.seq++
	p.inflight[key]++
	return p.seq, true
}

// finish records the outcome of a write started with begin or beginReplay.
// written lists the tiers the write reached, failed the tiers it did not.
func (p *pendingSet) finish(w pendingWrite, written, failed []Tier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pendingKey(w.userID, w.kind)
	defer p.release(key)

	if newer, ok := p.newest(key); ok && newer.seq > w.seq {
		p.requeue(key, newer, written)
		return
	}
	// An older write that finished after w started may have landed on top
	// of it.
	if prev, ok := p.settled[key]; ok && prev.seq < w.seq && prev.finished > w.started {
		failed = mergeTiers(failed, prev.tiers)
	}

	if len(failed) == 0 {
		delete(p.entries, key)
	} else {
		cp := w
		cp.tiers = slices.Clone(failed)
		p.entries[key] = &cp
	}
	p.seq++
	cp := w
	cp.tiers = slices.Clone(written)
	cp.finished = p.seq
	p.settled[key] = cp
}

// discard removes w if it is still the queued entry for its key.
func (p *pendingSet) discard(w pendingWrite) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pendingKey(w.userID, w.kind)
	if cur, ok := p.entries[key]; ok && cur.seq == w.seq {
		delete(p.entries, key)
	}
}

// newest returns the newest known write for key, queued or settled.
func (p *pendingSet) newest(key string) (pendingWrite, bool) {
	var (
		best  pendingWrite
		found bool
	)
	if cur, ok := p.entries[key]; ok {
		best, found = *cur, true
	}
	if s, ok := p.settled[key]; ok && (!found || s.seq > best.seq) {
		best, found = s, true
	}
	return best, found
}

// requeue makes sure newer is written again to tiers, which an older write
// may have overwritten.
func (p *pendingSet) requeue(key string, newer pendingWrite, tiers []Tier) {
	if len(tiers) == 0 {
		return
	}
	if cur, ok := p.entries[key]; ok {
		if cur.seq == newer.seq {
			cur.tiers = mergeTiers(cur.tiers, tiers)
			return
		}
		tiers = mergeTiers(cur.tiers, tiers)
	}
	cp := newer
	cp.tiers = slices.Clone(tiers)
	cp.attempts = 0
	cp.started, cp.finished = 0, 0
	p.entries[key] = &cp
}

func (p *pendingSet) release(key string) {
	p.inflight[key]--
	if p.inflight[key] <= 0 {
		delete(p.inflight, key)
		delete(p.settled, key)
	}
}

func mergeTiers(a, b []Tier) []Tier {
	out := slices.Clone(a)
	for _, t := range b {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func (p *pendingSet) snapshot() []pendingWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pendingWrite, 0, len(p.entries))
	for _, w := range p.entries {
		cp := *w
		cp.tiers = slices.Clone(w.tiers)
		out = append(out, cp)
	}
	return out
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Pending reports how many user/kind pairs have cache or store writes
// waiting for reconciliation.
func (s *Syncer) Pending() int {
	return s.pending.len()
}

// ReconcileOnce replays every queued write against the tiers that rejected
// it and returns how many entries were fully repaired.
func (s *Syncer) ReconcileOnce(ctx context.Context) int {
	repaired := 0
	for _, w := range s.pending.snapshot() {
		if ctx.Err() != nil {
			break
		}
		k, ok := s.Kind(w.kind)
		if !ok {
			s.pending.discard(w)
			continue
		}
		started, ok := s.pending.beginReplay(w)
		if !ok {
			continue
		}
		w.started = started

		var written, remaining []Tier
		for _, tier := range w.tiers {
			if err := s.replay(ctx, k, w, tier); err != nil {
				remaining = append(remaining, tier)
			} else {
				written = append(written, tier)
			}
		}
		w.attempts++
		s.pending.finish(w, written, remaining)
		if len(remaining) == 0 {
			repaired++
			s.config.logger.Info("preference reconciled",
				"op", "reconcile", "kind", w.kind, "user_id", w.userID, "attempts", w.attempts)
		}
	}
	return repaired
}

func (s *Syncer) replay(ctx context.Context, k Kind, w pendingWrite, tier Tier) error {
	switch tier {
	case TierStore:
		if s.config.store == nil {
			return nil
		}
		if w.clear {
			return s.deleteStore(ctx, k, w.userID)
		}
		return s.writeStore(ctx, k, w.userID, w.value)
	case TierCache:
		if s.config.cache == nil {
			return nil
		}
		if w.clear {
			return s.deleteCache(ctx, k, w.userID)
		}
		return s.writeCache(ctx, k, w.userID, w.value)
	default:
		return nil
	}
}

// RunReconciler calls ReconcileOnce every interval until ctx is done. It
// returns ctx.Err() on shutdown.
func (s *Syncer) RunReconciler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("prefsync: reconcile interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.pending.len() == 0 {
				continue
			}
			s.ReconcileOnce(ctx)
		}
	}
}
