package prefsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileOnce_RepairsFailedStoreWrite(t *testing.T) {
	ctx := context.Background()
	s, store, _, logger := newTestSyncer(t)
	store.FailUpsert(errors.New("db down"))

	res, err := s.Set(ctx, NewMemoryCarrier(nil), "theme", ThemeDark, "u1")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 1, s.Pending())

	assert.Zero(t, s.ReconcileOnce(ctx), "store is still down")
	assert.Equal(t, 1, s.Pending())

	store.FailUpsert(nil)
	assert.Equal(t, 1, s.ReconcileOnce(ctx))
	assert.Zero(t, s.Pending())

	v, ok := store.Value("u1", "theme")
	require.True(t, ok)
	assert.Equal(t, ThemeDark, v)
	assert.True(t, logger.Contains("preference reconciled"))
}

func TestReconcileOnce_OnlyReplaysFailedTiers(t *testing.T) {
	ctx := context.Background()
	s, _, cache, _ := newTestSyncer(t)
	cache.FailSet(errors.New("redis down"))

	_, err := s.Set(ctx, NewMemoryCarrier(nil), "theme", ThemeDark, "u1")
	require.NoError(t, err)

	cache.FailSet(nil)
	require.Equal(t, 1, s.ReconcileOnce(ctx))

	entry, ok := cache.Entry(CacheKey("theme", "u1"))
	require.True(t, ok)
	assert.Equal(t, ThemeDark, entry.value)
}

func TestReconcile_NewerSuccessfulWriteSupersedes(t *testing.T) {
	ctx := context.Background()
	s, store, _, _ := newTestSyncer(t)

	store.FailUpsert(errors.New("db down"))
	_, err := s.Set(ctx, NewMemoryCarrier(nil), "theme", ThemeDark, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, s.Pending())

	store.FailUpsert(nil)
	res, err := s.Set(ctx, NewMemoryCarrier(nil), "theme", ThemeLight, "u1")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Zero(t, s.Pending())

	s.ReconcileOnce(ctx)
	v, _ := store.Value("u1", "theme")
	assert.Equal(t, ThemeLight, v, "stale pending write must not resurface")
}

func TestReconcile_KeepsLatestFailedWrite(t *testing.T) {
	ctx := context.Background()
	s, store, _, _ := newTestSyncer(t)
	store.FailUpsert(errors.New("db down"))

	for _, v := range []string{ThemeDark, ThemeLight} {
		_, err := s.Set(ctx, NewMemoryCarrier(nil), "theme", v, "u1")
		require.NoError(t, err)
	}
	require.Equal(t, 1, s.Pending())

	store.FailUpsert(nil)
	s.ReconcileOnce(ctx)

	v, _ := store.Value("u1", "theme")
	assert.Equal(t, ThemeLight, v)
}

func TestReconcile_FailedClearIsReplayed(t *testing.T) {
	ctx := context.Background()
	s, store, _, _ := newTestSyncer(t)
	store.Put("u1", "theme", ThemeDark)
	store.FailDelete(errors.New("db down"))

	require.NoError(t, s.Clear(ctx, NewMemoryCarrier(nil), "theme", "u1"))
	require.Equal(t, 1, s.Pending())

	store.FailDelete(nil)
	require.Equal(t, 1, s.ReconcileOnce(ctx))
	_, ok := store.Value("u1", "theme")
	assert.False(t, ok)
}

// gatedStore holds the Upsert of one value until release is closed, then
// fails it with err (or lets it through when err is nil).
type gatedStore struct {
	*MockStore
	value   string
	err     error
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(value string, err error) *gatedStore {
	return &gatedStore{
		MockStore: NewMockStore(),
		value:     value,
		err:       err,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (g *gatedStore) Upsert(ctx context.Context, rec *Record) error {
	if rec.Value == g.value {
		close(g.entered)
		<-g.release
		if g.err != nil {
			return g.err
		}
	}
	return g.MockStore.Upsert(ctx, rec)
}

// setBehind starts a Set of the gated value and waits until it reaches the
// store, then runs a newer Set of newer and lets the first one finish.
func setBehind(t *testing.T, s *Syncer, store *gatedStore, newer string) (older, latest Result) {
	t.Helper()
	ctx := context.Background()

	done := make(chan Result, 1)
	go func() {
		res, err := s.Set(ctx, NewMemoryCarrier(nil), "theme", store.value, "u1")
		assert.NoError(t, err)
		done <- res
	}()
	<-store.entered

	latest, err := s.Set(ctx, NewMemoryCarrier(nil), "theme", newer, "u1")
	require.NoError(t, err)
	close(store.release)
	return <-done, latest
}

func TestReconcile_LateFailureOfOlderWriteIsNotReplayed(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore(ThemeLight, errors.New("db down"))
	s, _, cache, _ := newTestSyncer(t, WithStore(store))

	older, latest := setBehind(t, s, store, ThemeDark)
	require.False(t, older.Success)
	require.True(t, latest.Success)

	s.ReconcileOnce(ctx)

	v, ok := store.Value("u1", "theme")
	require.True(t, ok)
	assert.Equal(t, ThemeDark, v)
	entry, ok := cache.Entry(CacheKey("theme", "u1"))
	require.True(t, ok)
	assert.Equal(t, ThemeDark, entry.value)
	assert.Zero(t, s.Pending())
}

func TestReconcile_LateSuccessOfOlderWriteIsRepaired(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore(ThemeLight, nil)
	s, _, _, _ := newTestSyncer(t, WithStore(store))

	older, latest := setBehind(t, s, store, ThemeDark)
	require.True(t, older.Success)
	require.True(t, latest.Success)

	v, _ := store.Value("u1", "theme")
	require.Equal(t, ThemeLight, v, "older upsert landed last")
	require.Equal(t, 1, s.Pending())

	require.Equal(t, 1, s.ReconcileOnce(ctx))
	v, _ = store.Value("u1", "theme")
	assert.Equal(t, ThemeDark, v)
	assert.Zero(t, s.Pending())
}

func TestPendingSet_Ordering(t *testing.T) {
	p := newPendingSet()

	first := p.begin("u1", "theme")
	second := p.begin("u1", "theme")
	require.Less(t, first, second)

	p.finish(pendingWrite{userID: "u1", kind: "theme", value: ThemeDark, seq: second}, []Tier{TierStore, TierCache}, nil)
	assert.Zero(t, p.len())

	// The older write failed everywhere: nothing to redo.
	p.finish(pendingWrite{userID: "u1", kind: "theme", value: ThemeLight, seq: first}, nil, []Tier{TierStore, TierCache})
	assert.Zero(t, p.len())
	assert.Empty(t, p.inflight)
	assert.Empty(t, p.settled)

	third := p.begin("u1", "theme")
	p.finish(pendingWrite{userID: "u1", kind: "theme", value: ThemeLight, seq: third}, []Tier{TierCache}, []Tier{TierStore})
	snap := p.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, ThemeLight, snap[0].value)
	assert.Equal(t, []Tier{TierStore}, snap[0].tiers)

	// A replay only starts while its entry is still queued.
	_, ok := p.beginReplay(pendingWrite{userID: "u1", kind: "theme", seq: first})
	assert.False(t, ok)
	w := snap[0]
	w.started, ok = p.beginReplay(w)
	require.True(t, ok)
	w.attempts++
	p.finish(w, nil, w.tiers)
	assert.Equal(t, 1, p.snapshot()[0].attempts)

	w = snap[0]
	w.started, ok = p.beginReplay(w)
	require.True(t, ok)
	p.finish(w, w.tiers, nil)
	assert.Zero(t, p.len())
	assert.Empty(t, p.inflight)
}

func TestPendingSet_OlderWriteFinishingFirstIsRedone(t *testing.T) {
	p := newPendingSet()

	older := p.begin("u1", "theme")
	newer := p.begin("u1", "theme")

	// The older write lands after the newer one started but finishes first.
	p.finish(pendingWrite{userID: "u1", kind: "theme", value: ThemeLight, seq: older, started: older}, []Tier{TierStore}, nil)
	assert.Zero(t, p.len())

	p.finish(pendingWrite{userID: "u1", kind: "theme", value: ThemeDark, seq: newer, started: newer}, []Tier{TierStore, TierCache}, nil)
	snap := p.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, ThemeDark, snap[0].value)
	assert.Equal(t, []Tier{TierStore}, snap[0].tiers)
	assert.Empty(t, p.settled)

	// A write that starts after the older one settled is not affected.
	p = newPendingSet()
	older = p.begin("u1", "theme")
	hold := p.begin("u1", "theme")
	p.finish(pendingWrite{userID: "u1", kind: "theme", value: ThemeLight, seq: older, started: older}, []Tier{TierStore}, nil)
	later := p.begin("u1", "theme")
	p.finish(pendingWrite{userID: "u1", kind: "theme", value: ThemeDark, seq: later, started: later}, []Tier{TierStore, TierCache}, nil)
	assert.Zero(t, p.len())
	p.finish(pendingWrite{userID: "u1", kind: "theme", value: ThemeSystem, seq: hold, started: hold}, nil, nil)
	assert.Zero(t, p.len())
}

func TestRunReconciler(t *testing.T) {
	s, store, _, _ := newTestSyncer(t)
	store.FailUpsert(errors.New("db down"))
	_, err := s.Set(context.Background(), NewMemoryCarrier(nil), "theme", ThemeDark, "u1")
	require.NoError(t, err)
	store.FailUpsert(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunReconciler(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunReconciler did not stop after cancel")
	}
}

func TestRunReconciler_RejectsNonPositiveInterval(t *testing.T) {
	s, _, _, _ := newTestSyncer(t)
	assert.Error(t, s.RunReconciler(context.Background(), 0))
}
