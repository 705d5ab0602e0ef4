package prefsync

import (
	"testing"
	"time"
)

func TestOptions(t *testing.T) {
	store := NewMockStore()
	cache := NewMockCache()
	logger := &MockLogger{}
	notifier := &MockNotifier{}

	cfg := &Config{cacheTTL: DefaultCacheTTL, tierTimeout: DefaultTierTimeout, retries: DefaultRetries}
	for _, opt := range []Option{
		WithStore(store),
		WithCache(cache),
		WithLogger(logger),
		WithNotifier(notifier),
		WithCacheTTL(10 * time.Minute),
		WithTierTimeout(500 * time.Millisecond),
		WithBreaker(DefaultBreakerSettings()),
		WithKinds(ThemeKind()),
	} {
		opt(cfg)
	}

	if cfg.store != store || cfg.cache != cache || cfg.logger != logger || cfg.notifier != notifier {
		t.Errorf("Expected backends to be set by options")
	}
	if cfg.cacheTTL != 10*time.Minute {
		t.Errorf("Expected cacheTTL 10m, got %v", cfg.cacheTTL)
	}
	if cfg.tierTimeout != 500*time.Millisecond {
		t.Errorf("Expected tierTimeout 500ms, got %v", cfg.tierTimeout)
	}
	if cfg.breaker == nil || cfg.breaker.FailureThreshold != 5 {
		t.Errorf("Expected default breaker settings, got %+v", cfg.breaker)
	}
	if len(cfg.kinds) != 1 || cfg.kinds[0].Name != "theme" {
		t.Errorf("Expected theme kind, got %+v", cfg.kinds)
	}
}

func TestOptions_IgnoreNonPositiveDurations(t *testing.T) {
	cfg := &Config{cacheTTL: DefaultCacheTTL, tierTimeout: DefaultTierTimeout}
	WithCacheTTL(0)(cfg)
	WithTierTimeout(-time.Second)(cfg)

	if cfg.cacheTTL != DefaultCacheTTL {
		t.Errorf("Expected cacheTTL unchanged, got %v", cfg.cacheTTL)
	}
	if cfg.tierTimeout != DefaultTierTimeout {
		t.Errorf("Expected tierTimeout unchanged, got %v", cfg.tierTimeout)
	}
}

func TestWithRetries_Clamped(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-3, 0},
		{0, 0},
		{1, 1},
		{5, 1},
	}
	for _, tt := range tests {
		cfg := &Config{}
		WithRetries(tt.in)(cfg)
		if cfg.retries != tt.want {
			t.Errorf("WithRetries(%d) = %d, want %d", tt.in, cfg.retries, tt.want)
		}
	}
}

func TestMemoryCarrier(t *testing.T) {
	seed := map[string]string{"theme": "dark"}
	c := NewMemoryCarrier(seed)
	seed["theme"] = "light"

	if v, ok := c.Read("theme"); !ok || v != "dark" {
		t.Errorf("Expected carrier to copy its seed, got %q, %v", v, ok)
	}
	_ = c.Write("locale", "pt-BR")
	c.Clear("theme")

	if _, ok := c.Read("theme"); ok {
		t.Errorf("Expected theme to be cleared")
	}
	if v, _ := c.Read("locale"); v != "pt-BR" {
		t.Errorf("Expected locale pt-BR, got %q", v)
	}
	if c.Writes() != 2 {
		t.Errorf("Expected 2 writes, got %d", c.Writes())
	}
}
