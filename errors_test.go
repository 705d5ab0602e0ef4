package prefsync

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorVariables(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrInvalidInput", ErrInvalidInput, "invalid input parameters"},
		{"ErrInvalidKind", ErrInvalidKind, "invalid preference kind"},
		{"ErrUnknownKind", ErrUnknownKind, "preference kind not defined"},
		{"ErrInvalidValue", ErrInvalidValue, "invalid preference value"},
		{"ErrNotFound", ErrNotFound, "preference not found"},
		{"ErrStorageUnavailable", ErrStorageUnavailable, "storage backend unavailable"},
		{"ErrCacheUnavailable", ErrCacheUnavailable, "cache backend unavailable"},
		{"ErrCarrierUnavailable", ErrCarrierUnavailable, "request carrier unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected error message '%s', got '%s'", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestTierError(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:6379: i/o timeout")

	tests := []struct {
		tier     Tier
		sentinel error
	}{
		{TierCache, ErrCacheUnavailable},
		{TierStore, ErrStorageUnavailable},
		{TierCarrier, ErrCarrierUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			err := error(&TierError{Op: "get", Tier: tt.tier, Kind: "theme", UserID: "user-42", Err: cause})

			if !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected %v to match %v", err, tt.sentinel)
			}
			if !errors.Is(err, cause) {
				t.Errorf("Expected %v to wrap its cause", err)
			}
			msg := err.Error()
			for _, part := range []string{string(tt.tier), "get", `kind="theme"`, `user="user-42"`, "i/o timeout"} {
				if !strings.Contains(msg, part) {
					t.Errorf("Expected error message %q to contain %q", msg, part)
				}
			}
		})
	}
}

func TestTierError_JoinedKeepsBothSentinels(t *testing.T) {
	err := errors.Join(
		&TierError{Op: "upsert", Tier: TierStore, Err: errors.New("db")},
		&TierError{Op: "set", Tier: TierCache, Err: errors.New("redis")},
	)
	if !errors.Is(err, ErrStorageUnavailable) || !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Expected joined error to match both tier sentinels, got: %v", err)
	}
}
