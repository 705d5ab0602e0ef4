package encryption

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "this-is-a-32-byte-key-for-test!!"

// derivedKeyForTest computes the expected derived key for testing purposes
func derivedKeyForTest(keyMaterial []byte) []byte {
	hash := sha256.Sum256(keyMaterial)
	return hash[:]
}

func TestNewSealerFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		envValue  string
		errorType error
	}{
		{name: "valid key", envValue: testKey},
		{name: "key too short", envValue: "short", errorType: ErrInvalidKeyLength},
		{name: "empty key", envValue: "", errorType: ErrKeyNotFound},
		{name: "longer than minimum", envValue: strings.Repeat("a", MinKeyLength+10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvKeyName, tt.envValue)

			sealer, err := NewSealerFromEnv()
			if tt.errorType != nil {
				assert.ErrorIs(t, err, tt.errorType)
				assert.Nil(t, sealer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, derivedKeyForTest([]byte(tt.envValue)), sealer.key)
		})
	}
}

func TestNewSealer(t *testing.T) {
	tests := []struct {
		name      string
		key       []byte
		errorType error
	}{
		{name: "valid key", key: []byte(testKey)},
		{name: "exactly minimum length", key: []byte(strings.Repeat("a", MinKeyLength))},
		{name: "key too short", key: []byte("short"), errorType: ErrInvalidKeyLength},
		{name: "nil key", key: nil, errorType: ErrInvalidKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealer, err := NewSealer(tt.key)
			if tt.errorType != nil {
				assert.ErrorIs(t, err, tt.errorType)
				assert.Nil(t, sealer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, derivedKeyForTest(tt.key), sealer.key)
		})
	}
}

func TestSealOpen(t *testing.T) {
	sealer, err := NewSealer([]byte(testKey))
	require.NoError(t, err)

	for _, value := range []string{"dark", "pt-BR", "", "unicode 🌙"} {
		t.Run(value, func(t *testing.T) {
			sealed, err := sealer.Seal("theme", value)
			require.NoError(t, err)
			assert.NotContains(t, sealed, "=")
			assert.NotContains(t, sealed, "+")
			assert.NotContains(t, sealed, "/")
			if value != "" {
				assert.NotContains(t, sealed, value)
			}

			opened, err := sealer.Open("theme", sealed)
			require.NoError(t, err)
			assert.Equal(t, value, opened)
		})
	}
}

func TestSeal_NonceIsRandom(t *testing.T) {
	sealer, err := NewSealer([]byte(testKey))
	require.NoError(t, err)

	a, err := sealer.Seal("theme", "dark")
	require.NoError(t, err)
	b, err := sealer.Seal("theme", "dark")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpen_Rejects(t *testing.T) {
	sealer, err := NewSealer([]byte(testKey))
	require.NoError(t, err)
	other, err := NewSealer([]byte(strings.Repeat("b", MinKeyLength)))
	require.NoError(t, err)

	sealed, err := sealer.Seal("theme", "dark")
	require.NoError(t, err)

	tampered := []byte(sealed)
	if tampered[0] == 'A' {
		tampered[0] = 'B'
	} else {
		tampered[0] = 'A'
	}

	tests := []struct {
		name      string
		sealer    *Sealer
		cookie    string
		value     string
		errorType error
	}{
		{"not base64", sealer, "theme", "dark!", ErrOpenFailed},
		{"plaintext cookie", sealer, "theme", "dark", ErrInvalidCiphertext},
		{"too short", sealer, "theme", "AAAA", ErrInvalidCiphertext},
		{"other cookie name", sealer, "locale", sealed, ErrOpenFailed},
		{"other key", other, "theme", sealed, ErrOpenFailed},
		{"tampered", sealer, "theme", string(tampered), ErrOpenFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sealer.Open(tt.cookie, tt.value)
			assert.ErrorIs(t, err, tt.errorType)
		})
	}
}
