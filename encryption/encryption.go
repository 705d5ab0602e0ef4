// Package encryption seals preference values before they are written to the
// client-side carrier, so a cookie can be neither read nor forged by the
// browser that holds it.
//
// Values are sealed with AES-256-GCM. The cookie name is bound as additional
// data, which keeps a sealed "theme" value from being replayed as "locale".
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// MinKeyLength is the minimum length of the secret a Sealer is built from.
	MinKeyLength = 32
	// EnvKeyName is the environment variable read by NewSealerFromEnv.
	EnvKeyName = "PREFSYNC_COOKIE_KEY"
)

var (
	ErrInvalidKeyLength  = errors.New("cookie key must be at least 32 bytes")
	ErrKeyNotFound       = errors.New("cookie key not found in environment variable " + EnvKeyName)
	ErrSealFailed        = errors.New("seal operation failed")
	ErrOpenFailed        = errors.New("open operation failed")
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short or malformed")
)

// Sealer encrypts and authenticates carrier values. It is safe for
// concurrent use.
type Sealer struct {
	key  []byte
	aead cipher.AEAD
}

// NewSealerFromEnv builds a Sealer from EnvKeyName.
func NewSealerFromEnv() (*Sealer, error) {
	keyStr := os.Getenv(EnvKeyName)
	if keyStr == "" {
		return nil, ErrKeyNotFound
	}
	return NewSealer([]byte(keyStr))
}

// NewSealer derives an AES-256 key from secret with SHA-256.
func NewSealer(secret []byte) (*Sealer, error) {
	if err := ValidateKey(secret); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(secret)
	key := sum[:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cipher: %v", ErrSealFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCM: %v", ErrSealFailed, err)
	}
	return &Sealer{key: key, aead: aead}, nil
}

// ValidateKey reports whether secret is long enough to build a Sealer.
func ValidateKey(secret []byte) error {
	if len(secret) < MinKeyLength {
		return fmt.Errorf("%w: got %d bytes, need at least %d", ErrInvalidKeyLength, len(secret), MinKeyLength)
	}
	return nil
}

// Seal encrypts value for the cookie called name and returns URL-safe
// base64 with the nonce prepended.
func (s *Sealer) Seal(name, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: failed to generate nonce: %v", ErrSealFailed, err)
	}

	ciphertext := s.aead.Seal(nonce, nonce, []byte(value), []byte(name))
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal. It fails if sealed was produced for another name,
// with another key, or was modified.
func (s *Sealer) Open(name, sealed string) (string, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrOpenFailed, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize+s.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	return string(plaintext), nil
}
