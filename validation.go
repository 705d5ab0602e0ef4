// validation.go
package prefsync

import (
	"fmt"
)

// validateKind checks a Kind before it is registered.
func validateKind(k Kind) error {
	if !isTokenName(k.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, k.Name)
	}
	if len(k.Allowed) == 0 {
		return fmt.Errorf("%w: %q has no allowed values", ErrInvalidKind, k.Name)
	}
	if _, ok := k.Valid(k.Default); !ok {
		return fmt.Errorf("%w: default %q is not an allowed value of %q", ErrInvalidKind, k.Default, k.Name)
	}
	return nil
}

// isTokenName reports whether s can serve as both a cookie name and a cache
// key namespace: non-empty, letters, digits, '-', '_' or '.'.
func isTokenName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// validateValue runs the kind's predicate on input from a caller.
func validateValue(k Kind, value string) (string, error) {
	v, ok := k.Valid(value)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a valid %s", ErrInvalidValue, value, k.Name)
	}
	return v, nil
}
