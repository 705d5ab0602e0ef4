package prefsync

import (
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// Kind describes one user-scoped preference: its name, the closed set of
// values it accepts, and the value reported when no tier holds one.
//
// The name doubles as the carrier cookie name and the cache key namespace.
type Kind struct {
	Name    string   `json:"name"`
	Default string   `json:"default"`
	Allowed []string `json:"allowed"`
	// Canonical, if set, normalizes a candidate before the membership check.
	// It reports false for input that cannot be normalized.
	Canonical func(string) (string, bool) `json:"-"`
}

// Valid is the single predicate shared by the read and write paths. It
// returns the canonical form of v and whether it belongs to the kind.
func (k Kind) Valid(v string) (string, bool) {
	if k.Canonical != nil {
		c, ok := k.Canonical(v)
		if !ok {
			return "", false
		}
		v = c
	}
	if !slices.Contains(k.Allowed, v) {
		return "", false
	}
	return v, true
}

const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// ThemeKind is the color scheme preference. It defaults to following the
// operating system.
func ThemeKind() Kind {
	return Kind{
		Name:    "theme",
		Default: ThemeSystem,
		Allowed: []string{ThemeLight, ThemeDark, ThemeSystem},
		Canonical: func(v string) (string, bool) {
			return strings.ToLower(strings.TrimSpace(v)), true
		},
	}
}

// SupportedLocales lists the locales the interface ships translations for.
var SupportedLocales = []language.Tag{
	language.AmericanEnglish,
	language.BrazilianPortuguese,
	language.EuropeanSpanish,
	language.German,
}

// LocaleKind is the interface language preference. Candidates are parsed as
// BCP 47 tags so "pt-br" and "pt-BR" name the same value.
func LocaleKind() Kind {
	allowed := make([]string, 0, len(SupportedLocales))
	for _, tag := range SupportedLocales {
		allowed = append(allowed, tag.String())
	}
	return Kind{
		Name:    "locale",
		Default: language.AmericanEnglish.String(),
		Allowed: allowed,
		Canonical: func(v string) (string, bool) {
			tag, err := language.Parse(strings.TrimSpace(v))
			if err != nil {
				return "", false
			}
			return tag.String(), true
		},
	}
}
