// Package cookie implements the Tier 1 carrier on top of HTTP cookies.
//
// Each preference kind is stored in its own cookie named after the kind.
// Cookies are scoped to the whole site, sent on top-level navigation
// (SameSite=Lax) and kept for a year unless Config says otherwise.
package cookie

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pressograph/prefsync"
	"github.com/pressograph/prefsync/encryption"
)

// DefaultMaxAge is how long a preference cookie lives in the browser.
const DefaultMaxAge = 365 * 24 * time.Hour

// Config controls how a Jar writes cookies.
type Config struct {
	// Sealer, if set, encrypts every value. Cookies that fail to open are
	// read as absent.
	Sealer *encryption.Sealer
	// Secure forces the Secure attribute. Without it the attribute follows
	// the request scheme.
	Secure bool
	// TrustForwardedProto lets X-Forwarded-Proto decide the request scheme.
	// Enable it only behind a proxy that sets the header.
	TrustForwardedProto bool
	// HTTPOnly hides the cookies from page scripts.
	HTTPOnly bool
	// MaxAge defaults to DefaultMaxAge.
	MaxAge time.Duration
	// Domain is left empty for host-only cookies.
	Domain string
}

// Jar is a prefsync.Carrier bound to one request and its response.
// Values written during the request are visible to later reads on the
// same Jar, so a backfill followed by a read sees the new value.
type Jar struct {
	w   http.ResponseWriter
	r   *http.Request
	cfg Config

	mu      sync.Mutex
	overlay map[string]*string
}

var _ prefsync.Carrier = (*Jar)(nil)

// New returns a Jar that reads from r and writes to w.
func New(w http.ResponseWriter, r *http.Request, cfg Config) *Jar {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	return &Jar{w: w, r: r, cfg: cfg, overlay: make(map[string]*string)}
}

// Read returns the value of the cookie called name.
func (j *Jar) Read(name string) (string, bool) {
	j.mu.Lock()
	if v, ok := j.overlay[name]; ok {
		j.mu.Unlock()
		if v == nil {
			return "", false
		}
		return *v, true
	}
	j.mu.Unlock()

	if j.r == nil {
		return "", false
	}
	c, err := j.r.Cookie(name)
	if err != nil || c == nil {
		return "", false
	}
	raw := strings.TrimSpace(c.Value)
	if raw == "" {
		return "", false
	}
	if j.cfg.Sealer == nil {
		return raw, true
	}
	v, err := j.cfg.Sealer.Open(name, raw)
	if err != nil {
		return "", false
	}
	return v, true
}

// Write sets the cookie called name to value.
func (j *Jar) Write(name, value string) error {
	stored := value
	if j.cfg.Sealer != nil {
		sealed, err := j.cfg.Sealer.Seal(name, value)
		if err != nil {
			return err
		}
		stored = sealed
	}

	c := j.cookie(name, stored, int(j.cfg.MaxAge.Seconds()))
	if err := c.Valid(); err != nil {
		return err
	}
	if j.w != nil {
		http.SetCookie(j.w, c)
	}

	j.mu.Lock()
	j.overlay[name] = &value
	j.mu.Unlock()
	return nil
}

// Clear expires the cookie called name.
func (j *Jar) Clear(name string) {
	if j.w != nil {
		http.SetCookie(j.w, j.cookie(name, "", -1))
	}
	j.mu.Lock()
	j.overlay[name] = nil
	j.mu.Unlock()
}

func (j *Jar) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: j.cfg.HTTPOnly,
		Secure:   j.cfg.Secure || isHTTPS(j.r, j.cfg.TrustForwardedProto),
		SameSite: http.SameSiteLaxMode,
	}
}

func isHTTPS(r *http.Request, trustForwardedProto bool) bool {
	if r == nil {
		return false
	}
	if trustForwardedProto {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			first, _, _ := strings.Cut(proto, ",")
			return strings.EqualFold(strings.TrimSpace(first), "https")
		}
	}
	return r.TLS != nil
}
