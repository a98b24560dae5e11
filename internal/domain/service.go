package domain

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// DefaultLivenessWindow is the maximum age of the last heartbeat for a
// service to be considered alive.
const DefaultLivenessWindow = 180 * time.Second

// Endpoint is the network identity of a service instance.
//
// Two deployment variants exist: a Host+Port pair or a single URL.
// Exactly one of them is set on a valid endpoint.
type Endpoint struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Key returns the unique identity of the endpoint.
// Two endpoints with the same key are the same service instance.
func (e Endpoint) Key() string {
	if e.URL != "" {
		return e.URL
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string { return e.Key() }

// Validate checks that the endpoint is well formed for one of the two variants.
func (e Endpoint) Validate() error {
	hasAddr := e.Host != "" || e.Port != 0
	switch {
	case e.URL != "" && hasAddr:
		return fmt.Errorf("%w: endpoint must be either host+port or url, not both", ErrInvalidInput)
	case e.URL != "":
		u, err := url.Parse(e.URL)
		if err != nil {
			return fmt.Errorf("%w: invalid url %q: %v", ErrInvalidInput, e.URL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: url %q must have a scheme and a host", ErrInvalidInput, e.URL)
		}
		return nil
	case e.Host == "":
		return fmt.Errorf("%w: endpoint host is required", ErrInvalidInput)
	case e.Port < 1 || e.Port > 65535:
		return fmt.Errorf("%w: endpoint port %d out of range", ErrInvalidInput, e.Port)
	}
	return nil
}

// Service is a registered service instance.
//
// A Service is uniquely identified by its Endpoint key; many services
// may share the same Name.
type Service struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is assigned on first registration and never changes.
	ID string `json:"id"`

	// Endpoint is the unique identity of the instance.
	Endpoint Endpoint `json:"endpoint"`

	// ─────────────────────────────
	// Description (last writer wins)
	// ─────────────────────────────

	// Name is the human readable service name, e.g. "billing.api".
	Name string `json:"name"`

	// ─────────────────────────────
	// Observation
	// ─────────────────────────────

	// FirstSeen is set once, when the record is created.
	FirstSeen time.Time `json:"first_seen"`

	// LastSeen is refreshed on every successful ping.
	LastSeen time.Time `json:"last_seen"`

	// LastKnownAlive is the liveness observed by the most recent sweep.
	// It is nil until the sweeper has seen the record once, and it is
	// never used to answer locate queries.
	LastKnownAlive *bool `json:"last_known_alive,omitempty"`
}

// IsAlive reports whether s pinged within window of now.
func IsAlive(s *Service, now time.Time, window time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Sub(s.LastSeen) <= window
}

// StatusLabel renders a liveness value the way incidents describe it.
func StatusLabel(alive bool) string {
	if alive {
		return "alive"
	}
	return "dead"
}
