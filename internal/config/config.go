// Package config holds the typed host and relay configuration.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fruitsalade/hostyoself/internal/names"
)

// DefaultRelayURL is the public relay the host connects to by default.
const DefaultRelayURL = "https://hostyoself.com"

// Host holds the configuration of a hosting client.
type Host struct {
	// Relay origin, e.g. https://hostyoself.com
	RelayURL string

	// Registration identity (random when empty)
	Domain string
	Key    string

	// Local files and folders to serve
	Paths []string
	// Poll interval for new files in folders (0 disables watching)
	Watch time.Duration

	// Optional S3 source
	S3 S3
}

// S3 configures a bucket served alongside local paths.
type S3 struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether a bucket was configured.
func (s S3) Enabled() bool {
	return s.Bucket != ""
}

// DefaultHost returns a host configuration with defaults applied.
func DefaultHost() Host {
	return Host{
		RelayURL: DefaultRelayURL,
		Paths:    []string{"."},
		S3:       S3{Region: "us-east-1"},
	}
}

// Complete fills in a random domain and key when none were given and
// normalises the domain the same way the relay does.
func (h *Host) Complete() {
	if strings.TrimSpace(h.Domain) == "" {
		h.Domain = names.Domain()
	}
	h.Domain = names.NormalizeDomain(h.Domain)
	if h.Key == "" {
		h.Key = names.Key()
	}
	if h.RelayURL == "" {
		h.RelayURL = DefaultRelayURL
	}
	h.RelayURL = strings.TrimRight(h.RelayURL, "/")
	if len(h.Paths) == 0 && !h.S3.Enabled() {
		h.Paths = []string{"."}
	}
}

// Validate checks the host configuration.
func (h Host) Validate() error {
	if err := validateOrigin(h.RelayURL); err != nil {
		return fmt.Errorf("relay url: %w", err)
	}
	if h.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if strings.Contains(h.Domain, "/") {
		return fmt.Errorf("domain %q must not contain '/'", h.Domain)
	}
	if h.Key == "" {
		return fmt.Errorf("key is required")
	}
	if len(h.Paths) == 0 && !h.S3.Enabled() {
		return fmt.Errorf("nothing to serve: give a path or an S3 bucket")
	}
	if h.Watch < 0 {
		return fmt.Errorf("watch interval must not be negative")
	}
	return nil
}

// Relay holds the configuration of a relay server.
type Relay struct {
	// Public URL advertised to hosts
	PublicURL string
	Port      int
	// How long a fetch waits for a host reply
	FetchTimeout time.Duration
}

// DefaultRelay returns a relay configuration with defaults applied.
func DefaultRelay() Relay {
	return Relay{
		Port:         8010,
		FetchTimeout: 30 * time.Second,
	}
}

// Complete derives the public URL from the port when it is unset.
func (r *Relay) Complete() {
	if r.PublicURL == "" {
		r.PublicURL = fmt.Sprintf("http://localhost:%d", r.Port)
	}
	r.PublicURL = strings.TrimRight(r.PublicURL, "/")
	if r.FetchTimeout == 0 {
		r.FetchTimeout = 30 * time.Second
	}
}

// Validate checks the relay configuration.
func (r Relay) Validate() error {
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("port %d out of range", r.Port)
	}
	if err := validateOrigin(r.PublicURL); err != nil {
		return fmt.Errorf("public url: %w", err)
	}
	if r.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	return nil
}

// ListenAddr returns the address the relay listens on.
func (r Relay) ListenAddr() string {
	return fmt.Sprintf(":%d", r.Port)
}

func validateOrigin(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
