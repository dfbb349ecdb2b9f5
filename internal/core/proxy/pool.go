package proxy

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"mapscraper/internal/config"
	"mapscraper/internal/core/browser"
)

// MaxFailures is the failure count at which an endpoint is skipped during rotation.
const MaxFailures = 3

// Endpoint is one proxy with its health counters. Counters are owned by the
// Pool; read them through Pool.Snapshot.
type Endpoint struct {
	URL      string
	Username string
	Password string

	failureCount int
	lastUsedAt   time.Time
}

// AuthURL returns the proxy URL with credentials embedded, when present.
func (e *Endpoint) AuthURL() string {
	if e.Username == "" {
		return e.URL
	}
	u, err := url.Parse(e.URL)
	if err != nil || u.Host == "" {
		return e.URL
	}
	u.User = url.UserPassword(e.Username, e.Password)
	return u.String()
}

// BrowserConfig returns the proxy as passed to browser context creation.
func (e *Endpoint) BrowserConfig() *browser.ProxyConfig {
	return &browser.ProxyConfig{Server: e.URL, Username: e.Username, Password: e.Password}
}

// State is a read-only copy of an endpoint's counters. URL is reduced to
// scheme and host.
type State struct {
	URL          string    `json:"url"`
	FailureCount int       `json:"failure_count"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

// Redact reduces a proxy URL to scheme and host.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "redacted"
	}
	return u.Scheme + "://" + u.Host
}

// splitCredentials moves userinfo embedded in the URL into the entry's
// username and password; explicit credentials win.
func splitCredentials(e config.ProxyEntry) config.ProxyEntry {
	u, err := url.Parse(e.URL)
	if err != nil || u.User == nil {
		return e
	}
	if e.Username == "" {
		e.Username = u.User.Username()
		e.Password, _ = u.User.Password()
	}
	u.User = nil
	e.URL = u.String()
	return e
}

type Pool struct {
	mu     sync.Mutex
	items  []*Endpoint
	rotate bool
	next   int
	now    func() time.Time
}

func NewPool(entries []config.ProxyEntry, rotate bool) *Pool {
	p := &Pool{rotate: rotate, now: time.Now}
	seen := make(map[string]bool)
	for _, e := range entries {
		e = splitCredentials(e)
		if e.URL == "" || seen[e.URL] {
			continue
		}
		seen[e.URL] = true
		p.items = append(p.items, &Endpoint{URL: e.URL, Username: e.Username, Password: e.Password})
	}
	return p
}

// Load builds a pool from every proxy source in cfg.
func Load(cfg config.Config) (*Pool, error) {
	entries, err := cfg.ProxyEntries()
	if err != nil {
		return nil, err
	}
	return NewPool(entries, cfg.ProxyRotationEnabled), nil
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *Pool) RotationEnabled() bool { return p.rotate }

// Next returns the endpoint to use for the next session, or nil when the pool
// is empty. Without rotation the first endpoint is always returned. With
// rotation endpoints are visited round-robin skipping those at MaxFailures;
// when every endpoint is at the limit all counters reset and the first
// endpoint is returned.
func (p *Pool) Next() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return nil
	}
	if !p.rotate {
		return p.use(p.items[0])
	}
	for i := 0; i < len(p.items); i++ {
		e := p.items[p.next]
		p.next = (p.next + 1) % len(p.items)
		if e.failureCount < MaxFailures {
			return p.use(e)
		}
	}
	for _, e := range p.items {
		e.failureCount = 0
	}
	p.next = 1 % len(p.items)
	return p.use(p.items[0])
}

func (p *Pool) use(e *Endpoint) *Endpoint {
	e.lastUsedAt = p.now()
	return e
}

func (p *Pool) ReportFailure(e *Endpoint) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e.failureCount++
}

func (p *Pool) ReportSuccess(e *Endpoint) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.failureCount > 0 {
		e.failureCount--
	}
}

func (p *Pool) Snapshot() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]State, 0, len(p.items))
	for _, e := range p.items {
		out = append(out, State{URL: Redact(e.URL), FailureCount: e.failureCount, LastUsedAt: e.lastUsedAt})
	}
	return out
}

// HealthCheck fails when proxies are configured and every one of them is at
// MaxFailures.
func (p *Pool) HealthCheck(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return nil
	}
	for _, e := range p.items {
		if e.failureCount < MaxFailures {
			return nil
		}
	}
	return errors.New("all proxies exhausted")
}
