// Package stealth builds fingerprinted browser sessions.
package stealth

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"mapscraper/internal/core/browser"
	"mapscraper/internal/core/proxy"
	"mapscraper/internal/logger"
)

const geoJitter = 0.01

// Fingerprint is what a session presents to visited sites.
type Fingerprint struct {
	Family         Family
	Viewport       browser.Viewport
	UserAgent      string
	Locale         string
	AcceptLanguage string
	TimezoneID     string
	Geolocation    *browser.Geolocation
	Headers        map[string]string
}

// ProxySource hands out proxies for new sessions.
type ProxySource interface {
	Next() *proxy.Endpoint
}

type Options struct {
	Headless bool
	Stealth  bool
	Family   Family
}

type Factory struct {
	launcher browser.Launcher
	proxies  ProxySource
	opts     Options
	log      *logger.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	lastUA string
}

func NewFactory(launcher browser.Launcher, proxies ProxySource, opts Options) *Factory {
	return NewFactoryWithSource(launcher, proxies, opts, rand.NewSource(time.Now().UnixNano()))
}

func NewFactoryWithSource(launcher browser.Launcher, proxies ProxySource, opts Options, src rand.Source) *Factory {
	if opts.Family == "" {
		opts.Family = FamilyChrome
	}
	return &Factory{
		launcher: launcher,
		proxies:  proxies,
		opts:     opts,
		log:      logger.New("StealthFactory"),
		rng:      rand.New(src),
	}
}

func (f *Factory) StealthEnabled() bool { return f.opts.Stealth }

// nextUserAgent never returns the previously returned value while the pool
// has more than one entry.
func (f *Factory) nextUserAgent() (Family, string) {
	family := f.opts.Family
	if family == FamilyRandom {
		families := []Family{FamilyChrome, FamilyFirefox, FamilyEdge}
		family = families[f.rng.Intn(len(families))]
	}
	candidates := make([]string, 0, len(userAgents[family]))
	for _, ua := range userAgents[family] {
		if ua != f.lastUA {
			candidates = append(candidates, ua)
		}
	}
	if len(candidates) == 0 {
		candidates = userAgents[family]
	}
	ua := candidates[f.rng.Intn(len(candidates))]
	f.lastUA = ua
	return family, ua
}

// Fingerprint draws a fresh fingerprint localized to location.
func (f *Factory) Fingerprint(location string) Fingerprint {
	f.mu.Lock()
	defer f.mu.Unlock()

	vp := Viewports[f.rng.Intn(len(Viewports))]
	family, ua := f.nextUserAgent()
	region, _ := LookupRegion(location)

	fp := Fingerprint{
		Family:         family,
		Viewport:       browser.Viewport{Width: vp[0], Height: vp[1]},
		UserAgent:      ua,
		AcceptLanguage: region.AcceptLanguage,
		Locale:         LocaleFor(region.AcceptLanguage),
		TimezoneID:     region.Timezone,
		Headers:        Headers(family, region.AcceptLanguage),
	}
	if region.Latitude != 0 || region.Longitude != 0 {
		fp.Geolocation = &browser.Geolocation{
			Latitude:  region.Latitude + (f.rng.Float64()*2-1)*geoJitter,
			Longitude: region.Longitude + (f.rng.Float64()*2-1)*geoJitter,
			Accuracy:  float64(10 + f.rng.Intn(91)),
		}
	}
	return fp
}

// Session is one browser, context and page for a single crawl attempt.
type Session struct {
	Page        browser.Page
	Proxy       *proxy.Endpoint
	Fingerprint Fingerprint

	browser browser.Browser
	context browser.Context
	once    sync.Once
	err     error
}

// Close releases the context and the browser. It is safe to call twice.
func (s *Session) Close() error {
	s.once.Do(func() {
		if s.context != nil {
			s.err = s.context.Close()
		}
		if s.browser != nil {
			if err := s.browser.Close(); s.err == nil {
				s.err = err
			}
		}
	})
	return s.err
}

func (f *Factory) contextOptions(fp Fingerprint, ep *proxy.Endpoint) browser.ContextOptions {
	opts := browser.ContextOptions{
		Viewport:    fp.Viewport,
		UserAgent:   fp.UserAgent,
		Locale:      fp.Locale,
		TimezoneID:  fp.TimezoneID,
		Headers:     fp.Headers,
		Geolocation: fp.Geolocation,
	}
	if fp.Geolocation != nil {
		opts.Permissions = []string{"geolocation"}
	}
	if ep != nil {
		opts.Proxy = ep.BrowserConfig()
	}
	if f.opts.Stealth {
		opts.InitScripts = InitScripts(fp.AcceptLanguage)
	}
	return opts
}

// CreateSession launches a browser and opens a fingerprinted page. A context
// that cannot be created through the selected proxy is retried without one.
func (f *Factory) CreateSession(ctx context.Context, location string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := BasicLaunchArgs
	if f.opts.Stealth {
		args = LaunchArgs
	}
	b, err := f.launcher.Launch(browser.LaunchOptions{Headless: f.opts.Headless, Args: args})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	fp := f.Fingerprint(location)
	var ep *proxy.Endpoint
	if f.proxies != nil {
		ep = f.proxies.Next()
	}

	bctx, err := b.NewContext(f.contextOptions(fp, ep))
	if err != nil && ep != nil {
		f.log.Warn().Err(err).Str("proxy", ep.URL).Msg("context with proxy failed, continuing without proxy")
		ep = nil
		bctx, err = b.NewContext(f.contextOptions(fp, nil))
	}
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}

	f.log.Debug().
		Str("ua", fp.UserAgent).
		Int("width", fp.Viewport.Width).
		Str("timezone", fp.TimezoneID).
		Bool("proxy", ep != nil).
		Msg("session created")
	return &Session{Page: page, Proxy: ep, Fingerprint: fp, browser: b, context: bctx}, nil
}
