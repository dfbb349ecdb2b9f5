// Package maps harvests business listings from the map search results view.
package maps

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mapscraper/internal/core/browser"
	"mapscraper/internal/core/crawlerr"
	"mapscraper/internal/core/detect"
	"mapscraper/internal/core/human"
	"mapscraper/internal/core/proxy"
	"mapscraper/internal/core/stealth"
	"mapscraper/internal/logger"
)

const (
	searchBaseURL = "https://www.google.com/maps/search/"

	feedSelector  = `div[role="feed"]`
	panelSelector = `[role="main"]`
	panelFallback = ".m6QErb"

	DefaultMaxScrolls  = 20
	DefaultDetectEvery = 5
)

var detailSettle = human.Range{Min: 1500 * time.Millisecond, Max: 2500 * time.Millisecond, Fixed: 1500 * time.Millisecond}

// Query is one search request.
type Query struct {
	Query      string
	Location   string
	MaxResults int
}

// Method is one way of producing listings for a query.
type Method interface {
	Name() string
	Scrape(ctx context.Context, q Query) ([]Listing, error)
}

// AttemptError wraps a method failure with the proxy that served it.
// ProxyFault is set when the failure should count against that proxy.
type AttemptError struct {
	Method     string
	Proxy      *proxy.Endpoint
	ProxyFault bool
	Err        error
}

func (e *AttemptError) Error() string { return e.Method + ": " + e.Err.Error() }
func (e *AttemptError) Unwrap() error { return e.Err }

// Engine holds the crawl methods in priority order.
type Engine struct {
	methods []Method
}

func NewEngine(methods ...Method) *Engine {
	return &Engine{methods: methods}
}

func (e *Engine) Methods() []Method { return e.methods }

// SearchURL builds the results URL for a query and optional location.
func SearchURL(query, location string) string {
	term := strings.TrimSpace(query)
	if loc := strings.TrimSpace(location); loc != "" {
		term += " in " + loc
	}
	return searchBaseURL + url.QueryEscape(term)
}

// SessionFactory opens a fingerprinted browser session.
type SessionFactory interface {
	CreateSession(ctx context.Context, location string) (*stealth.Session, error)
}

// ProxyReporter receives proxy health feedback.
type ProxyReporter interface {
	ReportSuccess(e *proxy.Endpoint)
}

// Checker inspects a page for detection and challenges.
type Checker interface {
	Check(ctx context.Context, page detect.Page) error
}

// BrowserMethod drives a local stealth browser through the search view.
type BrowserMethod struct {
	sessions SessionFactory
	proxies  ProxyReporter
	sim      *human.Simulator
	checker  Checker
	log      *logger.Logger

	MaxScrolls  int
	DetectEvery int
}

func NewBrowserMethod(sessions SessionFactory, proxies ProxyReporter, sim *human.Simulator, checker Checker) *BrowserMethod {
	return &BrowserMethod{
		sessions:    sessions,
		proxies:     proxies,
		sim:         sim,
		checker:     checker,
		log:         logger.New("MapsEngine"),
		MaxScrolls:  DefaultMaxScrolls,
		DetectEvery: DefaultDetectEvery,
	}
}

func (m *BrowserMethod) Name() string { return "stealth_playwright" }

func (m *BrowserMethod) fail(sess *stealth.Session, fault bool, err error) error {
	return &AttemptError{Method: m.Name(), Proxy: sess.Proxy, ProxyFault: fault, Err: err}
}

func (m *BrowserMethod) Scrape(ctx context.Context, q Query) ([]Listing, error) {
	sess, err := m.sessions.CreateSession(ctx, q.Location)
	if err != nil {
		return nil, &AttemptError{Method: m.Name(), Err: err}
	}
	defer func() {
		if err := sess.Close(); err != nil {
			m.log.LogWarnf("session close: %v", err)
		}
	}()
	page := sess.Page

	target := SearchURL(q.Query, q.Location)
	m.log.LogInfof("Navigating to %s", target)
	if err := m.sim.BeforeNavigation(ctx); err != nil {
		return nil, err
	}
	if err := page.Goto(target, browser.WaitNetworkIdle, 60*time.Second); err != nil {
		m.log.LogWarnf("networkidle navigation failed, retrying on domcontentloaded: %v", err)
		if err := page.Goto(target, browser.WaitDOMContentLoaded, 30*time.Second); err != nil {
			return nil, m.fail(sess, true, fmt.Errorf("goto failed: %w", err))
		}
	}
	if err := m.sim.AfterLoad(ctx); err != nil {
		return nil, err
	}
	if _, err := m.sim.DismissConsent(ctx, page); err != nil {
		return nil, err
	}

	if err := m.checker.Check(ctx, page); err != nil {
		return nil, m.fail(sess, crawlerr.IsSessionBlock(err), err)
	}

	results, err := m.harvest(ctx, page, q.MaxResults)
	if err != nil {
		return nil, m.fail(sess, crawlerr.IsSessionBlock(err), err)
	}
	m.log.LogInfof("Harvested %d listings, visiting detail panels", len(results))

	results = m.enrichDetails(ctx, page, results)
	if m.proxies != nil {
		m.proxies.ReportSuccess(sess.Proxy)
	}
	return results, nil
}

// harvest scrolls the results feed until max listings are loaded or the
// scroll budget is spent, checking for detection every DetectEvery scrolls.
func (m *BrowserMethod) harvest(ctx context.Context, page browser.Page, max int) ([]Listing, error) {
	if err := page.WaitForSelector(feedSelector, 10*time.Second); err != nil {
		if crawlerr.IsPageClosed(err) {
			return nil, err
		}
		m.log.LogWarnf("results feed not found, checking for detection: %v", err)
		if err := m.checker.Check(ctx, page); err != nil {
			return nil, err
		}
	}

	var results []Listing
	for scroll := 0; scroll < m.MaxScrolls; scroll++ {
		cards, err := page.ExtractListingCards()
		if err != nil {
			return nil, fmt.Errorf("extract listings: %w", err)
		}
		results = mergeNew(results, ParseCards(cards))
		if max > 0 && len(results) >= max {
			break
		}

		distance := float64(page.Viewport().Height) * 0.8
		if err := m.sim.ScrollFeed(ctx, page, distance); err != nil {
			if crawlerr.IsPageClosed(err) {
				return nil, err
			}
			m.log.LogWarnf("feed scroll failed: %v", err)
		}
		if err := m.sim.BetweenScrolls(ctx); err != nil {
			return nil, err
		}
		if (scroll+1)%m.DetectEvery == 0 {
			if err := m.checker.Check(ctx, page); err != nil {
				return nil, err
			}
		}
	}
	if max > 0 && len(results) > max {
		results = results[:max]
	}
	return results, nil
}

// enrichDetails opens each listing's detail panel to backfill phone and
// email. Failures stay with the listing; a closed page stops the pass and the
// remaining listings are returned as harvested.
func (m *BrowserMethod) enrichDetails(ctx context.Context, page browser.Page, results []Listing) []Listing {
	for i := range results {
		if ctx.Err() != nil || page.IsClosed() {
			m.log.LogWarnf("Page unavailable, returning %d listings without detail enrichment", len(results)-i)
			break
		}
		err := m.enrichListing(ctx, page, &results[i])
		if err == nil {
			if err := m.sim.BetweenActions(ctx); err != nil {
				break
			}
			continue
		}
		lerr := &crawlerr.ListingEnrichmentError{Listing: results[i].Name, Err: err}
		if crawlerr.IsPageClosed(err) {
			m.log.LogError("Page closed during detail enrichment, stopping", lerr)
			break
		}
		m.log.Warn().Err(lerr).Msg("detail enrichment failed")
	}
	return results
}

func quoteAttr(v string) string {
	return `"` + strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), `"`, `\"`) + `"`
}

// articleLinkSelector matches the links of the card whose aria-label is
// exactly name, so a name that prefixes another listing's name never opens
// that listing.
func articleLinkSelector(name string) string {
	return fmt.Sprintf(`[role="article"][aria-label=%s] a`, quoteAttr(name))
}

// listingSelector finds a clickable element for l, first by its card label
// and then by its place id.
func listingSelector(page browser.Page, l Listing) (string, error) {
	sel := articleLinkSelector(l.Name)
	ok, err := page.Exists(sel)
	if err != nil {
		return "", err
	}
	if ok {
		return sel, nil
	}
	if id := PlaceID(l.URL); id != "" {
		sel = fmt.Sprintf(`a[href*=%s]`, quoteAttr("/place/"+id+"/"))
		if ok, err := page.Exists(sel); err != nil {
			return "", err
		} else if ok {
			return sel, nil
		}
	}
	return "", errors.New("listing element not found")
}

func (m *BrowserMethod) enrichListing(ctx context.Context, page browser.Page, l *Listing) (err error) {
	sel, err := listingSelector(page, *l)
	if err != nil {
		return err
	}
	defer func() {
		if perr := page.PressKey("Escape"); perr != nil && err == nil && crawlerr.IsPageClosed(perr) {
			err = perr
		}
	}()

	if err := m.sim.Click(ctx, page, sel, 5*time.Second); err != nil {
		return fmt.Errorf("open detail panel: %w", err)
	}
	if err := page.WaitForSelector(panelSelector, 5*time.Second); err != nil {
		if crawlerr.IsPageClosed(err) {
			return err
		}
		if err := page.WaitForSelector(panelFallback, 3*time.Second); err != nil {
			return fmt.Errorf("detail panel did not appear: %w", err)
		}
	}
	if err := m.sim.Pause(ctx, detailSettle); err != nil {
		return err
	}

	panel, err := page.ExtractDetailPanel()
	if err != nil {
		return err
	}
	applyDetail(l, panel)
	return nil
}
