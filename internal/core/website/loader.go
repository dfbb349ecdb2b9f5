package website

import (
	"context"
	"fmt"
	"time"

	"mapscraper/internal/core/browser"
	"mapscraper/internal/core/crawlerr"
	"mapscraper/internal/core/human"
	"mapscraper/internal/core/maps"
	"mapscraper/internal/core/stealth"
)

var contentSettle = human.Range{Min: 1200 * time.Millisecond, Max: 2000 * time.Millisecond, Fixed: 1500 * time.Millisecond}

// BrowserLoader visits websites through a fingerprinted browser session, one
// session per website.
type BrowserLoader struct {
	sessions maps.SessionFactory
	sim      *human.Simulator
}

func NewBrowserLoader(sessions maps.SessionFactory, sim *human.Simulator) *BrowserLoader {
	return &BrowserLoader{sessions: sessions, sim: sim}
}

func (l *BrowserLoader) Name() string { return "browser" }

func (l *BrowserLoader) Open(ctx context.Context, location string) (Fetcher, error) {
	sess, err := l.sessions.CreateSession(ctx, location)
	if err != nil {
		return nil, err
	}
	return &browserFetcher{sess: sess, sim: l.sim}, nil
}

type browserFetcher struct {
	sess *stealth.Session
	sim  *human.Simulator
}

func (f *browserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	page := f.sess.Page
	if page.IsClosed() {
		return "", crawlerr.ErrPageUnavailable
	}
	if err := f.sim.BeforeNavigation(ctx); err != nil {
		return "", err
	}
	if err := page.Goto(url, browser.WaitNetworkIdle, 30*time.Second); err != nil {
		if crawlerr.IsPageClosed(err) {
			return "", err
		}
		if err := page.Goto(url, browser.WaitDOMContentLoaded, 20*time.Second); err != nil {
			return "", fmt.Errorf("goto %s: %w", url, err)
		}
	}
	if err := f.sim.Pause(ctx, contentSettle); err != nil {
		return "", err
	}
	return page.Content()
}

func (f *browserFetcher) Close() error { return f.sess.Close() }
