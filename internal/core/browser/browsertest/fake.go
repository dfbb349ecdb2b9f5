// Package browsertest provides scripted in-memory browser fakes for tests.
package browsertest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mapscraper/internal/core/browser"
	"mapscraper/internal/core/crawlerr"
)

// Page is a scripted browser.Page. Zero values behave like an empty, open page.
type Page struct {
	mu sync.Mutex

	// Sites maps a URL to the HTML served after Goto. Unknown URLs serve HTML.
	Sites map[string]string
	HTML  string
	// ContentFunc, when set, overrides Sites and HTML.
	ContentFunc func(call int) (string, error)
	GotoErr     map[string]error

	// Cards[i] is returned after i scrolls to the feed bottom; the last entry repeats.
	Cards [][]browser.RawCard
	// Panels maps a clicked selector to the detail panel it opens.
	Panels map[string]browser.DetailPanel
	// Missing selectors fail WaitForSelector, Click and Exists.
	Missing map[string]bool
	// CloseAfterClicks closes the page once this many clicks happened (0 disables).
	CloseAfterClicks int

	SiteKey       string
	InjectedToken string
	Size          browser.Viewport

	closed       bool
	url          string
	scrolls      int
	contentCalls int
	clicks       int
	lastClick    string
	Calls        []string
}

func (p *Page) record(format string, args ...interface{}) {
	p.Calls = append(p.Calls, fmt.Sprintf(format, args...))
}

func (p *Page) closedErr(op string) error {
	return fmt.Errorf("%s: %w", op, crawlerr.ErrPageUnavailable)
}

// Close marks the page closed; later operations fail with ErrPageUnavailable.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *Page) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

func (p *Page) Clicks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks
}

// Called reports how many recorded calls start with prefix.
func (p *Page) Called(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (p *Page) Goto(url string, wait browser.WaitCondition, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("goto %s", url)
	if p.closed {
		return p.closedErr("goto")
	}
	if err := p.GotoErr[url]; err != nil {
		return err
	}
	p.url = url
	return nil
}

func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", p.closedErr("content")
	}
	p.contentCalls++
	if p.ContentFunc != nil {
		return p.ContentFunc(p.contentCalls)
	}
	if html, ok := p.Sites[p.url]; ok {
		return html, nil
	}
	return p.HTML, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) WaitForSelector(selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("wait %s", selector)
	if p.closed {
		return p.closedErr("wait")
	}
	if p.Missing[selector] {
		return fmt.Errorf("timeout %s waiting for %s", timeout, selector)
	}
	return nil
}

func (p *Page) Exists(selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, p.closedErr("exists")
	}
	return !p.Missing[selector], nil
}

func (p *Page) Click(selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("click %s", selector)
	if p.closed {
		return p.closedErr("click")
	}
	if p.Missing[selector] {
		return fmt.Errorf("timeout %s clicking %s", timeout, selector)
	}
	p.clicks++
	p.lastClick = selector
	if p.CloseAfterClicks > 0 && p.clicks >= p.CloseAfterClicks {
		p.closed = true
	}
	return nil
}

func (p *Page) Hover(selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("hover %s", selector)
	if p.closed {
		return p.closedErr("hover")
	}
	return nil
}

func (p *Page) BoundingBox(selector string) (browser.Box, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return browser.Box{}, p.closedErr("bounding box")
	}
	if p.Missing[selector] {
		return browser.Box{}, errors.New("no element")
	}
	return browser.Box{X: 100, Y: 200, Width: 80, Height: 24}, nil
}

func (p *Page) PressKey(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("press %s", key)
	if p.closed {
		return p.closedErr("press")
	}
	return nil
}

func (p *Page) MouseMove(x, y float64, steps int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("move %.0f,%.0f", x, y)
	if p.closed {
		return p.closedErr("move")
	}
	return nil
}

func (p *Page) Wheel(dx, dy float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("wheel %.0f", dy)
	if p.closed {
		return p.closedErr("wheel")
	}
	return nil
}

func (p *Page) Viewport() browser.Viewport {
	if p.Size.Width == 0 {
		return browser.Viewport{Width: 1366, Height: 768}
	}
	return p.Size
}

func (p *Page) ExtractListingCards() ([]browser.RawCard, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, p.closedErr("extract cards")
	}
	if len(p.Cards) == 0 {
		return nil, nil
	}
	i := p.scrolls
	if i >= len(p.Cards) {
		i = len(p.Cards) - 1
	}
	return p.Cards[i], nil
}

func (p *Page) ScrollFeed(dy float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.closedErr("scroll feed")
	}
	if dy <= 0 {
		p.scrolls++
	}
	p.record("scroll %.0f", dy)
	return nil
}

func (p *Page) ExtractDetailPanel() (browser.DetailPanel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return browser.DetailPanel{}, p.closedErr("detail panel")
	}
	return p.Panels[p.lastClick], nil
}

func (p *Page) RecaptchaSiteKey() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.SiteKey, nil
}

func (p *Page) InjectCaptchaToken(token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InjectedToken = token
	return nil
}

// Launcher hands out Browsers whose contexts serve NewPageFunc pages and
// remembers every ContextOptions it was asked for.
type Launcher struct {
	mu          sync.Mutex
	LaunchErr   error
	ContextErr  func(opts browser.ContextOptions) error
	NewPageFunc func() *Page

	Launches  []browser.LaunchOptions
	Contexts  []browser.ContextOptions
	Pages     []*Page
	closeds   int
	ctxClosed int
}

func (l *Launcher) Launch(opts browser.LaunchOptions) (browser.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	l.Launches = append(l.Launches, opts)
	return &fakeBrowser{l: l}, nil
}

// Closed returns how many browsers and contexts were closed.
func (l *Launcher) Closed() (browsers, contexts int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeds, l.ctxClosed
}

type fakeBrowser struct{ l *Launcher }

func (b *fakeBrowser) NewContext(opts browser.ContextOptions) (browser.Context, error) {
	b.l.mu.Lock()
	defer b.l.mu.Unlock()
	if b.l.ContextErr != nil {
		if err := b.l.ContextErr(opts); err != nil {
			return nil, err
		}
	}
	b.l.Contexts = append(b.l.Contexts, opts)
	return &fakeContext{l: b.l}, nil
}

func (b *fakeBrowser) Close() error {
	b.l.mu.Lock()
	defer b.l.mu.Unlock()
	b.l.closeds++
	return nil
}

type fakeContext struct{ l *Launcher }

func (c *fakeContext) NewPage() (browser.Page, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	var p *Page
	if c.l.NewPageFunc != nil {
		p = c.l.NewPageFunc()
	} else {
		p = &Page{}
	}
	c.l.Pages = append(c.l.Pages, p)
	return p, nil
}

func (c *fakeContext) Close() error {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	c.l.ctxClosed++
	return nil
}
