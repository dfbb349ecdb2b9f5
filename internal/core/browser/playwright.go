package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mapscraper/internal/core/crawlerr"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher starts one playwright driver per Launch; closing the
// returned Browser also stops the driver.
type PlaywrightLauncher struct{}

func NewPlaywrightLauncher() *PlaywrightLauncher { return &PlaywrightLauncher{} }

func (l *PlaywrightLauncher) Launch(opts LaunchOptions) (Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright run: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch: %w", err)
	}
	return &pwBrowser{pw: pw, browser: b}, nil
}

type pwBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (b *pwBrowser) NewContext(opts ContextOptions) (Context, error) {
	o := playwright.BrowserNewContextOptions{
		ExtraHttpHeaders: opts.Headers,
		Permissions:      opts.Permissions,
	}
	if opts.Viewport.Width > 0 {
		o.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	if opts.UserAgent != "" {
		o.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Locale != "" {
		o.Locale = playwright.String(opts.Locale)
	}
	if opts.TimezoneID != "" {
		o.TimezoneId = playwright.String(opts.TimezoneID)
	}
	if g := opts.Geolocation; g != nil {
		o.Geolocation = &playwright.Geolocation{
			Latitude:  g.Latitude,
			Longitude: g.Longitude,
			Accuracy:  playwright.Float(g.Accuracy),
		}
	}
	if p := opts.Proxy; p != nil {
		o.Proxy = &playwright.Proxy{Server: p.Server}
		if p.Username != "" {
			o.Proxy.Username = playwright.String(p.Username)
			o.Proxy.Password = playwright.String(p.Password)
		}
	}

	ctx, err := b.browser.NewContext(o)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	for _, script := range opts.InitScripts {
		if err := ctx.AddInitScript(playwright.Script{Content: playwright.String(script)}); err != nil {
			_ = ctx.Close()
			return nil, fmt.Errorf("add init script: %w", err)
		}
	}
	return &pwContext{ctx: ctx, viewport: opts.Viewport}, nil
}

func (b *pwBrowser) Close() error {
	err := b.browser.Close()
	if stopErr := b.pw.Stop(); err == nil {
		err = stopErr
	}
	return err
}

type pwContext struct {
	ctx      playwright.BrowserContext
	viewport Viewport
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &pwPage{page: p, viewport: c.viewport}, nil
}

func (c *pwContext) Close() error { return c.ctx.Close() }

type pwPage struct {
	page     playwright.Page
	viewport Viewport
}

func ms(d time.Duration) *float64 { return playwright.Float(float64(d.Milliseconds())) }

// wrap maps driver closed-target errors onto the shared sentinel.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTargetClosed) || crawlerr.IsPageClosed(err) {
		return fmt.Errorf("%s: %w: %v", op, crawlerr.ErrPageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func waitState(w WaitCondition) *playwright.WaitUntilState {
	switch w {
	case WaitLoad:
		return playwright.WaitUntilStateLoad
	case WaitNetworkIdle:
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateDomcontentloaded
	}
}

func (p *pwPage) Goto(url string, wait WaitCondition, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{WaitUntil: waitState(wait), Timeout: ms(timeout)})
	return wrap("goto", err)
}

func (p *pwPage) Content() (string, error) {
	html, err := p.page.Content()
	return html, wrap("content", err)
}

func (p *pwPage) URL() string    { return p.page.URL() }
func (p *pwPage) IsClosed() bool { return p.page.IsClosed() }

func (p *pwPage) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{Timeout: ms(timeout)})
	return wrap("wait for "+selector, err)
}

func (p *pwPage) Exists(selector string) (bool, error) {
	el, err := p.page.QuerySelector(selector)
	if err != nil {
		return false, wrap("query "+selector, err)
	}
	return el != nil, nil
}

func (p *pwPage) Click(selector string, timeout time.Duration) error {
	return wrap("click "+selector, p.page.Click(selector, playwright.PageClickOptions{Timeout: ms(timeout)}))
}

func (p *pwPage) Hover(selector string, timeout time.Duration) error {
	return wrap("hover "+selector, p.page.Hover(selector, playwright.PageHoverOptions{Timeout: ms(timeout)}))
}

func (p *pwPage) BoundingBox(selector string) (Box, error) {
	el, err := p.page.QuerySelector(selector)
	if err != nil {
		return Box{}, wrap("query "+selector, err)
	}
	if el == nil {
		return Box{}, fmt.Errorf("no element for %s", selector)
	}
	r, err := el.BoundingBox()
	if err != nil {
		return Box{}, wrap("bounding box", err)
	}
	if r == nil {
		return Box{}, fmt.Errorf("element %s not visible", selector)
	}
	return Box{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}, nil
}

func (p *pwPage) PressKey(key string) error {
	return wrap("press "+key, p.page.Keyboard().Press(key))
}

func (p *pwPage) MouseMove(x, y float64, steps int) error {
	if steps < 1 {
		steps = 1
	}
	return wrap("mouse move", p.page.Mouse().Move(x, y, playwright.MouseMoveOptions{Steps: playwright.Int(steps)}))
}

func (p *pwPage) Wheel(dx, dy float64) error {
	return wrap("wheel", p.page.Mouse().Wheel(dx, dy))
}

func (p *pwPage) Viewport() Viewport {
	if s := p.page.ViewportSize(); s != nil {
		return Viewport{Width: s.Width, Height: s.Height}
	}
	return p.viewport
}

const extractCardsScript = `() => {
	const feed = document.querySelector('div[role="feed"]');
	if (!feed) return "[]";
	let nodes = Array.from(feed.querySelectorAll('div[role="article"]'));
	if (nodes.length === 0) {
		nodes = Array.from(feed.querySelectorAll('a[href*="/maps/place/"]')).map(a => a.closest('div[jsaction]') || a.parentElement);
	}
	const out = [];
	for (const el of nodes) {
		if (!el) continue;
		const place = el.querySelector('a[href*="/maps/place/"]');
		const label = el.getAttribute('aria-label') || (place && place.getAttribute('aria-label')) || '';
		const links = Array.from(el.querySelectorAll('a[href]')).map(a => ({
			href: a.href || '',
			text: (a.getAttribute('aria-label') || a.innerText || '').trim(),
		}));
		out.push({label: label, href: place ? place.href : '', text: el.innerText || '', links: links});
	}
	return JSON.stringify(out);
}`

const scrollFeedScript = `(dy) => {
	const feed = document.querySelector('div[role="feed"]');
	if (!feed) return false;
	if (dy > 0) { feed.scrollBy(0, dy); } else { feed.scrollTop = feed.scrollHeight; }
	return true;
}`

const detailPanelScript = `() => {
	const root = document.querySelector('[role="main"]') || document.body;
	const tel = Array.from(root.querySelectorAll('a[href^="tel:"]')).map(a => a.getAttribute('href'));
	for (const b of root.querySelectorAll('[data-item-id^="phone:tel:"]')) {
		tel.push('tel:' + b.getAttribute('data-item-id').slice('phone:tel:'.length));
	}
	const mailto = Array.from(root.querySelectorAll('a[href^="mailto:"]')).map(a => a.getAttribute('href'));
	return JSON.stringify({tel: tel, mailto: mailto, text: root.innerText || ''});
}`

const siteKeyScript = `() => {
	const el = document.querySelector('.g-recaptcha[data-sitekey], [data-sitekey]');
	return el ? el.getAttribute('data-sitekey') : '';
}`

const injectTokenScript = `(token) => {
	const field = document.getElementById('g-recaptcha-response') || document.querySelector('[name="g-recaptcha-response"]');
	if (field) { field.innerHTML = token; field.value = token; }
	try {
		const clients = (window.___grecaptcha_cfg && window.___grecaptcha_cfg.clients) || {};
		for (const id of Object.keys(clients)) {
			const walk = (obj, depth) => {
				if (!obj || depth > 4) return;
				for (const k of Object.keys(obj)) {
					const v = obj[k];
					if (v && typeof v.callback === 'function') { v.callback(token); return; }
					if (typeof v === 'object') walk(v, depth + 1);
				}
			};
			walk(clients[id], 0);
		}
	} catch (e) {}
	return !!field;
}`

func (p *pwPage) evalJSON(op, script string, out interface{}) error {
	v, err := p.page.Evaluate(script)
	if err != nil {
		return wrap(op, err)
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%s: unexpected result %T", op, v)
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func (p *pwPage) ExtractListingCards() ([]RawCard, error) {
	var cards []RawCard
	if err := p.evalJSON("extract cards", extractCardsScript, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (p *pwPage) ScrollFeed(dy float64) error {
	v, err := p.page.Evaluate(scrollFeedScript, dy)
	if err != nil {
		return wrap("scroll feed", err)
	}
	if ok, _ := v.(bool); !ok {
		return errors.New("scroll feed: results feed not present")
	}
	return nil
}

func (p *pwPage) ExtractDetailPanel() (DetailPanel, error) {
	var d DetailPanel
	err := p.evalJSON("extract detail panel", detailPanelScript, &d)
	return d, err
}

func (p *pwPage) RecaptchaSiteKey() (string, error) {
	v, err := p.page.Evaluate(siteKeyScript)
	if err != nil {
		return "", wrap("site key", err)
	}
	key, _ := v.(string)
	return key, nil
}

func (p *pwPage) InjectCaptchaToken(token string) error {
	v, err := p.page.Evaluate(injectTokenScript, token)
	if err != nil {
		return wrap("inject token", err)
	}
	if ok, _ := v.(bool); !ok {
		return errors.New("inject token: response field not found")
	}
	return nil
}
