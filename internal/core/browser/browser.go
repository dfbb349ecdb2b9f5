// Package browser describes the headless browser capability the crawl engine
// drives, as a small set of interfaces with named page operations. The only
// production implementation is backed by playwright-go.
package browser

import "time"

type WaitCondition string

const (
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitLoad             WaitCondition = "load"
	WaitNetworkIdle      WaitCondition = "networkidle"
)

type LaunchOptions struct {
	Headless bool
	Args     []string
}

type Viewport struct {
	Width  int
	Height int
}

type Geolocation struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

type ProxyConfig struct {
	Server   string
	Username string
	Password string
}

// ContextOptions are applied when a browser context is created. InitScripts
// run before any document script on every page of the context.
type ContextOptions struct {
	Viewport    Viewport
	UserAgent   string
	Locale      string
	TimezoneID  string
	Headers     map[string]string
	Geolocation *Geolocation
	Permissions []string
	Proxy       *ProxyConfig
	InitScripts []string
}

type Launcher interface {
	Launch(opts LaunchOptions) (Browser, error)
}

type Browser interface {
	NewContext(opts ContextOptions) (Context, error)
	Close() error
}

type Context interface {
	NewPage() (Page, error)
	Close() error
}

// Link is an anchor as rendered on the page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// RawCard is one entry of the results feed before any parsing.
type RawCard struct {
	Label string `json:"label"`
	Href  string `json:"href"`
	Text  string `json:"text"`
	Links []Link `json:"links"`
}

// DetailPanel is the raw content of an opened listing panel.
type DetailPanel struct {
	TelHrefs    []string `json:"tel"`
	MailtoHrefs []string `json:"mailto"`
	Text        string   `json:"text"`
}

type Box struct {
	X, Y, Width, Height float64
}

// Page exposes generic primitives plus the fixed in-page queries the engine
// needs. Implementations return crawlerr.ErrPageUnavailable (wrapped) once the
// underlying handle has closed.
type Page interface {
	Goto(url string, wait WaitCondition, timeout time.Duration) error
	Content() (string, error)
	URL() string
	IsClosed() bool

	WaitForSelector(selector string, timeout time.Duration) error
	Exists(selector string) (bool, error)
	Click(selector string, timeout time.Duration) error
	Hover(selector string, timeout time.Duration) error
	BoundingBox(selector string) (Box, error)
	PressKey(key string) error
	MouseMove(x, y float64, steps int) error
	Wheel(dx, dy float64) error
	Viewport() Viewport

	// ExtractListingCards returns every card currently rendered in the feed.
	ExtractListingCards() ([]RawCard, error)
	// ScrollFeed scrolls the results feed by dy pixels, or to the bottom when dy <= 0.
	ScrollFeed(dy float64) error
	ExtractDetailPanel() (DetailPanel, error)
	RecaptchaSiteKey() (string, error)
	InjectCaptchaToken(token string) error
}
