// Package human produces randomized pacing and motion so browser sessions
// interact with pages at a human cadence.
package human

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"mapscraper/internal/core/browser"
)

// Range bounds a delay. Fixed is used instead when simulation is disabled.
type Range struct {
	Min   time.Duration
	Max   time.Duration
	Fixed time.Duration
}

var (
	NavigationDelay = Range{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond, Fixed: 0}
	PageLoadDelay   = Range{Min: 2 * time.Second, Max: 4 * time.Second, Fixed: 2 * time.Second}
	ScrollDelay     = Range{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond, Fixed: 500 * time.Millisecond}
	ClickDelay      = Range{Min: 300 * time.Millisecond, Max: 800 * time.Millisecond, Fixed: 500 * time.Millisecond}
	ActionDelay     = Range{Min: 1 * time.Second, Max: 2500 * time.Millisecond, Fixed: 1 * time.Second}
	TypingDelay     = Range{Min: 50 * time.Millisecond, Max: 150 * time.Millisecond, Fixed: 0}
	stepDelay       = Range{Min: 50 * time.Millisecond, Max: 150 * time.Millisecond, Fixed: 0}
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Simulator is safe for concurrent use.
type Simulator struct {
	enabled bool
	sleep   SleepFunc

	mu  sync.Mutex
	rng *rand.Rand
}

func New(enabled bool) *Simulator {
	return NewWithSource(enabled, rand.NewSource(time.Now().UnixNano()), Sleep)
}

func NewWithSource(enabled bool, src rand.Source, sleep SleepFunc) *Simulator {
	if sleep == nil {
		sleep = Sleep
	}
	return &Simulator{enabled: enabled, sleep: sleep, rng: rand.New(src)}
}

func (s *Simulator) Enabled() bool { return s.enabled }

// Delay samples a duration from a normal distribution centred on the middle
// of r with a standard deviation of a quarter of its width, clamped into r.
func (s *Simulator) Delay(r Range) time.Duration {
	if !s.enabled {
		return r.Fixed
	}
	if r.Max <= r.Min {
		return r.Min
	}
	mean := float64(r.Min+r.Max) / 2
	std := float64(r.Max-r.Min) / 4
	s.mu.Lock()
	v := s.rng.NormFloat64()*std + mean
	s.mu.Unlock()
	d := time.Duration(v)
	if d < r.Min {
		d = r.Min
	}
	if d > r.Max {
		d = r.Max
	}
	return d
}

func (s *Simulator) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Float64()*(hi-lo)
}

// Pause sleeps for a delay drawn from r.
func (s *Simulator) Pause(ctx context.Context, r Range) error {
	return s.sleep(ctx, s.Delay(r))
}

func (s *Simulator) BeforeNavigation(ctx context.Context) error { return s.Pause(ctx, NavigationDelay) }
func (s *Simulator) AfterLoad(ctx context.Context) error        { return s.Pause(ctx, PageLoadDelay) }
func (s *Simulator) BetweenScrolls(ctx context.Context) error   { return s.Pause(ctx, ScrollDelay) }
func (s *Simulator) BetweenClicks(ctx context.Context) error    { return s.Pause(ctx, ClickDelay) }
func (s *Simulator) BetweenActions(ctx context.Context) error   { return s.Pause(ctx, ActionDelay) }

// Steps returns how many sub-steps a motion is split into: 3 to 6 when
// enabled, 1 otherwise.
func (s *Simulator) Steps() int {
	if !s.enabled {
		return 1
	}
	return 3 + s.intn(4)
}

// FeedScroller scrolls a results container.
type FeedScroller interface {
	ScrollFeed(dy float64) error
}

// ScrollFeed scrolls the feed by distance pixels in jittered steps. With
// simulation disabled it jumps straight to the bottom of the feed.
func (s *Simulator) ScrollFeed(ctx context.Context, page FeedScroller, distance float64) error {
	if !s.enabled {
		return page.ScrollFeed(0)
	}
	steps := s.Steps()
	per := distance / float64(steps)
	for i := 0; i < steps; i++ {
		dy := per + s.uniform(-20, 20)
		if dy < 1 {
			dy = 1
		}
		if err := page.ScrollFeed(dy); err != nil {
			return err
		}
		if err := s.Pause(ctx, stepDelay); err != nil {
			return err
		}
	}
	return nil
}

// Wheeler scrolls the page viewport.
type Wheeler interface {
	Wheel(dx, dy float64) error
}

// Scroll scrolls the page by distance pixels with the mouse wheel.
func (s *Simulator) Scroll(ctx context.Context, page Wheeler, distance float64) error {
	if !s.enabled {
		return page.Wheel(0, distance)
	}
	steps := s.Steps()
	per := distance / float64(steps)
	for i := 0; i < steps; i++ {
		if err := page.Wheel(0, per+s.uniform(-20, 20)); err != nil {
			return err
		}
		if err := s.Pause(ctx, stepDelay); err != nil {
			return err
		}
	}
	return nil
}

// Clicker is the part of a page a click needs.
type Clicker interface {
	BoundingBox(selector string) (browser.Box, error)
	MouseMove(x, y float64, steps int) error
	Click(selector string, timeout time.Duration) error
}

// Click moves the mouse to a jittered point inside the element, pauses and
// clicks. Missing geometry falls back to a plain click.
func (s *Simulator) Click(ctx context.Context, page Clicker, selector string, timeout time.Duration) error {
	if !s.enabled {
		if err := page.Click(selector, timeout); err != nil {
			return err
		}
		return s.Pause(ctx, ClickDelay)
	}
	if box, err := page.BoundingBox(selector); err == nil && box.Width > 0 {
		x := box.X + box.Width/2 + s.uniform(-box.Width/4, box.Width/4)
		y := box.Y + box.Height/2 + s.uniform(-box.Height/4, box.Height/4)
		if err := page.MouseMove(x, y, s.Steps()); err != nil {
			return err
		}
	}
	if err := s.BetweenClicks(ctx); err != nil {
		return err
	}
	return page.Click(selector, timeout)
}

// ConsentSelectors are cookie banners' accept buttons, tried in order.
var ConsentSelectors = []string{
	`button:has-text("Accept all")`,
	`button:has-text("Accept")`,
	`button:has-text("I agree")`,
	`button:has-text("Agree")`,
	`[aria-label="Accept all"]`,
	`#L2AGLb`,
	`.cookie-consent button`,
	`#onetrust-accept-btn-handler`,
}

// ConsentPage is what cookie banner dismissal needs from a page.
type ConsentPage interface {
	Exists(selector string) (bool, error)
	Click(selector string, timeout time.Duration) error
}

// DismissConsent clicks the first present consent button. It reports whether
// a button was clicked; a missing banner is not an error, a cancelled ctx is.
func (s *Simulator) DismissConsent(ctx context.Context, page ConsentPage) (bool, error) {
	if !s.enabled {
		return false, nil
	}
	for _, sel := range ConsentSelectors {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ok, err := page.Exists(sel)
		if err != nil || !ok {
			continue
		}
		if err := page.Click(sel, 3*time.Second); err != nil {
			continue
		}
		if err := s.sleep(ctx, 500*time.Millisecond); err != nil {
			return true, err
		}
		return true, nil
	}
	return false, nil
}
