package workflow

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"strings"
	"testing"
	"time"

	"mapscraper/internal/config"
	"mapscraper/internal/core/browser"
	"mapscraper/internal/core/browser/browsertest"
	"mapscraper/internal/core/crawlerr"
	"mapscraper/internal/core/detect"
	"mapscraper/internal/core/human"
	"mapscraper/internal/core/maps"
	"mapscraper/internal/core/proxy"
	"mapscraper/internal/core/stealth"
	"mapscraper/internal/core/website"
)

type fakeMethod struct {
	name     string
	listings []maps.Listing
	err      error
	calls    int
}

func (m *fakeMethod) Name() string { return m.name }

func (m *fakeMethod) Scrape(context.Context, maps.Query) ([]maps.Listing, error) {
	m.calls++
	return m.listings, m.err
}

func named(names ...string) []maps.Listing {
	out := make([]maps.Listing, 0, len(names))
	for _, n := range names {
		out = append(out, maps.Listing{Name: n, Website: "https://" + url.PathEscape(n) + ".example.org/"})
	}
	return out
}

func TestRunRanksAndFillsSentinel(t *testing.T) {
	m := &fakeMethod{name: "primary", listings: append(named("Cafe A", "Cafe B", "Cafe A"), maps.Listing{Name: "Cafe C"})}
	o := NewOrchestrator(maps.NewEngine(m), nil, nil)

	res, state, err := o.Run(context.Background(), Request{Query: "coffee"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "success" || res.ProcessingStatus != StatusCompleted || state.Status != StatusCompleted {
		t.Fatalf("result %+v state %s", res, state.Status)
	}
	if res.TotalFound != len(res.Results) || res.TotalFound != 3 {
		t.Fatalf("totalFound %d, results %d", res.TotalFound, len(res.Results))
	}
	for i, l := range res.Results {
		if l.Rank != i+1 {
			t.Fatalf("rank %d at index %d", l.Rank, i)
		}
		if l.Rating != maps.NotAvailable || l.Email != maps.NotAvailable {
			t.Fatalf("unobserved fields must hold the sentinel: %+v", l)
		}
	}
	if res.Results[2].Website != maps.NotAvailable {
		t.Fatalf("missing website must be the sentinel, got %q", res.Results[2].Website)
	}
	if state.Request.MaxResults != DefaultMaxResults {
		t.Fatalf("default max results not applied: %d", state.Request.MaxResults)
	}
}

func TestRunFallsBackAndMarksProxy(t *testing.T) {
	pool := proxy.NewPool([]config.ProxyEntry{{URL: "http://proxy:1"}}, true)
	ep := pool.Next()
	primary := &fakeMethod{name: "stealth_playwright", err: &maps.AttemptError{
		Method: "stealth_playwright", Proxy: ep, ProxyFault: true, Err: &crawlerr.BotDetectedError{Indicator: "unusual traffic"},
	}}
	remote := &fakeMethod{name: "browserless", listings: named("Cafe A")}
	o := NewOrchestrator(maps.NewEngine(primary, remote), pool, nil)

	res, _, err := o.Run(context.Background(), Request{Query: "coffee", MaxResults: 5})
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != "browserless" || len(res.Results) != 1 {
		t.Fatalf("fallback result %+v", res)
	}
	if got := pool.Snapshot()[0].FailureCount; got != 1 {
		t.Fatalf("blocked proxy failure count = %d", got)
	}
}

func TestRunAllMethodsFailed(t *testing.T) {
	primary := &fakeMethod{name: "stealth_playwright"}
	remote := &fakeMethod{name: "browserless", err: &maps.AttemptError{Method: "browserless", Err: errors.New("status 502")}}
	o := NewOrchestrator(maps.NewEngine(primary, remote), nil, nil)

	_, state, err := o.Run(context.Background(), Request{Query: "coffee"})
	var all *crawlerr.AllMethodsFailedError
	if !errors.As(err, &all) || len(all.Attempts) != 2 {
		t.Fatalf("expected all-methods failure with two attempts, got %v", err)
	}
	if crawlerr.KindOf(err) != crawlerr.KindAllMethodsFailed {
		t.Fatalf("kind %s", crawlerr.KindOf(err))
	}
	if state.Status != StatusError || state.Err == nil {
		t.Fatalf("state %s", state.Status)
	}
	if primary.calls != 1 || remote.calls != 1 {
		t.Fatal("every method must be attempted exactly once")
	}
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	m := &fakeMethod{name: "primary", listings: named("Cafe A")}
	_, state, err := NewOrchestrator(maps.NewEngine(m), nil, nil).Run(context.Background(), Request{Query: "   "})
	var verr *crawlerr.ValidationError
	if !errors.As(err, &verr) || verr.Field != "query" {
		t.Fatalf("expected validation error, got %v", err)
	}
	if state.Status != StatusError || m.calls != 0 {
		t.Fatal("invalid input must not reach the engine")
	}
}

func TestStepAfterTerminal(t *testing.T) {
	o := NewOrchestrator(maps.NewEngine(&fakeMethod{name: "m", listings: named("A")}), nil, nil)
	s := NewState(Request{Query: "q", MaxResults: 1})
	steps := 0
	for !s.Status.Terminal() {
		if err := o.Step(context.Background(), s); err != nil {
			t.Fatal(err)
		}
		steps++
	}
	if steps != 3 {
		t.Fatalf("initialized -> scraped -> processed -> completed takes 3 steps, took %d", steps)
	}
	if err := o.Step(context.Background(), s); !errors.Is(err, ErrTerminal) || s.Status != StatusCompleted {
		t.Fatalf("terminal state must not move: %v %s", err, s.Status)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusInitialized, StatusScraped, true},
		{StatusInitialized, StatusProcessed, false},
		{StatusScraped, StatusProcessed, true},
		{StatusProcessed, StatusEnriched, true},
		{StatusProcessed, StatusCompleted, true},
		{StatusEnriched, StatusCompleted, true},
		{StatusEnriched, StatusScraped, false},
		{StatusScraped, StatusError, true},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusInitialized, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s, %s) = %v", tc.from, tc.to, got)
		}
	}
}

type fakeEnricher struct {
	profiles map[string]website.Profile
	visited  []string
}

func (f *fakeEnricher) Enrich(_ context.Context, name, site, _ string) (website.Profile, error) {
	f.visited = append(f.visited, name)
	p, ok := f.profiles[name]
	if !ok {
		return website.Profile{}, errors.New("homepage timeout")
	}
	return p, nil
}

func TestRunEnrichesListingsWithWebsites(t *testing.T) {
	listings := append(named("Cafe A", "Cafe B"), maps.Listing{Name: "Cafe C"})
	enricher := &fakeEnricher{profiles: map[string]website.Profile{
		"Cafe A": {Title: "Cafe A", Emails: []string{"owner@cafea.nyc"}},
	}}
	o := NewOrchestrator(maps.NewEngine(&fakeMethod{name: "m", listings: listings}), nil, enricher)

	res, _, err := o.Run(context.Background(), Request{Query: "coffee", EnrichWithWebsite: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.ProcessingStatus != StatusCompleted {
		t.Fatalf("status %s", res.ProcessingStatus)
	}
	if len(enricher.visited) != 2 {
		t.Fatalf("only listings with websites are visited, got %v", enricher.visited)
	}
	if res.Results[0].Email != "owner@cafea.nyc" || res.Results[0].WebsiteTitle != "Cafe A" {
		t.Fatalf("profile not merged: %+v", res.Results[0])
	}
	if res.Results[1].Email != maps.NotAvailable {
		t.Fatalf("failed enrichment must leave the listing as is: %+v", res.Results[1])
	}
}

func TestRunEnrichWithoutEnricherFails(t *testing.T) {
	o := NewOrchestrator(maps.NewEngine(&fakeMethod{name: "m", listings: named("Cafe A")}), nil, nil)
	_, state, err := o.Run(context.Background(), Request{Query: "coffee", EnrichWithWebsite: true})
	if err == nil || state.Status != StatusError {
		t.Fatalf("expected error state, got %s %v", state.Status, err)
	}
	if len(state.ProcessedResults) != 1 {
		t.Fatal("processed results must survive a later failure")
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func browserEngine(page *browsertest.Page, pool *proxy.Pool) *maps.Engine {
	l := &browsertest.Launcher{NewPageFunc: func() *browsertest.Page { return page }}
	factory := stealth.NewFactoryWithSource(l, pool, stealth.Options{Stealth: true}, rand.NewSource(7))
	sim := human.NewWithSource(false, rand.NewSource(7), noSleep)
	return maps.NewEngine(maps.NewBrowserMethod(factory, pool, sim, detect.NewHandler(nil)))
}

func rawCard(name, site string) browser.RawCard {
	c := browser.RawCard{
		Label: name,
		Href:  "https://www.google.com/maps/place/" + url.PathEscape(name) + "/data=!4m7",
		Text:  name + "\n4.5(310) · $$\nCoffee shop · 100 Broadway",
	}
	if site != "" {
		c.Links = []browser.Link{{Href: site, Text: "Website"}}
	}
	return c
}

func TestCoffeeShopsScenario(t *testing.T) {
	page := &browsertest.Page{
		HTML: `<div role="feed"></div>`,
		Cards: [][]browser.RawCard{
			{rawCard("Joe Coffee", "https://joecoffee.com/"), rawCard("Blue Bottle", ""), rawCard("Joe Coffee", "https://joecoffee.com/")},
			{rawCard("Joe Coffee", "https://joecoffee.com/"), rawCard("Blue Bottle", ""), rawCard("Devocion", "https://www.google.com/url?q=https://devocion.com/"),
				rawCard("Stumptown", "https://stumptown.com/"), rawCard("La Colombe", "javascript:void(0)"), rawCard("Birch", "https://birchcoffee.com/")},
		},
	}
	pool := proxy.NewPool(nil, false)
	o := NewOrchestrator(browserEngine(page, pool), pool, nil)

	res, _, err := o.Run(context.Background(), Request{Query: "coffee shops", Location: "New York, NY", MaxResults: 5})
	if err != nil {
		t.Fatal(err)
	}
	if res.ProcessingStatus != StatusCompleted || res.TotalFound != 5 || len(res.Results) != 5 {
		t.Fatalf("result %+v", res)
	}
	seen := map[string]bool{}
	for _, l := range res.Results {
		if seen[l.Name] {
			t.Fatalf("duplicate listing %q", l.Name)
		}
		seen[l.Name] = true
		if l.Website != maps.NotAvailable && maps.CleanWebsite(l.Website) != l.Website {
			t.Fatalf("website %q is neither absolute nor the sentinel", l.Website)
		}
	}
	if res.Results[2].Website != "https://devocion.com/" {
		t.Fatalf("redirect link not unwrapped: %q", res.Results[2].Website)
	}
}

func TestUnusualTrafficEndsInError(t *testing.T) {
	page := &browsertest.Page{
		Cards: [][]browser.RawCard{{rawCard("Joe Coffee", "")}},
		ContentFunc: func(call int) (string, error) {
			if call == 1 {
				return `<div role="feed"></div>`, nil
			}
			return `<p>Our systems have detected unusual traffic from your computer network.</p>`, nil
		},
	}
	pool := proxy.NewPool([]config.ProxyEntry{{URL: "http://proxy:1"}}, true)
	o := NewOrchestrator(browserEngine(page, pool), pool, nil)

	_, state, err := o.Run(context.Background(), Request{Query: "coffee shops", Location: "New York, NY", MaxResults: 5})
	if state.Status != StatusError {
		t.Fatalf("status %s, want error", state.Status)
	}
	if crawlerr.KindOf(err) != crawlerr.KindBotDetected {
		t.Fatalf("kind %s for %v", crawlerr.KindOf(err), err)
	}
	if got := pool.Snapshot()[0].FailureCount; got != 1 {
		t.Fatalf("proxy failure count = %d", got)
	}
}

func TestValidateLimits(t *testing.T) {
	o := NewOrchestrator(maps.NewEngine(), nil, nil)
	cases := []struct {
		req   Request
		field string
	}{
		{Request{Query: strings.Repeat("q", MaxQueryLength+1)}, "query"},
		{Request{Query: "coffee", Location: strings.Repeat("l", MaxLocationLength+1)}, "location"},
		{Request{Query: "coffee", MaxResults: MaxResultsLimit + 1}, "max_results"},
		{Request{Query: "coffee", MaxResults: -1}, "max_results"},
	}
	for _, tc := range cases {
		_, err := o.Validate(tc.req)
		var verr *crawlerr.ValidationError
		if !errors.As(err, &verr) || verr.Field != tc.field {
			t.Errorf("Validate(%+v) = %v, want error on %s", tc.req, err, tc.field)
		}
	}
	req, err := o.Validate(Request{Query: strings.Repeat("é", MaxQueryLength), MaxResults: MaxResultsLimit})
	if err != nil || req.MaxResults != MaxResultsLimit {
		t.Fatalf("limits are inclusive: %+v %v", req, err)
	}
}

func TestEnrichListingsSkipsInvalidRows(t *testing.T) {
	enricher := &fakeEnricher{profiles: map[string]website.Profile{
		"Cafe A": {Title: "Cafe A Home", MetaDescription: "Roasters", BodyExcerpt: "We roast", Emails: []string{"hi@cafea.nyc"}},
	}}
	o := NewOrchestrator(maps.NewEngine(), nil, enricher)
	res, err := o.EnrichListings(context.Background(), []maps.Listing{
		{Name: "Cafe A", Website: "https://cafea.nyc/"},
		{Name: "string", Website: "https://placeholder.example/"},
		{Name: "Cafe B", Website: "N/A"},
		{Rank: 9, Name: "Cafe C", Website: "https://cafec.nyc/"},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalFound != 2 || len(res.Results) != 2 || res.ProcessingStatus != StatusCompleted {
		t.Fatalf("result %+v", res)
	}
	a := res.Results[0]
	if a.Rank != 1 || a.WebsiteTitle != "Cafe A Home" || a.WebsiteDescription != "Roasters" ||
		a.WebsiteSummary != "We roast" || len(a.WebsiteEmails) != 1 || a.Email != "hi@cafea.nyc" {
		t.Fatalf("listing A %+v", a)
	}
	if c := res.Results[1]; c.Rank != 9 || c.Rating != maps.NotAvailable {
		t.Fatalf("listing C keeps its rank and is normalized: %+v", c)
	}
	if len(enricher.visited) != 2 {
		t.Fatalf("visited %v", enricher.visited)
	}
}

func TestEnrichListingsRejectsAllInvalid(t *testing.T) {
	o := NewOrchestrator(maps.NewEngine(), nil, &fakeEnricher{})
	for _, in := range [][]maps.Listing{nil, {{Name: "", Website: "https://a.com"}, {Name: "B", Website: "ftp://b"}}} {
		_, err := o.EnrichListings(context.Background(), in, "")
		if crawlerr.KindOf(err) != crawlerr.KindValidation {
			t.Fatalf("expected validation error for %v, got %v", in, err)
		}
	}
}
