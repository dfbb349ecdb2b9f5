package website

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"mapscraper/internal/core/stealth"

	"github.com/gocolly/colly"
)

// StaticLoader fetches raw HTML without a browser. Pages that need script
// execution come back mostly empty, so it only serves as a fallback.
type StaticLoader struct {
	Timeout time.Duration
	Family  stealth.Family
}

func NewStaticLoader(family stealth.Family) *StaticLoader {
	return &StaticLoader{Timeout: 20 * time.Second, Family: family}
}

func (l *StaticLoader) Name() string { return "static" }

func (l *StaticLoader) Open(_ context.Context, location string) (Fetcher, error) {
	family := l.Family
	if len(stealth.UserAgents(family)) == 0 {
		family = stealth.FamilyChrome
	}
	agents := stealth.UserAgents(family)
	ua := agents[rand.Intn(len(agents))]
	region, _ := stealth.LookupRegion(location)
	headers := stealth.RequestHeaders(family, ua, region.AcceptLanguage)
	// The transport only decompresses responses when it negotiates encoding itself.
	delete(headers, "Accept-Encoding")
	return &staticFetcher{timeout: l.Timeout, userAgent: ua, headers: headers}, nil
}

type staticFetcher struct {
	timeout   time.Duration
	userAgent string
	headers   map[string]string
}

func (f *staticFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := colly.NewCollector(colly.UserAgent(f.userAgent))
	c.SetRequestTimeout(f.timeout)
	c.OnRequest(func(r *colly.Request) {
		for k, v := range f.headers {
			r.Headers.Set(k, v)
		}
	})

	var body string
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})
	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil {
		return "", fetchErr
	}
	return body, nil
}

func (f *staticFetcher) Close() error { return nil }
