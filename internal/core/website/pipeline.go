// Package website visits a listing's own site to collect contact details and
// a description of the business.
package website

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mapscraper/internal/core/maps"
	"mapscraper/internal/logger"
	"mapscraper/internal/utils/contact"
	"mapscraper/internal/utils/markdown"

	"golang.org/x/time/rate"
)

const (
	MaxExcerpt     = 500
	minAboutLength = 100
)

// Profile is the information collected from one website.
type Profile struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"metaDescription"`
	BodyExcerpt     string   `json:"bodyText"`
	Emails          []string `json:"emails"`
	PhoneNumbers    []string `json:"phoneNumbers"`
	BusinessSummary string   `json:"businessSummary,omitempty"`
}

// Fetcher loads pages within one website visit.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Close() error
}

// Loader opens a Fetcher for one website visit.
type Loader interface {
	Name() string
	Open(ctx context.Context, location string) (Fetcher, error)
}

// Summarizer condenses website text into a short business description.
type Summarizer interface {
	Summarize(ctx context.Context, name, text string) (string, error)
}

type Options struct {
	// Fallback is tried when the primary loader cannot open a session or
	// load the homepage.
	Fallback Loader
	// SitesPerSecond paces visits across websites. Zero disables pacing.
	SitesPerSecond float64
	Summarizer     Summarizer
}

type Pipeline struct {
	loaders    []Loader
	limiter    *rate.Limiter
	summarizer Summarizer
	log        *logger.Logger
}

func NewPipeline(primary Loader, opts Options) *Pipeline {
	p := &Pipeline{
		loaders:    []Loader{primary},
		summarizer: opts.Summarizer,
		log:        logger.New("WebsitePipeline"),
	}
	if opts.Fallback != nil {
		p.loaders = append(p.loaders, opts.Fallback)
	}
	if opts.SitesPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.SitesPerSecond), 1)
	}
	return p
}

// openHome returns the first loader's fetcher that serves the homepage.
func (p *Pipeline) openHome(ctx context.Context, site, location string) (Fetcher, string, error) {
	var errs []error
	for _, l := range p.loaders {
		f, err := l.Open(ctx, location)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.Name(), err))
			continue
		}
		html, err := f.Fetch(ctx, site)
		if err == nil {
			return f, html, nil
		}
		_ = f.Close()
		errs = append(errs, fmt.Errorf("%s: %w", l.Name(), err))
		if ctx.Err() != nil {
			break
		}
		p.log.LogWarnf("%s could not load %s: %v", l.Name(), site, err)
	}
	return nil, "", errors.Join(errs...)
}

// Enrich visits the homepage, the best contact-like page and the best
// about-like page of site.
func (p *Pipeline) Enrich(ctx context.Context, name, site, location string) (Profile, error) {
	target := maps.CleanWebsite(site)
	if target == "" {
		return Profile{}, fmt.Errorf("unusable website %q", site)
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Profile{}, err
		}
	}

	start := time.Now()
	f, homeHTML, err := p.openHome(ctx, target, location)
	if err != nil {
		return Profile{}, fmt.Errorf("load homepage: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			p.log.LogWarnf("close website session: %v", err)
		}
	}()

	home, err := ParsePage(homeHTML, target)
	if err != nil {
		return Profile{}, fmt.Errorf("parse homepage: %w", err)
	}
	prof := Profile{Title: home.Title, MetaDescription: home.Description}

	prof.Emails, prof.PhoneNumbers = home.Emails, home.Phones
	if link := BestLink(home.Links, ContactKeywords); link != "" {
		p.log.LogDebugf("contact page for %s: %s", target, link)
		if page, ok := p.visit(ctx, f, link); ok {
			prof.Emails, prof.PhoneNumbers = page.Emails, page.Phones
		}
	}
	prof.Emails = contact.Merge(nil, prof.Emails, contact.MaxEmails)
	prof.PhoneNumbers = contact.Merge(nil, prof.PhoneNumbers, contact.MaxPhones)

	text := home.Text
	if link := BestLink(home.Links, AboutKeywords); link != "" {
		p.log.LogDebugf("about page for %s: %s", target, link)
		if page, ok := p.visit(ctx, f, link); ok && len(page.Text) > minAboutLength {
			text = page.Text
		}
	}
	prof.BodyExcerpt = markdown.Excerpt(text, MaxExcerpt)

	if p.summarizer != nil && text != "" {
		summary, err := p.summarizer.Summarize(ctx, name, text)
		if err != nil {
			p.log.Warn().Err(err).Str("website", target).Msg("business summary failed")
		} else {
			prof.BusinessSummary = summary
		}
	}

	p.log.LogInfof("Enriched %s in %s: %d emails, %d phones", target, time.Since(start).Round(time.Millisecond), len(prof.Emails), len(prof.PhoneNumbers))
	return prof, nil
}

func (p *Pipeline) visit(ctx context.Context, f Fetcher, link string) (Page, bool) {
	html, err := f.Fetch(ctx, link)
	if err != nil {
		p.log.LogWarnf("fetch %s: %v", link, err)
		return Page{}, false
	}
	page, err := ParsePage(html, link)
	if err != nil {
		p.log.LogWarnf("parse %s: %v", link, err)
		return Page{}, false
	}
	return page, true
}

// Merge folds prof into l. Existing enrichment fields are kept, email and
// phone are only filled while they hold the sentinel, and website emails are
// accumulated without duplicates.
func Merge(l *maps.Listing, prof Profile) {
	if l.WebsiteTitle == "" {
		l.WebsiteTitle = prof.Title
	}
	if l.WebsiteDescription == "" {
		l.WebsiteDescription = prof.MetaDescription
	}
	if l.WebsiteSummary == "" {
		l.WebsiteSummary = prof.BodyExcerpt
	}
	if l.BusinessSummary == "" {
		l.BusinessSummary = prof.BusinessSummary
	}
	if maps.Missing(l.Email) && len(prof.Emails) > 0 {
		l.Email = prof.Emails[0]
	}
	if maps.Missing(l.Phone) && len(prof.PhoneNumbers) > 0 {
		l.Phone = prof.PhoneNumbers[0]
	}
	l.WebsiteEmails = contact.Merge(l.WebsiteEmails, prof.Emails, contact.MaxEmails)
}
