package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"mapscraper/internal/core/crawlerr"
	"mapscraper/internal/core/maps"
	"mapscraper/internal/core/proxy"
	"mapscraper/internal/core/website"
	"mapscraper/internal/logger"
)

const (
	DefaultMaxResults = 20
	MaxResultsLimit   = 500
	MaxQueryLength    = 200
	MaxLocationLength = 100
)

// ErrTerminal is returned by Step once a run has completed or failed.
var ErrTerminal = errors.New("workflow already finished")

// FailureReporter receives proxies that served a blocked attempt.
type FailureReporter interface {
	ReportFailure(e *proxy.Endpoint)
}

// Enricher builds a website profile for one listing.
type Enricher interface {
	Enrich(ctx context.Context, name, site, location string) (website.Profile, error)
}

type Orchestrator struct {
	engine   *maps.Engine
	proxies  FailureReporter
	enricher Enricher
	log      *logger.Logger

	DefaultMaxResults int
}

// NewOrchestrator wires the engine with the proxy pool and an optional
// enricher; runs requesting enrichment without one fail in the enrich step.
func NewOrchestrator(engine *maps.Engine, proxies FailureReporter, enricher Enricher) *Orchestrator {
	return &Orchestrator{
		engine:            engine,
		proxies:           proxies,
		enricher:          enricher,
		log:               logger.New("Workflow"),
		DefaultMaxResults: DefaultMaxResults,
	}
}

// Validate normalizes req and rejects unusable input.
func (o *Orchestrator) Validate(req Request) (Request, error) {
	req.Query = strings.TrimSpace(req.Query)
	req.Location = strings.TrimSpace(req.Location)
	if req.Query == "" {
		return req, &crawlerr.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(req.Query) > MaxQueryLength {
		return req, &crawlerr.ValidationError{Field: "query", Reason: fmt.Sprintf("must be at most %d characters", MaxQueryLength)}
	}
	if utf8.RuneCountInString(req.Location) > MaxLocationLength {
		return req, &crawlerr.ValidationError{Field: "location", Reason: fmt.Sprintf("must be at most %d characters", MaxLocationLength)}
	}
	if req.MaxResults < 0 || req.MaxResults > MaxResultsLimit {
		return req, &crawlerr.ValidationError{Field: "max_results", Reason: fmt.Sprintf("must be between 1 and %d", MaxResultsLimit)}
	}
	if req.MaxResults == 0 {
		req.MaxResults = o.DefaultMaxResults
	}
	return req, nil
}

// Step performs the single transition out of s.Status. Any failure moves the
// state to StatusError and is returned.
func (o *Orchestrator) Step(ctx context.Context, s *State) error {
	if s.Status.Terminal() {
		return ErrTerminal
	}
	var next Status
	var err error
	switch s.Status {
	case StatusInitialized:
		next, err = StatusScraped, o.scrape(ctx, s)
	case StatusScraped:
		next, err = StatusProcessed, o.process(s)
	case StatusProcessed:
		if s.Request.EnrichWithWebsite {
			next, err = StatusEnriched, o.enrich(ctx, s)
		} else {
			next = StatusCompleted
		}
	case StatusEnriched:
		next = StatusCompleted
	default:
		err = fmt.Errorf("unknown status %q", s.Status)
	}
	if err != nil {
		return s.fail(err)
	}
	if err := s.advance(next); err != nil {
		return s.fail(err)
	}
	return nil
}

// Run validates req and steps a fresh state until it is terminal.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, *State, error) {
	req, err := o.Validate(req)
	s := NewState(req)
	if err != nil {
		return Result{}, s, s.fail(err)
	}
	for !s.Status.Terminal() {
		stage := s.Status
		if err := o.Step(ctx, s); err != nil {
			o.log.LogErrorf("Run for %q failed after %s: %v", req.Query, stage, err)
			return Result{}, s, err
		}
	}
	return Result{
		Status:           "success",
		TotalFound:       s.TotalFound,
		Results:          s.ProcessedResults,
		ProcessingStatus: s.Status,
		Method:           s.Method,
	}, s, nil
}

// scrape tries each engine method in order until one yields listings.
func (o *Orchestrator) scrape(ctx context.Context, s *State) error {
	q := maps.Query{Query: s.Request.Query, Location: s.Request.Location, MaxResults: s.Request.MaxResults}
	var attempts []crawlerr.MethodAttempt
	for _, m := range o.engine.Methods() {
		o.log.LogInfof("Attempting scrape with method: %s", m.Name())
		results, err := m.Scrape(ctx, q)
		if err == nil && len(results) > 0 {
			o.log.LogSuccessf("Scraped %d listings with %s", len(results), m.Name())
			s.RawResults = results
			s.Method = m.Name()
			return nil
		}
		attempts = append(attempts, crawlerr.MethodAttempt{Method: m.Name(), Err: err})
		if err == nil {
			o.log.LogWarnf("%s returned no listings", m.Name())
			continue
		}
		var attempt *maps.AttemptError
		if errors.As(err, &attempt) && attempt.ProxyFault && attempt.Proxy != nil && o.proxies != nil {
			o.proxies.ReportFailure(attempt.Proxy)
		}
		if crawlerr.IsSessionBlock(err) {
			o.log.Warn().Err(err).Str("method", m.Name()).Msg("detection during scrape")
		} else {
			o.log.Error().Err(err).Str("method", m.Name()).Msg("scrape method failed")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return &crawlerr.AllMethodsFailedError{Attempts: attempts}
}

// process dedupes, sentinel-fills and ranks the harvested listings.
func (o *Orchestrator) process(s *State) error {
	out := maps.Dedupe(s.RawResults)
	if s.Request.MaxResults > 0 && len(out) > s.Request.MaxResults {
		out = out[:s.Request.MaxResults]
	}
	for i := range out {
		out[i].Normalize()
		out[i].Rank = i + 1
	}
	s.ProcessedResults = out
	s.TotalFound = len(out)
	return nil
}

// enrich visits each listing's website in turn. Failures stay with the
// listing.
func (o *Orchestrator) enrich(ctx context.Context, s *State) error {
	if o.enricher == nil {
		return errors.New("website enrichment is not configured")
	}
	return o.enrichAll(ctx, s.ProcessedResults, s.Request.Location)
}

func (o *Orchestrator) enrichAll(ctx context.Context, listings []maps.Listing, location string) error {
	done := 0
	for i := range listings {
		if err := ctx.Err(); err != nil {
			return err
		}
		l := &listings[i]
		if !l.HasWebsite() {
			continue
		}
		prof, err := o.enricher.Enrich(ctx, l.Name, l.Website, location)
		if err != nil {
			o.log.Warn().Err(&crawlerr.ListingEnrichmentError{Listing: l.Name, Err: err}).Msg("website enrichment failed")
			continue
		}
		website.Merge(l, prof)
		done++
	}
	o.log.LogInfof("Enriched %d of %d listings from their websites", done, len(listings))
	return nil
}

// placeholderName is the value API explorers fill string fields with.
const placeholderName = "string"

// EnrichListings runs website enrichment over listings produced elsewhere.
// Entries without a usable name or http(s) website are skipped; when none
// remain the call fails with a ValidationError. Listings keep their rank, or
// get their input position when it is unset.
func (o *Orchestrator) EnrichListings(ctx context.Context, listings []maps.Listing, location string) (Result, error) {
	if o.enricher == nil {
		return Result{}, errors.New("website enrichment is not configured")
	}
	if len(listings) == 0 {
		return Result{}, &crawlerr.ValidationError{Field: "results", Reason: "must not be empty"}
	}
	valid := make([]maps.Listing, 0, len(listings))
	for i, l := range listings {
		name := strings.TrimSpace(l.Name)
		if maps.Missing(name) || strings.EqualFold(name, placeholderName) {
			o.log.LogWarnf("Row %d: skipping, missing or invalid name %q", i+1, l.Name)
			continue
		}
		if maps.CleanWebsite(l.Website) == "" {
			o.log.LogWarnf("Row %d: skipping, missing or invalid website %q", i+1, l.Website)
			continue
		}
		if l.Rank == 0 {
			l.Rank = i + 1
		}
		l.Normalize()
		valid = append(valid, l)
	}
	if len(valid) == 0 {
		return Result{}, &crawlerr.ValidationError{
			Field:  "results",
			Reason: fmt.Sprintf("all %d rows lack a valid name or website", len(listings)),
		}
	}
	if skipped := len(listings) - len(valid); skipped > 0 {
		o.log.LogInfof("Skipped %d row(s) with missing or invalid name/website", skipped)
	}
	if err := o.enrichAll(ctx, valid, strings.TrimSpace(location)); err != nil {
		return Result{}, err
	}
	return Result{
		Status:           "success",
		TotalFound:       len(valid),
		Results:          valid,
		ProcessingStatus: StatusCompleted,
	}, nil
}
