// Package workflow sequences a search run through scraping, normalization
// and optional website enrichment.
package workflow

import (
	"fmt"

	"mapscraper/internal/core/maps"
)

type Status string

const (
	StatusInitialized Status = "initialized"
	StatusScraped     Status = "scraped"
	StatusProcessed   Status = "processed"
	StatusEnriched    Status = "enriched"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// transitions lists the allowed forward edges. Every non-terminal status may
// also move to StatusError.
var transitions = map[Status][]Status{
	StatusInitialized: {StatusScraped},
	StatusScraped:     {StatusProcessed},
	StatusProcessed:   {StatusEnriched, StatusCompleted},
	StatusEnriched:    {StatusCompleted},
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusError }

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Request is the caller's input for one run.
type Request struct {
	Query             string `json:"query"`
	Location          string `json:"location,omitempty"`
	MaxResults        int    `json:"max_results"`
	EnrichWithWebsite bool   `json:"enrich_with_website"`
}

// State is the run record threaded through each step.
type State struct {
	Status  Status
	Request Request

	RawResults       []maps.Listing
	ProcessedResults []maps.Listing
	TotalFound       int
	// Method is the crawl method that produced RawResults.
	Method string
	Err    error
}

func NewState(req Request) *State {
	return &State{Status: StatusInitialized, Request: req}
}

func (s *State) advance(to Status) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("invalid transition %s -> %s", s.Status, to)
	}
	s.Status = to
	return nil
}

func (s *State) fail(err error) error {
	if s.Status.Terminal() {
		return err
	}
	s.Status = StatusError
	s.Err = err
	return err
}

// Result is the caller-facing summary of a completed run.
type Result struct {
	Status           string         `json:"status"`
	TotalFound       int            `json:"totalFound"`
	Results          []maps.Listing `json:"results"`
	ProcessingStatus Status         `json:"processingStatus"`
	Method           string         `json:"method,omitempty"`
}
