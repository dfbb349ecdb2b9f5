// Package crawlerr holds the failure taxonomy shared by the crawl engine.
//
// Session-scoped failures (BotDetectedError, CaptchaError) propagate to the
// workflow, which marks the proxy and advances to the next method. Listing
// scoped failures (ListingEnrichmentError) are logged and absorbed by the
// component that produced them.
package crawlerr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPageUnavailable reports that the page or browser handle closed mid-run.
var ErrPageUnavailable = errors.New("page unavailable")

// Kind is a coarse classification used by the transport layer.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindBotDetected      Kind = "bot_detected"
	KindCaptcha          Kind = "captcha_unresolved"
	KindAllMethodsFailed Kind = "all_methods_failed"
	KindPageUnavailable  Kind = "page_unavailable"
	KindInternal         Kind = "internal"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type BotDetectedError struct {
	Indicator string
}

func (e *BotDetectedError) Error() string {
	return "bot detected: " + e.Indicator
}

// CaptchaError is raised when a challenge was found and could not be solved,
// either because no solver is configured or because solving failed.
type CaptchaError struct {
	Type   string
	Reason string
}

func (e *CaptchaError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("captcha detected (%s)", e.Type)
	}
	return fmt.Sprintf("captcha detected (%s): %s", e.Type, e.Reason)
}

// MethodAttempt records why one crawl method did not produce results.
type MethodAttempt struct {
	Method string
	Err    error
}

type AllMethodsFailedError struct {
	Attempts []MethodAttempt
}

func (e *AllMethodsFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all scraping methods failed"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err == nil {
			parts = append(parts, a.Method+": no results")
			continue
		}
		parts = append(parts, a.Method+": "+a.Err.Error())
	}
	return "all scraping methods failed: " + strings.Join(parts, "; ")
}

// Last returns the error of the final attempt that failed with an error.
func (e *AllMethodsFailedError) Last() error {
	for i := len(e.Attempts) - 1; i >= 0; i-- {
		if e.Attempts[i].Err != nil {
			return e.Attempts[i].Err
		}
	}
	return nil
}

func (e *AllMethodsFailedError) Unwrap() error { return e.Last() }

type ListingEnrichmentError struct {
	Listing string
	Err     error
}

func (e *ListingEnrichmentError) Error() string {
	return fmt.Sprintf("enrich %q: %v", e.Listing, e.Err)
}

func (e *ListingEnrichmentError) Unwrap() error { return e.Err }

// IsSessionBlock reports whether err means the current session was flagged.
func IsSessionBlock(err error) bool {
	var bot *BotDetectedError
	var captcha *CaptchaError
	return errors.As(err, &bot) || errors.As(err, &captcha)
}

// IsPageClosed matches ErrPageUnavailable and driver errors mentioning a closed target.
func IsPageClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPageUnavailable) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target closed") || strings.Contains(msg, "has been closed") || strings.Contains(msg, "page closed")
}

// KindOf classifies err. An AllMethodsFailedError whose last attempt was a
// session block reports that block, so callers see the cause of the final failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var v *ValidationError
	var all *AllMethodsFailedError
	var bot *BotDetectedError
	var captcha *CaptchaError
	switch {
	case errors.As(err, &v):
		return KindValidation
	case errors.As(err, &bot):
		return KindBotDetected
	case errors.As(err, &captcha):
		return KindCaptcha
	case errors.As(err, &all):
		return KindAllMethodsFailed
	case IsPageClosed(err):
		return KindPageUnavailable
	default:
		return KindInternal
	}
}
