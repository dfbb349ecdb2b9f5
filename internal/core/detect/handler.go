package detect

import (
	"context"
	"fmt"

	"mapscraper/internal/core/crawlerr"
	"mapscraper/internal/logger"
)

// Page is what a detection check reads from and writes to.
type Page interface {
	Content() (string, error)
	URL() string
	RecaptchaSiteKey() (string, error)
	InjectCaptchaToken(token string) error
}

type Handler struct {
	solver Solver
	log    *logger.Logger
}

// NewHandler accepts a nil solver, in which case every challenge is unresolved.
func NewHandler(solver Solver) *Handler {
	return &Handler{solver: solver, log: logger.New("DetectionHandler")}
}

func (h *Handler) SolverName() string {
	if h.solver == nil {
		return ""
	}
	return h.solver.Name()
}

// Inspect classifies the current page without acting on it.
func (h *Handler) Inspect(page Page) (Verdict, error) {
	html, err := page.Content()
	if err != nil {
		return Verdict{}, fmt.Errorf("read page: %w", err)
	}
	return Classify(html), nil
}

// Check returns nil when the page is clear or a challenge was solved. It
// returns *crawlerr.BotDetectedError for detection pages and for an
// unresolved unusual-traffic interstitial, and *crawlerr.CaptchaError for any
// other unresolved challenge.
func (h *Handler) Check(ctx context.Context, page Page) error {
	v, err := h.Inspect(page)
	if err != nil {
		return err
	}
	switch v.Status {
	case StatusClear:
		return nil
	case StatusDetected:
		h.log.LogWarnf("Bot detection indicator %q on %s", v.Indicator, page.URL())
		return &crawlerr.BotDetectedError{Indicator: v.Indicator}
	}

	h.log.LogWarnf("CAPTCHA detected (%s) on %s", v.Type, page.URL())
	reason := h.solve(ctx, page, v)
	if reason == "" {
		h.log.LogSuccessf("CAPTCHA solved via %s", h.solver.Name())
		return nil
	}
	if v.BlockPage {
		return &crawlerr.BotDetectedError{Indicator: v.Indicator}
	}
	return &crawlerr.CaptchaError{Type: string(v.Type), Reason: reason}
}

// solve returns an empty reason on success.
func (h *Handler) solve(ctx context.Context, page Page, v Verdict) string {
	if h.solver == nil {
		return "no solver configured"
	}
	if v.Type != RecaptchaV2 && v.Type != RecaptchaV3 {
		return "unsupported challenge type"
	}
	key, err := page.RecaptchaSiteKey()
	if err != nil || key == "" {
		return "site key not found"
	}
	token, err := h.solver.Solve(ctx, key, page.URL())
	if err != nil {
		h.log.LogError("CAPTCHA solve failed", err)
		return err.Error()
	}
	if err := page.InjectCaptchaToken(token); err != nil {
		h.log.LogError("CAPTCHA token injection failed", err)
		return err.Error()
	}
	return ""
}
