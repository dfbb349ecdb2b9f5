package search

import (
	"errors"
	"net/http"

	"mapscraper/internal/core/crawlerr"
	"mapscraper/internal/core/job"
	"mapscraper/internal/core/maps"
	"mapscraper/internal/core/workflow"
	"mapscraper/internal/utils/parser"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// SearchRequest is the POST body and GET query of a search.
type SearchRequest struct {
	Query             string `json:"query" form:"query"`
	Location          string `json:"location" form:"location"`
	MaxResults        int    `json:"max_results" form:"max_results"`
	EnrichWithWebsite bool   `json:"enrich_with_website" form:"enrich_with_website"`
	Async             bool   `json:"async" form:"async"`
}

func (r SearchRequest) toRequest() workflow.Request {
	return workflow.Request{Query: r.Query, Location: r.Location, MaxResults: r.MaxResults, EnrichWithWebsite: r.EnrichWithWebsite}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

// StatusFor maps an error to the HTTP status returned to callers.
func StatusFor(err error) int {
	switch crawlerr.KindOf(err) {
	case crawlerr.KindValidation:
		return http.StatusBadRequest
	case crawlerr.KindBotDetected, crawlerr.KindCaptcha, crawlerr.KindAllMethodsFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(StatusFor(err)).JSON(errorResponse{Error: err.Error(), Kind: string(crawlerr.KindOf(err))})
}

func (h *Handler) handle(c *fiber.Ctx, req SearchRequest) error {
	if req.Async {
		id, err := h.svc.Enqueue(c.Context(), req.toRequest())
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "job_id": id, "status": job.StatusPending})
	}
	res, err := h.svc.Run(c.Context(), req.toRequest())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) HandlePostSearch(c *fiber.Ctx) error {
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid body", Kind: string(crawlerr.KindValidation)})
	}
	return h.handle(c, req)
}

func (h *Handler) HandleGetSearch(c *fiber.Ctx) error {
	var req SearchRequest
	if err := parser.ParseQuery(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error(), Kind: string(crawlerr.KindValidation)})
	}
	return h.handle(c, req)
}

// EnrichRequest carries listings from an earlier search, each with at least
// name and website.
type EnrichRequest struct {
	Results  []maps.Listing `json:"results"`
	Location string         `json:"location"`
}

func (h *Handler) HandleEnrich(c *fiber.Ctx) error {
	var req EnrichRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid body", Kind: string(crawlerr.KindValidation)})
	}
	res, err := h.svc.EnrichListings(c.Context(), req.Results, req.Location)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) HandleGetJob(c *fiber.Ctx) error {
	j, err := h.svc.Job(c.Context(), c.Params("jobId"))
	if errors.Is(err, job.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "not_found"})
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "job": j})
}

func (h *Handler) HandleStealthStatus(c *fiber.Ctx) error {
	return c.JSON(h.svc.Status())
}
