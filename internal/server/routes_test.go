package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"mapscraper/internal/core/maps"
	"mapscraper/internal/core/search"
	"mapscraper/internal/core/workflow"

	"github.com/gofiber/fiber/v2"
)

type okRunner struct{}

func (okRunner) Validate(req workflow.Request) (workflow.Request, error) { return req, nil }

func (okRunner) Run(context.Context, workflow.Request) (workflow.Result, *workflow.State, error) {
	return workflow.Result{Status: "success", ProcessingStatus: workflow.StatusCompleted}, nil, nil
}

func (okRunner) EnrichListings(context.Context, []maps.Listing, string) (workflow.Result, error) {
	return workflow.Result{Status: "success", ProcessingStatus: workflow.StatusCompleted}, nil
}

func newApp(d Dependencies) *fiber.App {
	app := fiber.New()
	d.Search = search.NewService(okRunner{}, nil, nil, nil, search.Options{})
	RegisterRoutes(app, d)
	return app
}

func status(t *testing.T, app *fiber.App, req *http.Request) int {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode
}

func TestAPIKeyRequired(t *testing.T) {
	app := newApp(Dependencies{APIKey: "k"})

	if code := status(t, app, httptest.NewRequest(http.MethodGet, "/v1/stealth", nil)); code != http.StatusUnauthorized {
		t.Fatalf("missing key: %d", code)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/stealth", nil)
	req.Header.Set("Authorization", "Bearer k")
	if code := status(t, app, req); code != http.StatusOK {
		t.Fatalf("bearer key: %d", code)
	}
	req = httptest.NewRequest(http.MethodGet, "/v1/search?query=coffee", nil)
	req.Header.Set("X-API-Key", "k")
	if code := status(t, app, req); code != http.StatusOK {
		t.Fatalf("header key: %d", code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	app := newApp(Dependencies{APIKey: "k"})
	if code := status(t, app, httptest.NewRequest(http.MethodGet, "/v1/health", nil)); code == http.StatusUnauthorized {
		t.Fatal("health must not require a key")
	}
}

func TestSearchRateLimit(t *testing.T) {
	app := newApp(Dependencies{SearchesPerMinute: 1})
	if code := status(t, app, httptest.NewRequest(http.MethodGet, "/v1/search?query=a", nil)); code != http.StatusOK {
		t.Fatalf("first: %d", code)
	}
	if code := status(t, app, httptest.NewRequest(http.MethodGet, "/v1/search?query=a", nil)); code != http.StatusTooManyRequests {
		t.Fatalf("second: %d", code)
	}
}
