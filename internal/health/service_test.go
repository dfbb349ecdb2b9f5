package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func get(t *testing.T, h *HealthHandler) (int, OverallHealth) {
	t.Helper()
	app := fiber.New()
	app.Get("/v1/health", h.HandleHealth)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/health", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	var body OverallHealth
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

func TestHealthStartingUntilReady(t *testing.T) {
	h := NewHealthHandler()
	h.Register("redis", func(context.Context) error { return nil })

	code, body := get(t, h)
	if code != http.StatusServiceUnavailable || body.OverallStatus != "starting" {
		t.Fatalf("before ready: %d %+v", code, body)
	}
	h.SetReady()
	code, body = get(t, h)
	if code != http.StatusOK || body.OverallStatus != "ok" || body.Components["redis"].Status != "ok" {
		t.Fatalf("after ready: %d %+v", code, body)
	}
}

func TestHealthReportsFailingComponent(t *testing.T) {
	h := NewHealthHandler()
	h.Register("redis", func(context.Context) error { return nil })
	h.Register("browser", func(context.Context) error { return errors.New("driver missing") })
	h.SetReady()

	code, body := get(t, h)
	if code != http.StatusServiceUnavailable || body.OverallStatus != "error" {
		t.Fatalf("got %d %+v", code, body)
	}
	if c := body.Components["browser"]; c.Status != "error" || c.Error != "driver missing" {
		t.Fatalf("browser component %+v", c)
	}
}
