package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"mapscraper/internal/core/search"
	"mapscraper/internal/health"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Dependencies struct {
	Search *search.Service
	Health *health.HealthHandler
	// APIKey, when set, is required on every /v1 route except health.
	APIKey string
	// SearchesPerMinute bounds search calls per client IP; zero disables it.
	SearchesPerMinute int
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := d.Health
	if healthHandler == nil {
		healthHandler = health.NewHealthHandler()
	}
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1", RequireAPIKey(d.APIKey))

	searchHandler := search.NewHandler(d.Search)
	searches := []fiber.Handler{}
	if d.SearchesPerMinute > 0 {
		searches = append(searches, searchLimiter(d.SearchesPerMinute))
	}
	api.Post("/search", append(searches, searchHandler.HandlePostSearch)...)
	api.Get("/search", append(searches, searchHandler.HandleGetSearch)...)
	api.Post("/enrich", append(searches, searchHandler.HandleEnrich)...)
	api.Get("/jobs/:jobId", searchHandler.HandleGetJob)
	api.Get("/stealth", searchHandler.HandleStealthStatus)

	return healthHandler
}

// RequireAPIKey accepts the key as a bearer token or in X-API-Key.
func RequireAPIKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}
		got := c.Get("X-API-Key")
		if got == "" {
			got = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "invalid api key"})
		}
		return c.Next()
	}
}

func searchLimiter(perMinute int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{"success": false, "error": "Rate limit exceeded"})
		},
	})
}
