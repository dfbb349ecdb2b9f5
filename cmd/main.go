package main

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"mapscraper/internal/config"
	"mapscraper/internal/core/browser"
	"mapscraper/internal/core/detect"
	"mapscraper/internal/core/human"
	"mapscraper/internal/core/job"
	"mapscraper/internal/core/maps"
	"mapscraper/internal/core/proxy"
	"mapscraper/internal/core/search"
	"mapscraper/internal/core/stealth"
	"mapscraper/internal/core/website"
	"mapscraper/internal/core/workflow"
	"mapscraper/internal/health"
	"mapscraper/internal/logger"
	"mapscraper/internal/platform/eino"
	rds "mapscraper/internal/platform/redis"
	tasks "mapscraper/internal/platform/tasks"
	"mapscraper/internal/server"
	"mapscraper/internal/worker"
)

const (
	enrichSitesPerSecond = 0.5
	workerConcurrency    = 2
	searchesPerMinute    = 30
)

func main() {
	cfg := config.Load()
	log.Printf("[mapscraper] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	logr := logger.New("main")

	pool, err := proxy.Load(cfg)
	if err != nil {
		log.Fatalf("load proxies: %v", err)
	}
	family := stealth.ParseFamily(cfg.BrowserFamily)
	factory := stealth.NewFactory(browser.NewPlaywrightLauncher(), pool, stealth.Options{
		Headless: cfg.Headless,
		Stealth:  cfg.StealthEnabled,
		Family:   family,
	})
	sim := human.New(cfg.HumanSimulationEnabled)

	var solver detect.Solver
	if cfg.HasCaptchaService() {
		if solver, err = detect.NewSolver(cfg.CaptchaService, cfg.CaptchaAPIKey); err != nil {
			log.Fatal(err)
		}
	}
	checker := detect.NewHandler(solver)

	methods := []maps.Method{maps.NewBrowserMethod(factory, pool, sim, checker)}
	if cfg.HasBrowserless() {
		methods = append(methods, maps.NewRemoteMethod(cfg.BrowserlessBaseURL, cfg.BrowserlessToken))
	}
	engine := maps.NewEngine(methods...)

	var summarizer website.Summarizer
	if cfg.HasLLM() {
		einoSvc, err := eino.NewService(eino.Config{
			Provider: cfg.LLMProvider,
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.DefaultLLMModel,
		})
		if err != nil {
			log.Fatalf("failed to initialize Eino service: %v", err)
		}
		summarizer = einoSvc
	}
	pipeline := website.NewPipeline(website.NewBrowserLoader(factory, sim), website.Options{
		Fallback:       website.NewStaticLoader(family),
		SitesPerSecond: enrichSitesPerSecond,
		Summarizer:     summarizer,
	})
	orchestrator := workflow.NewOrchestrator(engine, pool, pipeline)
	if cfg.DefaultMaxResults > 0 {
		orchestrator.DefaultMaxResults = cfg.DefaultMaxResults
	}

	healthHandler := health.NewHealthHandler()
	healthHandler.Register("proxies", pool.HealthCheck)

	status := search.StealthStatus{
		StealthEnabled:  cfg.StealthEnabled,
		HumanSimulation: cfg.HumanSimulationEnabled,
		ProxyCount:      pool.Len(),
		ProxyRotation:   pool.RotationEnabled(),
		RemoteFallback:  cfg.HasBrowserless(),
		CaptchaService:  checker.SolverName(),
	}
	for _, m := range engine.Methods() {
		status.Methods = append(status.Methods, m.Name())
	}
	opts := search.Options{CacheTTL: cfg.ResultCacheTTL, MaxRetries: cfg.TaskMaxRetries, Status: status, Proxies: pool}

	// Redis backs the result cache and async jobs; without it searches run
	// synchronously and uncached.
	var (
		searchSvc   *search.Service
		asynqServer *asynq.Server
	)
	redisSvc, err := rds.New(rds.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logr.LogWarnf("redis unavailable, cache and async jobs disabled: %v", err)
		searchSvc = search.NewService(orchestrator, nil, nil, nil, opts)
	} else {
		defer redisSvc.Close()
		healthHandler.Register("redis", redisSvc.HealthCheck)

		taskClient := tasks.New(redisSvc)
		defer taskClient.Close()
		jobSvc := job.NewJobService(redisSvc)
		searchSvc = search.NewService(orchestrator, redisSvc, jobSvc, taskClient, opts)

		mux := worker.NewMux()
		mux.HandleFunc(tasks.TaskTypeSearch, searchSvc.HandleTask)
		asynqServer = asynq.NewServer(redisSvc.AsynqRedisOpt(), worker.ServerConfig(workerConcurrency, tasks.DefaultQueue))
		go func() {
			if err := asynqServer.Start(mux.Mux()); err != nil {
				log.Printf("[worker] stopped: %v\n", err)
			}
		}()
	}

	app := fiber.New(fiber.Config{
		AppName: "Maps Scraper",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})
	server.RegisterRoutes(app, server.Dependencies{
		Search:            searchSvc,
		Health:            healthHandler,
		APIKey:            cfg.APIKey,
		SearchesPerMinute: searchesPerMinute,
	})
	healthHandler.SetReady()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		if asynqServer != nil {
			asynqServer.Shutdown()
		}
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
