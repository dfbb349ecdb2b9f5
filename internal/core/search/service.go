// Package search exposes the workflow to callers, synchronously with a result
// cache or asynchronously through the task queue.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mapscraper/internal/core/crawlerr"
	"mapscraper/internal/core/job"
	"mapscraper/internal/core/maps"
	"mapscraper/internal/core/proxy"
	"mapscraper/internal/core/workflow"
	"mapscraper/internal/logger"
	"mapscraper/internal/platform/redis"
	tasks "mapscraper/internal/platform/tasks"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Runner executes one workflow run.
type Runner interface {
	Validate(req workflow.Request) (workflow.Request, error)
	Run(ctx context.Context, req workflow.Request) (workflow.Result, *workflow.State, error)
	EnrichListings(ctx context.Context, listings []maps.Listing, location string) (workflow.Result, error)
}

// Cache stores completed results.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error
}

type Enqueuer interface {
	Enqueue(task *asynq.Task, queue string, maxRetries int) error
}

// ProxySnapshotter reports proxy health for the status endpoint.
type ProxySnapshotter interface {
	Snapshot() []proxy.State
}

// StealthStatus describes the anti-detection setup of this process.
type StealthStatus struct {
	StealthEnabled  bool          `json:"stealth_enabled"`
	HumanSimulation bool          `json:"human_simulation_enabled"`
	ProxyCount      int           `json:"proxy_count"`
	ProxyRotation   bool          `json:"proxy_rotation_enabled"`
	RemoteFallback  bool          `json:"browserless_fallback"`
	CaptchaService  string        `json:"captcha_service,omitempty"`
	Methods         []string      `json:"methods"`
	Proxies         []proxy.State `json:"proxies,omitempty"`
}

type Options struct {
	CacheTTL   time.Duration
	MaxRetries int
	Status     StealthStatus
	Proxies    ProxySnapshotter
}

type Service struct {
	runner Runner
	cache  Cache
	jobs   *job.JobService
	tasks  Enqueuer
	opts   Options
	log    *logger.Logger
}

// NewService wires the runner with optional cache, job store and queue; nil
// collaborators disable the matching feature.
func NewService(runner Runner, cache Cache, jobs *job.JobService, tq Enqueuer, opts Options) *Service {
	return &Service{runner: runner, cache: cache, jobs: jobs, tasks: tq, opts: opts, log: logger.New("SearchService")}
}

// TaskPayload is the queued form of a run.
type TaskPayload struct {
	JobID   string           `json:"job_id"`
	Request workflow.Request `json:"request"`
}

func cacheKey(req workflow.Request) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return "search:" + hex.EncodeToString(sum[:16])
}

// Run executes req, serving a cached result when one exists.
func (s *Service) Run(ctx context.Context, req workflow.Request) (workflow.Result, error) {
	req, err := s.runner.Validate(req)
	if err != nil {
		return workflow.Result{}, err
	}
	key := cacheKey(req)
	if s.cache != nil {
		var cached workflow.Result
		switch err := s.cache.Get(ctx, key, &cached); {
		case err == nil:
			s.log.LogDebugf("cache hit for %q", req.Query)
			return cached, nil
		case !errors.Is(err, redis.ErrMiss):
			s.log.LogWarnf("cache read failed: %v", err)
		}
	}

	res, _, err := s.runner.Run(ctx, req)
	if err != nil {
		return workflow.Result{}, err
	}
	if s.cache != nil && s.opts.CacheTTL > 0 {
		if err := s.cache.Set(ctx, key, res, s.opts.CacheTTL); err != nil {
			s.log.LogWarnf("cache write failed: %v", err)
		}
	}
	return res, nil
}

// Enqueue validates req and queues it, returning the job id.
func (s *Service) Enqueue(ctx context.Context, req workflow.Request) (string, error) {
	if s.jobs == nil || s.tasks == nil {
		return "", errors.New("async search is not configured")
	}
	req, err := s.runner.Validate(req)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	payload, err := json.Marshal(TaskPayload{JobID: id, Request: req})
	if err != nil {
		return "", err
	}
	if err := s.jobs.InitPending(ctx, id, req); err != nil {
		return "", err
	}
	if err := s.tasks.Enqueue(asynq.NewTask(tasks.TaskTypeSearch, payload), tasks.DefaultQueue, s.opts.MaxRetries); err != nil {
		return "", err
	}
	s.log.LogInfof("enqueued search job %s for %q in %q", id, req.Query, req.Location)
	return id, nil
}

// HandleTask runs a queued search. Crawl-level failures are returned so the
// queue retries with a fresh session; invalid input is never retried.
func (s *Service) HandleTask(ctx context.Context, task *asynq.Task) error {
	var p TaskPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	s.log.LogInfof("processing search job %s for %q", p.JobID, p.Request.Query)
	if err := s.jobs.SetProcessing(ctx, p.JobID); err != nil {
		return err
	}
	res, err := s.Run(ctx, p.Request)
	if err != nil {
		if ferr := s.jobs.Fail(ctx, p.JobID, err); ferr != nil {
			s.log.LogErrorf("record failure for job %s: %v", p.JobID, ferr)
		}
		if crawlerr.KindOf(err) == crawlerr.KindValidation {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if err := s.jobs.Complete(ctx, p.JobID, res); err != nil {
		return err
	}
	s.log.LogSuccessf("search job %s completed with %d listings", p.JobID, res.TotalFound)
	return nil
}

// EnrichListings runs website enrichment over caller-supplied listings.
func (s *Service) EnrichListings(ctx context.Context, listings []maps.Listing, location string) (workflow.Result, error) {
	s.log.LogInfof("enrich request with %d listings", len(listings))
	return s.runner.EnrichListings(ctx, listings, location)
}

// Job returns the stored record for id.
func (s *Service) Job(ctx context.Context, id string) (*job.Job, error) {
	if s.jobs == nil {
		return nil, job.ErrNotFound
	}
	return s.jobs.GetJobStatus(ctx, id)
}

func (s *Service) Status() StealthStatus {
	st := s.opts.Status
	if s.opts.Proxies != nil {
		st.Proxies = s.opts.Proxies.Snapshot()
	}
	return st
}
