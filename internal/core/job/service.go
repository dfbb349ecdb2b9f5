// Package job keeps asynchronous search job records in the shared cache.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mapscraper/internal/core/crawlerr"
	"mapscraper/internal/core/workflow"
	"mapscraper/internal/logger"
)

// ErrNotFound is returned for unknown or expired job ids.
var ErrNotFound = errors.New("job not found")

// Store is the key-value surface job records live in.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error
	Publish(ctx context.Context, channel, message string) error
}

type JobService struct {
	store Store
	now   func() time.Time
	log   *logger.Logger
}

func NewJobService(store Store) *JobService {
	return &JobService{store: store, now: time.Now, log: logger.New("JobService")}
}

func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	if err := s.store.Get(ctx, key(jobID), &j); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return &j, nil
}

func (s *JobService) update(ctx context.Context, jobID string, fn func(*Job)) error {
	var j Job
	if err := s.store.Get(ctx, key(jobID), &j); err != nil {
		j = Job{JobID: jobID, Type: TypeSearch, CreatedAt: s.now()}
	}
	fn(&j)
	j.UpdatedAt = s.now()
	if err := s.store.Set(ctx, key(jobID), j, ttl(j.Status)); err != nil {
		return err
	}
	if err := s.store.Publish(ctx, key(jobID), string(j.Status)); err != nil {
		s.log.LogDebugf("publish update for job %s: %v", jobID, err)
	}
	return nil
}

func (s *JobService) InitPending(ctx context.Context, jobID string, req workflow.Request) error {
	return s.update(ctx, jobID, func(j *Job) {
		j.Status = StatusPending
		j.Request = req
	})
}

func (s *JobService) SetProcessing(ctx context.Context, jobID string) error {
	return s.update(ctx, jobID, func(j *Job) {
		j.Status = StatusProcessing
		j.Error, j.ErrorKind = "", ""
	})
}

func (s *JobService) Complete(ctx context.Context, jobID string, res workflow.Result) error {
	return s.update(ctx, jobID, func(j *Job) {
		j.Status = StatusCompleted
		j.Result = &res
	})
}

func (s *JobService) Fail(ctx context.Context, jobID string, err error) error {
	return s.update(ctx, jobID, func(j *Job) {
		j.Status = StatusFailed
		j.Error = err.Error()
		j.ErrorKind = string(crawlerr.KindOf(err))
	})
}

func key(id string) string { return "job:" + id }

func ttl(s Status) time.Duration {
	if s.Done() {
		return time.Hour
	}
	return 30 * time.Minute
}
