package tasks

import (
	"time"

	"mapscraper/internal/platform/redis"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeSearch = "maps:search"
	DefaultQueue   = "default"
)

type Client struct{ c *asynq.Client }

func New(r *redis.Service) *Client { return &Client{c: asynq.NewClient(r.AsynqRedisOpt())} }

// Enqueue submits task with a whole-run timeout.
func (t *Client) Enqueue(task *asynq.Task, queue string, maxRetries int) error {
	_, err := t.c.Enqueue(task, asynq.Queue(queue), asynq.MaxRetry(maxRetries), asynq.Timeout(15*time.Minute))
	return err
}

func (t *Client) Close() error { return t.c.Close() }
