// Package redis holds the shared Redis connection used for the result cache,
// job records and the task queue.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mapscraper/internal/logger"

	redisv8 "github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

type Options struct {
	Addr     string
	Password string
}

type Service struct {
	client *redisv8.Client
	log    *logger.Logger
}

func New(opts Options) (*Service, error) {
	c := redisv8.NewClient(&redisv8.Options{Addr: opts.Addr, Password: opts.Password})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &Service{client: c, log: logger.New("Redis")}, nil
}

func (s *Service) Close() error            { return s.client.Close() }
func (s *Service) Client() *redisv8.Client { return s.client }

// HealthCheck pings and round-trips a short-lived key.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.log.LogErrorf("Redis health check failed: %v", err)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	key := "health:check:" + time.Now().Format("20060102150405.000")
	if err := s.client.Set(ctx, key, "ok", 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write failed: %w", err)
	}
	defer s.client.Del(ctx, key)
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis read failed: %w", err)
	}
	if val != "ok" {
		return fmt.Errorf("redis value mismatch: got %q", val)
	}
	return nil
}

func (s *Service) AsynqRedisOpt() asynq.RedisClientOpt {
	o := s.client.Options()
	return asynq.RedisClientOpt{Addr: o.Addr, Password: o.Password}
}

// Get decodes the JSON value at key into dest.
func (s *Service) Get(ctx context.Context, key string, dest interface{}) error {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redisv8.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}

// Set stores val as JSON under key for ttl.
func (s *Service) Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, b, ttl).Err()
}

// Publish notifies subscribers of channel.
func (s *Service) Publish(ctx context.Context, channel, message string) error {
	return s.client.Publish(ctx, channel, message).Err()
}
