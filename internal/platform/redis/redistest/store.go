// Package redistest provides an in-memory stand-in for the Redis cache.
package redistest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"mapscraper/internal/platform/redis"
)

// Store keeps JSON values in memory and records publishes. TTLs are recorded
// but never expire entries.
type Store struct {
	mu        sync.Mutex
	values    map[string][]byte
	TTLs      map[string]time.Duration
	Published []string
	SetErr    error
}

func New() *Store {
	return &Store{values: map[string][]byte{}, TTLs: map[string]time.Duration{}}
}

func (s *Store) Get(_ context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.values[key]
	if !ok {
		return redis.ErrMiss
	}
	return json.Unmarshal(b, dest)
}

func (s *Store) Set(_ context.Context, key string, val interface{}, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil {
		return s.SetErr
	}
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	s.values[key] = b
	s.TTLs[key] = ttl
	return nil
}

func (s *Store) Publish(_ context.Context, channel, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Published = append(s.Published, channel+" "+message)
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
