// Package worker runs queued searches on an asynq server.
package worker

import (
	"context"
	"time"

	"mapscraper/internal/logger"

	"github.com/hibiken/asynq"
)

type HandlerFunc func(ctx context.Context, task *asynq.Task) error

// Mux routes task types to handlers and logs each task's outcome.
type Mux struct {
	mux   *asynq.ServeMux
	log   *logger.Logger
	types []string
}

func NewMux() *Mux { return &Mux{mux: asynq.NewServeMux(), log: logger.New("Worker")} }

func (m *Mux) HandleFunc(taskType string, h HandlerFunc) {
	m.types = append(m.types, taskType)
	m.mux.HandleFunc(taskType, func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()
		err := h(ctx, task)
		if err != nil {
			m.log.LogWarnf("task %s failed after %v: %v", taskType, time.Since(start), err)
			return err
		}
		m.log.LogDebugf("task %s done in %v", taskType, time.Since(start))
		return nil
	})
}

// Types lists the registered task types in registration order.
func (m *Mux) Types() []string { return m.types }

func (m *Mux) Mux() *asynq.ServeMux { return m.mux }

// ServerConfig is the asynq server setup for the search queue. Concurrency is
// kept low since every task drives a full browser session.
func ServerConfig(concurrency int, queue string) asynq.Config {
	if concurrency <= 0 {
		concurrency = 1
	}
	return asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
	}
}
