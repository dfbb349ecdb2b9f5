package job

import (
	"time"

	"mapscraper/internal/core/workflow"
)

// Job is the stored record of one asynchronous search run.
type Job struct {
	JobID     string           `json:"job_id"`
	Type      Type             `json:"type"`
	Status    Status           `json:"status"`
	Request   workflow.Request `json:"request"`
	Result    *workflow.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type Type string

const TypeSearch Type = "search"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Done() bool { return s == StatusCompleted || s == StatusFailed }
