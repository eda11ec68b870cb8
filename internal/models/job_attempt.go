package models

import (
	"fmt"
	"time"
)

// JobAttempt is the audit trail of one submit+poll cycle inside a job.
type JobAttempt struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id"`
	AttemptNumber  int       `json:"attempt_number"`
	Model          string    `json:"model"`
	Provider       string    `json:"provider"`
	HasAssets      bool      `json:"has_assets"`
	OperationName  string    `json:"operation_name,omitempty"`
	PollCount      int       `json:"poll_count"`
	LatencyMs      int64     `json:"latency_ms"`
	Classification string    `json:"classification,omitempty"`
	Decision       string    `json:"decision,omitempty"`
	Error          *string   `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

func (a JobAttempt) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if a.AttemptNumber <= 0 {
		return fmt.Errorf("attempt_number must be greater than zero")
	}
	if a.Model == "" {
		return fmt.Errorf("model is required")
	}
	if a.PollCount < 0 {
		return fmt.Errorf("poll_count must be zero or positive")
	}
	if a.LatencyMs < 0 {
		return fmt.Errorf("latency_ms must be zero or positive")
	}
	if a.StartedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	return nil
}
