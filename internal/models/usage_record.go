package models

import (
	"fmt"
	"time"
)

type ActionType string

const ActionTypeVideo ActionType = "video"

type Outcome string

const (
	OutcomeVideo      Outcome = "video"
	OutcomeStoryboard Outcome = "storyboard"
	OutcomeFailed     Outcome = "failed"
)

// UsageRecord is append-only: one per terminal job outcome.
type UsageRecord struct {
	ID              string     `json:"id"`
	JobID           string     `json:"job_id"`
	Provider        string     `json:"provider"`
	Model           string     `json:"model"`
	ActionType      ActionType `json:"action_type"`
	Outcome         Outcome    `json:"outcome"`
	EstimatedTokens int        `json:"estimated_tokens"`
	EstimatedCost   float64    `json:"estimated_cost"`
	UserID          string     `json:"user_id,omitempty"`
	ProjectID       string     `json:"project_id,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

func (r UsageRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	if r.ActionType != ActionTypeVideo {
		return fmt.Errorf("invalid action_type: %q", r.ActionType)
	}
	switch r.Outcome {
	case OutcomeVideo, OutcomeStoryboard, OutcomeFailed:
	default:
		return fmt.Errorf("invalid outcome: %q", r.Outcome)
	}
	if r.EstimatedTokens < 0 {
		return fmt.Errorf("estimated_tokens must be zero or positive")
	}
	if r.EstimatedCost < 0 {
		return fmt.Errorf("estimated_cost must be zero or positive")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
