package models

import (
	"testing"
	"time"
)

func TestUsageRecordValidate(t *testing.T) {
	now := time.Now().UTC()

	valid := UsageRecord{
		ID:              "u1",
		JobID:           "j1",
		Provider:        "google",
		Model:           "veo-3.0-generate-001",
		ActionType:      ActionTypeVideo,
		Outcome:         OutcomeVideo,
		EstimatedTokens: 12,
		EstimatedCost:   3.2,
		Timestamp:       now,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid record, got: %v", err)
	}

	cases := map[string]func(r *UsageRecord){
		"missing id":       func(r *UsageRecord) { r.ID = "" },
		"missing provider": func(r *UsageRecord) { r.Provider = "" },
		"missing model":    func(r *UsageRecord) { r.Model = "" },
		"bad action":       func(r *UsageRecord) { r.ActionType = "image" },
		"bad outcome":      func(r *UsageRecord) { r.Outcome = "partial" },
		"negative tokens":  func(r *UsageRecord) { r.EstimatedTokens = -1 },
		"negative cost":    func(r *UsageRecord) { r.EstimatedCost = -0.1 },
		"zero timestamp":   func(r *UsageRecord) { r.Timestamp = time.Time{} },
	}
	for name, mutate := range cases {
		r := valid
		mutate(&r)
		if err := r.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestJobAttemptValidate(t *testing.T) {
	now := time.Now().UTC()

	valid := JobAttempt{
		ID:            "a1",
		JobID:         "j1",
		AttemptNumber: 1,
		Model:         "veo-3.0-generate-001",
		Provider:      "google",
		StartedAt:     now,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid attempt, got: %v", err)
	}

	cases := map[string]func(a *JobAttempt){
		"missing id":     func(a *JobAttempt) { a.ID = "" },
		"missing job":    func(a *JobAttempt) { a.JobID = "" },
		"zero attempt":   func(a *JobAttempt) { a.AttemptNumber = 0 },
		"missing model":  func(a *JobAttempt) { a.Model = "" },
		"negative polls": func(a *JobAttempt) { a.PollCount = -1 },
		"negative ms":    func(a *JobAttempt) { a.LatencyMs = -1 },
		"zero started":   func(a *JobAttempt) { a.StartedAt = time.Time{} },
	}
	for name, mutate := range cases {
		a := valid
		mutate(&a)
		if err := a.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
