package types

import (
	"encoding/json"
	"time"
)

type ExecutionStatus string

const (
	ExecutionPending  ExecutionStatus = "pending"
	ExecutionSuccess  ExecutionStatus = "success"
	ExecutionFailed   ExecutionStatus = "failed"
	ExecutionTimedOut ExecutionStatus = "timed_out"
)

func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionPending, ExecutionSuccess, ExecutionFailed, ExecutionTimedOut:
		return true
	}
	return false
}

// Terminal reports whether the status can never change again.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionSuccess || s == ExecutionFailed || s == ExecutionTimedOut
}

// Review reasons recorded on executions flagged for a human.
const (
	ReviewReasonLowConfidence   = "low_confidence"
	ReviewReasonTimeout         = "timeout"
	ReviewReasonExplicitFlag    = "explicit_flag"
	ReviewReasonExecutionFailed = "execution_failed"
)

// ExecutionMetrics aggregates resource usage reported by a task run.
type ExecutionMetrics struct {
	APICalls   int     `json:"api_calls,omitempty"`
	TokensUsed int     `json:"tokens_used,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
}

// ExecutionRecord is the audit trail entry for one task execution.
// Exactly one record exists per accepted execution; outcome fields are
// written once at finalization and never mutated afterwards.
type ExecutionRecord struct {
	ExecutionID string `json:"execution_id"`
	TenantID    string `json:"tenant_id"`
	TaskType    string `json:"task_type"`
	TaskVersion string `json:"task_version,omitempty"`

	Status ExecutionStatus `json:"status"`

	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`

	Confidence  float64 `json:"confidence"`
	RetriesUsed int     `json:"retries_used"`
	DurationMS  int64   `json:"duration_ms"`

	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`

	Metrics ExecutionMetrics `json:"metrics"`

	NeedsReview  bool   `json:"needs_review"`
	ReviewReason string `json:"review_reason,omitempty"`

	TriggeredBy string     `json:"triggered_by,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	Reviewer    string     `json:"reviewer,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`
}

// ExecutionStats is the aggregate view over a set of executions.
type ExecutionStats struct {
	Total            int64   `json:"total"`
	SuccessCount     int64   `json:"success_count"`
	SuccessRate      float64 `json:"success_rate"`
	AvgDurationMS    float64 `json:"avg_duration_ms"`
	AvgConfidence    float64 `json:"avg_confidence"`
	NeedsReviewCount int64   `json:"needs_review_count"`
	TotalTokensUsed  int64   `json:"total_tokens_used"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
}
