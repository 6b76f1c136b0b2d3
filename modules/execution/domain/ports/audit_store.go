package ports

import (
	"context"
	"time"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
)

// ListFilter narrows List queries. Zero values mean "no constraint".
type ListFilter struct {
	TaskType    string
	Status      types.ExecutionStatus
	NeedsReview *bool
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

// StatsFilter narrows Stats aggregation.
type StatsFilter struct {
	TaskType string
	Since    time.Time
	Until    time.Time
}

// AuditStore is the durable execution trail for one tenant's database.
// Append writes the pending record before the task runs; Finalize writes
// the outcome exactly once.
type AuditStore interface {
	Append(ctx context.Context, rec types.ExecutionRecord) error
	Finalize(ctx context.Context, rec types.ExecutionRecord) error
	Get(ctx context.Context, tenantID string, executionID string) (types.ExecutionRecord, bool, error)
	List(ctx context.Context, tenantID string, f ListFilter) ([]types.ExecutionRecord, error)
	Stats(ctx context.Context, tenantID string, f StatsFilter) (types.ExecutionStats, error)
	MarkReviewed(ctx context.Context, tenantID string, executionID string, reviewer string, notes string, at time.Time) (types.ExecutionRecord, error)
}
