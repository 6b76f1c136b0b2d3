package ports

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	tenancytypes "github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
)

// TaskContext carries the tenant binding a task runs under. Tasks must
// touch tenant data only through DB, which is already routed to the
// tenant's database.
type TaskContext struct {
	Tenant      tenancytypes.TenantRecord
	DB          *pgxpool.Pool
	TriggeredBy string
}

// TaskResult is what a successful (or partially successful) run reports.
type TaskResult[O any] struct {
	Output     O
	Confidence float64
	// FlagForReview forces human review regardless of confidence.
	FlagForReview bool
	Metrics       types.ExecutionMetrics
}

// Task is one unit of business work. Run must be side-effect free on
// failure: the driver may call it again for transient errors.
type Task[I, O any] interface {
	Type() string
	Version() string
	Run(ctx context.Context, input I, tc TaskContext) (TaskResult[O], error)
}
