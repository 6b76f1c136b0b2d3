package ports

import (
	"context"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
)

// TenantStore is the durable tenant registry. Lookups return
// (record, found, error); writes happen only through provisioning.
type TenantStore interface {
	FindByID(ctx context.Context, tenantID string) (types.TenantRecord, bool, error)
	FindBySubdomain(ctx context.Context, subdomain string) (types.TenantRecord, bool, error)
	FindByDomain(ctx context.Context, domain string) (types.TenantRecord, bool, error)
	List(ctx context.Context, status types.TenantStatus, limit int, offset int) ([]types.TenantRecord, error)

	Create(ctx context.Context, rec types.TenantRecord) error
	UpdateStatus(ctx context.Context, tenantID string, status types.TenantStatus, reason string) (types.TenantRecord, error)
	UpdateConfig(ctx context.Context, tenantID string, cfg types.TenantConfig) (types.TenantRecord, error)
	IncrementTaskExecutions(ctx context.Context, tenantID string, n int64) error
}
