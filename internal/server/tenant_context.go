package server

import (
	"context"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/infrastructure/dbrouter"
)

// TenantContext is the per-request tenant binding: an immutable record
// snapshot plus the acquired database handle. It never outlives the
// request; the middleware releases the handle on every exit path.
type TenantContext struct {
	Record types.TenantRecord
	Handle *dbrouter.Handle
}

type tenantCtxKey struct{}

func withTenantContext(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tc)
}

func currentTenantContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(tenantCtxKey{}).(TenantContext)
	return tc, ok
}
