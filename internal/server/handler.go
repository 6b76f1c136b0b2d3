package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/TalkDocInc/agentic-talkdoc-platform/internal/routing"
	execcontrollers "github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/presentation/controllers"
	execservices "github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/services"
	tenancyports "github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/infrastructure/dbrouter"
	tenancycontrollers "github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/presentation/controllers"
	tenancyservices "github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/services"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/authz"
)

// TenantIDHeader carries an explicit tenant id; it wins over any
// host-based identification.
const TenantIDHeader = "X-Tenant-ID"

type HandlerOptions struct {
	Classifier *routing.Classifier

	Resolver *tenancyservices.Resolver
	Cache    *tenancyservices.ConfigCache
	// DBRouter is optional; without it requests carry no tenant pool.
	DBRouter *dbrouter.Router

	Executor     *execservices.Executor
	Audit        *execservices.AuditLogService
	Provisioning *tenancyservices.ProvisioningService
	TenantStore  tenancyports.TenantStore

	Authorizer *authz.Authorizer
	Logger     *zap.Logger
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := routing.NewRouter(opts.Classifier)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(handleHealth))

	tenantGetter := func(ctx context.Context) (execcontrollers.TenantBinding, bool) {
		tc, ok := currentTenantContext(ctx)
		if !ok {
			return execcontrollers.TenantBinding{}, false
		}
		binding := execcontrollers.TenantBinding{Record: tc.Record}
		if tc.Handle != nil {
			binding.DB = tc.Handle.Pool()
		}
		return binding, true
	}

	if opts.Executor != nil {
		executions := execcontrollers.ExecutionsController{
			Tenant:   tenantGetter,
			Executor: opts.Executor,
			Authz:    opts.Authorizer,
		}
		router.Handle(routing.RouteClassPublicAPI, http.MethodPost,
			"/api/tasks/{task_type}/execute", http.HandlerFunc(executions.HandleTaskExecuteAPI))
	}

	if opts.Audit != nil {
		audit := execcontrollers.AuditController{
			Tenant: tenantGetter,
			Audit:  opts.Audit,
			Authz:  opts.Authorizer,
		}
		router.Handle(routing.RouteClassPublicAPI, http.MethodGet,
			"/api/audit/executions", http.HandlerFunc(audit.HandleExecutionsAPI))
		router.Handle(routing.RouteClassPublicAPI, http.MethodGet,
			"/api/audit/executions/{execution_id}", http.HandlerFunc(audit.HandleExecutionsAPI))
		router.Handle(routing.RouteClassPublicAPI, http.MethodPost,
			"/api/audit/executions/{execution_id}/review", http.HandlerFunc(audit.HandleExecutionsAPI))
		router.Handle(routing.RouteClassPublicAPI, http.MethodGet,
			"/api/audit/stats", http.HandlerFunc(audit.HandleStatsAPI))
	}

	if opts.Provisioning != nil && opts.TenantStore != nil {
		tenants := tenancycontrollers.TenantsController{
			Store:   opts.TenantStore,
			Service: opts.Provisioning,
		}
		platform := platformGuard(opts.Authorizer)
		router.Handle(routing.RouteClassPlatformAPI, http.MethodGet,
			"/platform/tenants", platform(tenants.HandleTenantsAPI))
		router.Handle(routing.RouteClassPlatformAPI, http.MethodPost,
			"/platform/tenants", platform(tenants.HandleTenantsAPI))
		router.Handle(routing.RouteClassPlatformAPI, http.MethodGet,
			"/platform/tenants/{tenant_id}", platform(tenants.HandleTenantAPI))
		router.Handle(routing.RouteClassPlatformAPI, http.MethodPost,
			"/platform/tenants/{tenant_id}/status", platform(tenants.HandleTenantAPI))
		router.Handle(routing.RouteClassPlatformAPI, http.MethodPut,
			"/platform/tenants/{tenant_id}/config", platform(tenants.HandleTenantAPI))
	}

	return withTenantBinding(opts.Classifier, opts.Resolver, opts.Cache, opts.DBRouter, log, router), nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// platformGuard authorizes platform-admin actions in the global domain.
func platformGuard(a *authz.Authorizer) func(http.HandlerFunc) http.Handler {
	return func(next http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a != nil {
				sub := authz.SubjectFromRoleSlug(r.Header.Get("X-Actor-Role"))
				allowed, enforced, err := a.Authorize(sub, authz.DomainGlobal, authz.ObjectPlatformTenants, authz.ActionAdmin)
				if err != nil {
					routing.WriteError(w, r, http.StatusInternalServerError, "authz_error", "authorization error")
					return
				}
				if enforced && !allowed {
					routing.WriteError(w, r, http.StatusForbidden, "forbidden", "platform admin required")
					return
				}
			}
			next(w, r)
		})
	}
}

// withTenantBinding resolves and binds the tenant for every request
// outside the platform and ops surfaces. The database handle acquired
// here is released on every exit path, panics included.
func withTenantBinding(classifier *routing.Classifier, resolver *tenancyservices.Resolver, cache *tenancyservices.ConfigCache, router *dbrouter.Router, log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/ready" || pathHasPrefixSegment(path, "/platform") {
			next.ServeHTTP(w, r)
			return
		}
		rc := routing.RouteClassPublicAPI
		if classifier != nil {
			rc = classifier.Classify(path)
		}
		// Platform and ops surfaces are never tenant-bound.
		if rc != routing.RouteClassPublicAPI {
			next.ServeHTTP(w, r)
			return
		}

		ident, ok := resolver.Resolve(tenancyservices.RequestMeta{
			TenantIDHeader: r.Header.Get(TenantIDHeader),
			Host:           effectiveHost(r),
		})
		if !ok {
			routing.WriteError(w, r, http.StatusNotFound, "tenant_not_found", "no tenant identifier in request")
			return
		}

		rec, found, err := cache.Get(r.Context(), ident)
		if err != nil {
			log.Error("tenant_resolve_error", zap.String("identifier", ident.CacheKey()), zap.Error(err))
			routing.WriteError(w, r, http.StatusInternalServerError, "tenant_resolve_error", "tenant resolve error")
			return
		}
		if !found {
			routing.WriteError(w, r, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}

		switch rec.Status {
		case types.StatusActive:
		case types.StatusSuspended:
			routing.WriteError(w, r, http.StatusServiceUnavailable, "tenant_suspended", "tenant suspended")
			return
		case types.StatusProvisioning:
			routing.WriteError(w, r, http.StatusServiceUnavailable, "tenant_provisioning", "tenant still provisioning")
			return
		default:
			routing.WriteError(w, r, http.StatusForbidden, "tenant_deactivated", "tenant deactivated")
			return
		}

		tc := TenantContext{Record: rec}
		if router != nil {
			h, err := router.Acquire(r.Context(), rec.TenantID)
			if err != nil {
				log.Error("tenant_db_unavailable", zap.String("tenant_id", rec.TenantID), zap.Error(err))
				routing.WriteError(w, r, http.StatusServiceUnavailable, "tenant_db_unavailable", "tenant database unavailable")
				return
			}
			tc.Handle = h
			defer h.Release()
		}

		w.Header().Set(TenantIDHeader, rec.TenantID)
		log.Debug("tenant_context_set", zap.String("tenant_id", rec.TenantID))
		next.ServeHTTP(w, r.WithContext(withTenantContext(r.Context(), tc)))
	})
}

func effectiveHost(r *http.Request) string {
	host := strings.TrimSpace(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	if i := strings.IndexByte(host, ','); i >= 0 {
		host = host[:i]
	}
	return strings.TrimSpace(host)
}

func pathHasPrefixSegment(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)+1] == prefix+"/"
}
