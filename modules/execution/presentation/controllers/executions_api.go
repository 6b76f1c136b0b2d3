package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/services"
	tenancytypes "github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/authz"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

// TenantBinding is the per-request tenant view handed down by the
// middleware: the record snapshot plus the routed database pool.
type TenantBinding struct {
	Record tenancytypes.TenantRecord
	DB     *pgxpool.Pool
}

// TenantGetter pulls the bound tenant out of the request context.
type TenantGetter func(ctx context.Context) (TenantBinding, bool)

// ExecutionsController serves POST /api/tasks/{type}/execute.
type ExecutionsController struct {
	Tenant   TenantGetter
	Executor *services.Executor
	Authz    *authz.Authorizer
}

func (c ExecutionsController) HandleTaskExecuteAPI(w http.ResponseWriter, r *http.Request) {
	binding, ok := c.Tenant(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	taskType, tail, _ := strings.Cut(rest, "/")
	if taskType == "" || tail != "execute" {
		writeError(w, r, http.StatusNotFound, "not_found", "not found")
		return
	}

	if !authorize(c.Authz, r, binding.Record.TenantID, authz.ObjectTasks, authz.ActionExecute) {
		writeError(w, r, http.StatusForbidden, "forbidden", "actor not allowed to execute tasks")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 || !json.Valid(body) {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}

	rec, err := c.Executor.Execute(r.Context(), taskType, body, ports.TaskContext{
		Tenant:      binding.Record,
		DB:          binding.DB,
		TriggeredBy: strings.TrimSpace(r.Header.Get("X-Actor")),
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrUnknownTaskType):
			writeError(w, r, http.StatusNotFound, "unknown_task_type", "unknown task type")
		case errors.Is(err, types.ErrTaskDisabled):
			writeError(w, r, http.StatusForbidden, "task_disabled", "task type not enabled for tenant")
		case httperr.IsConflict(err):
			writeError(w, r, http.StatusConflict, "conflict", err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "execution_error", "execution could not be driven")
		}
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func authorize(a *authz.Authorizer, r *http.Request, tenantID string, obj string, act string) bool {
	if a == nil {
		return true
	}
	sub := authz.SubjectFromRoleSlug(r.Header.Get("X-Actor-Role"))
	allowed, enforced, err := a.Authorize(sub, authz.DomainFromTenantID(tenantID), obj, act)
	if err != nil {
		return false
	}
	if !enforced {
		return true
	}
	return allowed
}
