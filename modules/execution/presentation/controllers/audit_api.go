package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/services"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/authz"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

// AuditController serves the audit trail: list, single record, review
// and aggregate stats.
type AuditController struct {
	Tenant TenantGetter
	Audit  *services.AuditLogService
	Authz  *authz.Authorizer
}

type reviewAPIRequest struct {
	Notes string `json:"notes,omitempty"`
}

// HandleExecutionsAPI serves GET /api/audit/executions and everything
// below it: GET …/{id} and POST …/{id}/review.
func (c AuditController) HandleExecutionsAPI(w http.ResponseWriter, r *http.Request) {
	binding, ok := c.Tenant(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	tenantID := binding.Record.TenantID

	rest := strings.TrimPrefix(r.URL.Path, "/api/audit/executions")
	rest = strings.TrimPrefix(rest, "/")
	executionID, action, _ := strings.Cut(rest, "/")

	switch {
	case executionID == "" && r.Method == http.MethodGet:
		if !authorize(c.Authz, r, tenantID, authz.ObjectAuditLog, authz.ActionRead) {
			writeError(w, r, http.StatusForbidden, "forbidden", "actor not allowed to read audit log")
			return
		}
		f, err := listFilterFromQuery(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_filter", err.Error())
			return
		}
		recs, err := c.Audit.List(r.Context(), tenantID, f)
		if err != nil {
			writeAuditError(w, r, err, "list failed")
			return
		}
		if recs == nil {
			recs = make([]types.ExecutionRecord, 0)
		}
		writeJSON(w, http.StatusOK, map[string]any{"executions": recs})

	case executionID != "" && action == "" && r.Method == http.MethodGet:
		if !authorize(c.Authz, r, tenantID, authz.ObjectAuditLog, authz.ActionRead) {
			writeError(w, r, http.StatusForbidden, "forbidden", "actor not allowed to read audit log")
			return
		}
		rec, err := c.Audit.Get(r.Context(), tenantID, executionID)
		if err != nil {
			writeAuditError(w, r, err, "lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case executionID != "" && action == "review" && r.Method == http.MethodPost:
		if !authorize(c.Authz, r, tenantID, authz.ObjectAuditLog, authz.ActionReview) {
			writeError(w, r, http.StatusForbidden, "forbidden", "actor not allowed to review executions")
			return
		}
		var req reviewAPIRequest
		if r.Body != nil {
			// empty body means review with no notes
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		reviewer := strings.TrimSpace(r.Header.Get("X-Actor"))
		rec, err := c.Audit.MarkReviewed(r.Context(), tenantID, executionID, reviewer, req.Notes)
		if err != nil {
			writeAuditError(w, r, err, "review failed")
			return
		}
		writeJSON(w, http.StatusOK, rec)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// HandleStatsAPI serves GET /api/audit/stats.
func (c AuditController) HandleStatsAPI(w http.ResponseWriter, r *http.Request) {
	binding, ok := c.Tenant(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if !authorize(c.Authz, r, binding.Record.TenantID, authz.ObjectAuditLog, authz.ActionRead) {
		writeError(w, r, http.StatusForbidden, "forbidden", "actor not allowed to read audit log")
		return
	}

	var f ports.StatsFilter
	f.TaskType = strings.TrimSpace(r.URL.Query().Get("task_type"))
	var err error
	if f.Since, err = parseTimeParam(r, "since"); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_since", "invalid since")
		return
	}
	if f.Until, err = parseTimeParam(r, "until"); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_until", "invalid until")
		return
	}

	stats, err := c.Audit.Stats(r.Context(), binding.Record.TenantID, f)
	if err != nil {
		writeAuditError(w, r, err, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func listFilterFromQuery(r *http.Request) (ports.ListFilter, error) {
	var f ports.ListFilter
	q := r.URL.Query()
	f.TaskType = strings.TrimSpace(q.Get("task_type"))
	f.Status = types.ExecutionStatus(strings.TrimSpace(q.Get("status")))
	if v := strings.TrimSpace(q.Get("needs_review")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, err
		}
		f.NeedsReview = &b
	}
	var err error
	if f.Since, err = parseTimeParam(r, "since"); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam(r, "until"); err != nil {
		return f, err
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			return f, err
		}
	}
	return f, nil
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func writeAuditError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case httperr.IsBadRequest(err):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case httperr.IsNotFound(err):
		writeError(w, r, http.StatusNotFound, "execution_not_found", err.Error())
	case httperr.IsConflict(err):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", message)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id"`
	Meta    errorEnvelopeMeta `json:"meta"`
}

type errorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Code:    code,
		Message: message,
		TraceID: traceIDFromRequest(r),
		Meta: errorEnvelopeMeta{
			Path:   r.URL.Path,
			Method: r.Method,
		},
	})
}

func traceIDFromRequest(r *http.Request) string {
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}
