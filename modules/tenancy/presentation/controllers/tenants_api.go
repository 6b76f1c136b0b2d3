package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/services"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

// TenantsController serves the platform-admin tenant surface under
// /platform/tenants. It never runs behind tenant binding; callers are
// authorized against the platform domain before the request reaches it.
type TenantsController struct {
	Store   ports.TenantStore
	Service *services.ProvisioningService
}

type tenantStatusAPIRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// HandleTenantsAPI serves GET (list) and POST (create) on the collection.
func (c TenantsController) HandleTenantsAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := types.TenantStatus(strings.TrimSpace(r.URL.Query().Get("status")))
		if status != "" && !status.Valid() {
			writeError(w, r, http.StatusBadRequest, "invalid_status", "invalid status filter")
			return
		}
		limit, offset := pagination(r)
		recs, err := c.Store.List(r.Context(), status, limit, offset)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "list_failed", "list failed")
			return
		}
		if recs == nil {
			recs = make([]types.TenantRecord, 0)
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenants": recs})

	case http.MethodPost:
		var req services.CreateTenantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		rec, err := c.Service.CreateTenant(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err, "create failed")
			return
		}
		writeJSON(w, http.StatusCreated, rec)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// HandleTenantAPI serves one tenant: GET, POST …/status, PUT …/config.
// The path below /platform/tenants/ is "<tenant_id>[/status|/config]".
func (c TenantsController) HandleTenantAPI(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/platform/tenants/")
	tenantID, action, _ := strings.Cut(rest, "/")
	if tenantID == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "tenant id missing")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		rec, ok, err := c.Store.FindByID(r.Context(), tenantID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "lookup_failed", "lookup failed")
			return
		}
		if !ok {
			writeError(w, r, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case action == "status" && r.Method == http.MethodPost:
		var req tenantStatusAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		var rec types.TenantRecord
		var err error
		switch types.TenantStatus(req.Status) {
		case types.StatusActive:
			rec, err = c.Service.Activate(r.Context(), tenantID)
		case types.StatusSuspended:
			rec, err = c.Service.Suspend(r.Context(), tenantID, req.Reason)
		case types.StatusDeactivated:
			rec, err = c.Service.Deactivate(r.Context(), tenantID, req.Reason)
		default:
			writeError(w, r, http.StatusBadRequest, "invalid_status", "invalid target status")
			return
		}
		if err != nil {
			writeServiceError(w, r, err, "status change failed")
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case action == "config" && r.Method == http.MethodPut:
		var cfg types.TenantConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		rec, err := c.Service.UpdateConfig(r.Context(), tenantID, cfg)
		if err != nil {
			writeServiceError(w, r, err, "config update failed")
			return
		}
		writeJSON(w, http.StatusOK, rec)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func pagination(r *http.Request) (limit int, offset int) {
	limit = 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case httperr.IsBadRequest(err):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case httperr.IsNotFound(err):
		writeError(w, r, http.StatusNotFound, "tenant_not_found", err.Error())
	case httperr.IsConflict(err):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", message)
	}
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
