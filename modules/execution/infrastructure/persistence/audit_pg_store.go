package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/infrastructure/dbrouter"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

// AuditPGStore persists execution records in each tenant's own database,
// routed per call through the database router.
type AuditPGStore struct {
	router *dbrouter.Router
}

func NewAuditPGStore(router *dbrouter.Router) ports.AuditStore {
	return &AuditPGStore{router: router}
}

const auditColumns = `execution_id, task_type, task_version, status, input, output,
confidence, retries_used, duration_ms, error, error_kind, metrics,
needs_review, review_reason, triggered_by, started_at, completed_at,
reviewed_at, reviewer, review_notes`

func (s *AuditPGStore) Append(ctx context.Context, rec types.ExecutionRecord) error {
	h, err := s.router.Acquire(ctx, rec.TenantID)
	if err != nil {
		return err
	}
	defer h.Release()

	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return err
	}
	_, err = h.Pool().Exec(ctx, `
INSERT INTO execution.audit_log (execution_id, task_type, task_version, status, input, metrics, triggered_by, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, rec.ExecutionID, rec.TaskType, rec.TaskVersion, string(rec.Status), []byte(rec.Input), metrics, rec.TriggeredBy, rec.StartedAt)
	return err
}

func (s *AuditPGStore) Finalize(ctx context.Context, rec types.ExecutionRecord) error {
	h, err := s.router.Acquire(ctx, rec.TenantID)
	if err != nil {
		return err
	}
	defer h.Release()

	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return err
	}
	tag, err := h.Pool().Exec(ctx, `
UPDATE execution.audit_log
SET status = $2, output = $3, confidence = $4, retries_used = $5,
    duration_ms = $6, error = $7, error_kind = $8, metrics = $9,
    needs_review = $10, review_reason = $11, completed_at = $12
WHERE execution_id = $1 AND status = 'pending'
`, rec.ExecutionID, string(rec.Status), []byte(rec.Output), rec.Confidence,
		rec.RetriesUsed, rec.DurationMS, rec.Error, rec.ErrorKind, metrics,
		rec.NeedsReview, rec.ReviewReason, rec.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NewConflict("execution missing or already finalized")
	}
	return nil
}

func (s *AuditPGStore) Get(ctx context.Context, tenantID string, executionID string) (types.ExecutionRecord, bool, error) {
	h, err := s.router.Acquire(ctx, tenantID)
	if err != nil {
		return types.ExecutionRecord{}, false, err
	}
	defer h.Release()

	rec, err := scanExecution(h.Pool().QueryRow(ctx, `
SELECT `+auditColumns+`
FROM execution.audit_log
WHERE execution_id = $1
`, executionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ExecutionRecord{}, false, nil
		}
		return types.ExecutionRecord{}, false, err
	}
	rec.TenantID = tenantID
	return rec, true, nil
}

func (s *AuditPGStore) List(ctx context.Context, tenantID string, f ports.ListFilter) ([]types.ExecutionRecord, error) {
	h, err := s.router.Acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	sql := `
SELECT ` + auditColumns + `
FROM execution.audit_log
WHERE 1=1
`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.TaskType != "" {
		sql += ` AND task_type = ` + arg(f.TaskType)
	}
	if f.Status != "" {
		sql += ` AND status = ` + arg(string(f.Status))
	}
	if f.NeedsReview != nil {
		sql += ` AND needs_review = ` + arg(*f.NeedsReview)
	}
	if !f.Since.IsZero() {
		sql += ` AND started_at >= ` + arg(f.Since)
	}
	if !f.Until.IsZero() {
		sql += ` AND started_at <= ` + arg(f.Until)
	}
	sql += `
ORDER BY started_at DESC
LIMIT ` + strconv.Itoa(limit) + ` OFFSET ` + strconv.Itoa(max(f.Offset, 0))

	rows, err := h.Pool().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		rec.TenantID = tenantID
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *AuditPGStore) Stats(ctx context.Context, tenantID string, f ports.StatsFilter) (types.ExecutionStats, error) {
	h, err := s.router.Acquire(ctx, tenantID)
	if err != nil {
		return types.ExecutionStats{}, err
	}
	defer h.Release()

	sql := `
SELECT count(*),
       count(*) FILTER (WHERE status = 'success'),
       coalesce(avg(duration_ms), 0),
       coalesce(avg(confidence), 0),
       count(*) FILTER (WHERE needs_review),
       coalesce(sum((metrics->>'tokens_used')::bigint), 0),
       coalesce(sum((metrics->>'cost_usd')::numeric), 0)::float8
FROM execution.audit_log
WHERE 1=1
`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.TaskType != "" {
		sql += ` AND task_type = ` + arg(f.TaskType)
	}
	if !f.Since.IsZero() {
		sql += ` AND started_at >= ` + arg(f.Since)
	}
	if !f.Until.IsZero() {
		sql += ` AND started_at <= ` + arg(f.Until)
	}

	var stats types.ExecutionStats
	err = h.Pool().QueryRow(ctx, sql, args...).Scan(
		&stats.Total, &stats.SuccessCount, &stats.AvgDurationMS,
		&stats.AvgConfidence, &stats.NeedsReviewCount,
		&stats.TotalTokensUsed, &stats.TotalCostUSD)
	if err != nil {
		return types.ExecutionStats{}, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.Total)
	}
	return stats, nil
}

func (s *AuditPGStore) MarkReviewed(ctx context.Context, tenantID string, executionID string, reviewer string, notes string, at time.Time) (types.ExecutionRecord, error) {
	h, err := s.router.Acquire(ctx, tenantID)
	if err != nil {
		return types.ExecutionRecord{}, err
	}
	defer h.Release()

	rec, err := scanExecution(h.Pool().QueryRow(ctx, `
UPDATE execution.audit_log
SET reviewed_at = $2, reviewer = $3, review_notes = $4
WHERE execution_id = $1 AND reviewed_at IS NULL
RETURNING `+auditColumns+`
`, executionID, at, reviewer, notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either unknown or already reviewed; tell them apart.
			var exists bool
			if scanErr := h.Pool().QueryRow(ctx,
				`SELECT true FROM execution.audit_log WHERE execution_id = $1`, executionID,
			).Scan(&exists); scanErr == nil && exists {
				return types.ExecutionRecord{}, httperr.NewConflict("execution already reviewed")
			}
			return types.ExecutionRecord{}, httperr.NewNotFound("execution not found")
		}
		return types.ExecutionRecord{}, err
	}
	rec.TenantID = tenantID
	return rec, nil
}

func scanExecution(row pgx.Row) (types.ExecutionRecord, error) {
	var rec types.ExecutionRecord
	var status string
	var input, output, metrics []byte
	err := row.Scan(&rec.ExecutionID, &rec.TaskType, &rec.TaskVersion, &status,
		&input, &output, &rec.Confidence, &rec.RetriesUsed, &rec.DurationMS,
		&rec.Error, &rec.ErrorKind, &metrics, &rec.NeedsReview,
		&rec.ReviewReason, &rec.TriggeredBy, &rec.StartedAt, &rec.CompletedAt,
		&rec.ReviewedAt, &rec.Reviewer, &rec.ReviewNotes)
	if err != nil {
		return types.ExecutionRecord{}, err
	}
	rec.Status = types.ExecutionStatus(status)
	rec.Input = input
	rec.Output = output
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &rec.Metrics); err != nil {
			return types.ExecutionRecord{}, err
		}
	}
	return rec, nil
}
