package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TenantPGStore persists tenant records in the platform database.
// Tenant configuration lives in a jsonb column so config additions do
// not require schema changes.
type TenantPGStore struct {
	q pgQuerier
}

func NewTenantPGStore(q pgQuerier) ports.TenantStore {
	return &TenantPGStore{q: q}
}

const tenantColumns = `tenant_id, name, description, subdomain, domains, status, status_reason,
config, subscription_tier, contact_email, total_task_executions, created_at, updated_at`

func (s *TenantPGStore) FindByID(ctx context.Context, tenantID string) (types.TenantRecord, bool, error) {
	return s.findOne(ctx, `
SELECT `+tenantColumns+`
FROM platform.tenants
WHERE tenant_id = $1
`, tenantID)
}

func (s *TenantPGStore) FindBySubdomain(ctx context.Context, subdomain string) (types.TenantRecord, bool, error) {
	return s.findOne(ctx, `
SELECT `+tenantColumns+`
FROM platform.tenants
WHERE subdomain = $1
`, strings.ToLower(subdomain))
}

func (s *TenantPGStore) FindByDomain(ctx context.Context, domain string) (types.TenantRecord, bool, error) {
	return s.findOne(ctx, `
SELECT `+tenantColumns+`
FROM platform.tenants
WHERE $1 = ANY(domains)
`, strings.ToLower(domain))
}

func (s *TenantPGStore) findOne(ctx context.Context, sql string, arg any) (types.TenantRecord, bool, error) {
	rec, err := scanTenant(s.q.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.TenantRecord{}, false, nil
		}
		return types.TenantRecord{}, false, err
	}
	return rec, true, nil
}

func (s *TenantPGStore) List(ctx context.Context, status types.TenantStatus, limit int, offset int) ([]types.TenantRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	sql := `
SELECT ` + tenantColumns + `
FROM platform.tenants
`
	args := []any{}
	if status != "" {
		sql += `WHERE status = $1
`
		args = append(args, string(status))
	}
	sql += `ORDER BY created_at DESC
LIMIT ` + itoa(limit) + ` OFFSET ` + itoa(offset)

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.TenantRecord
	for rows.Next() {
		rec, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *TenantPGStore) Create(ctx context.Context, rec types.TenantRecord) error {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
INSERT INTO platform.tenants (`+tenantColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`, rec.TenantID, rec.Name, rec.Description, rec.Subdomain, rec.Domains,
		string(rec.Status), rec.StatusReason, cfg, rec.SubscriptionTier,
		rec.ContactEmail, rec.TotalTaskExecutions, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return httperr.NewConflict("tenant already exists")
		}
		return err
	}
	return nil
}

func (s *TenantPGStore) UpdateStatus(ctx context.Context, tenantID string, status types.TenantStatus, reason string) (types.TenantRecord, error) {
	rec, err := scanTenant(s.q.QueryRow(ctx, `
UPDATE platform.tenants
SET status = $2, status_reason = $3, updated_at = now()
WHERE tenant_id = $1
RETURNING `+tenantColumns+`
`, tenantID, string(status), reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.TenantRecord{}, httperr.NewNotFound("tenant not found")
		}
		return types.TenantRecord{}, err
	}
	return rec, nil
}

func (s *TenantPGStore) UpdateConfig(ctx context.Context, tenantID string, cfg types.TenantConfig) (types.TenantRecord, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return types.TenantRecord{}, err
	}
	rec, err := scanTenant(s.q.QueryRow(ctx, `
UPDATE platform.tenants
SET config = $2, updated_at = now()
WHERE tenant_id = $1
RETURNING `+tenantColumns+`
`, tenantID, b))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.TenantRecord{}, httperr.NewNotFound("tenant not found")
		}
		return types.TenantRecord{}, err
	}
	return rec, nil
}

func (s *TenantPGStore) IncrementTaskExecutions(ctx context.Context, tenantID string, n int64) error {
	tag, err := s.q.Exec(ctx, `
UPDATE platform.tenants
SET total_task_executions = total_task_executions + $2, updated_at = now()
WHERE tenant_id = $1
`, tenantID, n)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NewNotFound("tenant not found")
	}
	return nil
}

func scanTenant(row pgx.Row) (types.TenantRecord, error) {
	var rec types.TenantRecord
	var status string
	var cfg []byte
	err := row.Scan(&rec.TenantID, &rec.Name, &rec.Description, &rec.Subdomain,
		&rec.Domains, &status, &rec.StatusReason, &cfg, &rec.SubscriptionTier,
		&rec.ContactEmail, &rec.TotalTaskExecutions, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return types.TenantRecord{}, err
	}
	rec.Status = types.TenantStatus(status)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &rec.Config); err != nil {
			return types.TenantRecord{}, err
		}
	}
	return rec, nil
}

func itoa(n int) string {
	if n < 0 {
		n = 0
	}
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
