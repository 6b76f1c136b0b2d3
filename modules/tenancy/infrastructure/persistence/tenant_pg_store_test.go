package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

type querierStub struct {
	row     pgx.Row
	rows    pgx.Rows
	execTag pgconn.CommandTag
	execErr error
	lastSQL string
}

func (q *querierStub) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.lastSQL = sql
	if q.row != nil {
		return q.row
	}
	return stubRow{err: errors.New("row not mocked")}
}

func (q *querierStub) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.lastSQL = sql
	if q.rows != nil {
		return q.rows, nil
	}
	return &stubRows{}, nil
}

func (q *querierStub) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	q.lastSQL = sql
	return q.execTag, q.execErr
}

type stubRows struct{}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Next() bool                                   { return false }
func (r *stubRows) Scan(...any) error                            { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

type stubRow struct {
	vals []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		if i >= len(r.vals) || r.vals[i] == nil {
			continue
		}
		switch d := dest[i].(type) {
		case *string:
			*d = r.vals[i].(string)
		case *int64:
			*d = r.vals[i].(int64)
		case *[]byte:
			*d = r.vals[i].([]byte)
		case *[]string:
			*d = r.vals[i].([]string)
		case *time.Time:
			*d = r.vals[i].(time.Time)
		}
	}
	return nil
}

func tenantRowVals() []any {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []any{
		"acme_20250101", "Acme Health", "", "acme", []string{"portal.acme.example"},
		"active", "", []byte(`{"review_threshold":0.9}`), "standard",
		"ops@acme.example", int64(12), now, now,
	}
}

func TestTenantPGStore_FindByID(t *testing.T) {
	ctx := context.Background()

	store := NewTenantPGStore(&querierStub{row: stubRow{vals: tenantRowVals()}})
	rec, ok, err := store.FindByID(ctx, "acme_20250101")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !ok {
		t.Fatal("expected record")
	}
	if rec.TenantID != "acme_20250101" || rec.Status != types.StatusActive {
		t.Fatalf("rec=%+v", rec)
	}
	if rec.Config.ReviewThreshold != 0.9 {
		t.Fatalf("threshold=%v", rec.Config.ReviewThreshold)
	}

	store = NewTenantPGStore(&querierStub{row: stubRow{err: pgx.ErrNoRows}})
	_, ok, err = store.FindByID(ctx, "missing")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}

	store = NewTenantPGStore(&querierStub{row: stubRow{err: errors.New("boom")}})
	if _, _, err := store.FindByID(ctx, "acme_20250101"); err == nil {
		t.Fatal("expected error")
	}
}

func TestTenantPGStore_FindByDomainLowercasesInput(t *testing.T) {
	q := &querierStub{row: stubRow{vals: tenantRowVals()}}
	store := NewTenantPGStore(q)
	if _, _, err := store.FindByDomain(context.Background(), "Portal.ACME.example"); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestTenantPGStore_CreateDuplicate(t *testing.T) {
	store := NewTenantPGStore(&querierStub{execErr: &pgconn.PgError{Code: "23505"}})
	err := store.Create(context.Background(), types.TenantRecord{TenantID: "acme_20250101"})
	if !httperr.IsConflict(err) {
		t.Fatalf("err=%v", err)
	}

	store = NewTenantPGStore(&querierStub{execErr: errors.New("boom")})
	if err := store.Create(context.Background(), types.TenantRecord{}); httperr.IsConflict(err) || err == nil {
		t.Fatalf("err=%v", err)
	}
}

func TestTenantPGStore_UpdateStatusMissing(t *testing.T) {
	store := NewTenantPGStore(&querierStub{row: stubRow{err: pgx.ErrNoRows}})
	_, err := store.UpdateStatus(context.Background(), "missing", types.StatusSuspended, "billing")
	if !httperr.IsNotFound(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestTenantPGStore_IncrementTaskExecutionsMissing(t *testing.T) {
	store := NewTenantPGStore(&querierStub{execTag: pgconn.NewCommandTag("UPDATE 0")})
	err := store.IncrementTaskExecutions(context.Background(), "missing", 1)
	if !httperr.IsNotFound(err) {
		t.Fatalf("err=%v", err)
	}

	store = NewTenantPGStore(&querierStub{execTag: pgconn.NewCommandTag("UPDATE 1")})
	if err := store.IncrementTaskExecutions(context.Background(), "acme_20250101", 1); err != nil {
		t.Fatalf("err=%v", err)
	}
}
