package services

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

func TestCreateTenant(t *testing.T) {
	store := newFakeTenantStore()
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	svc := NewProvisioningService(store, nil, WithProvisioningClock(mock))

	rec, err := svc.CreateTenant(context.Background(), CreateTenantRequest{
		Name:         "Acme Health",
		Subdomain:    "Acme",
		ContactEmail: "admin@acme.example",
		Config: types.TenantConfig{
			EnabledTasks: map[string]bool{"insurance_verification": true},
		},
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if rec.TenantID != "acme_20250101" {
		t.Fatalf("tenant_id=%q", rec.TenantID)
	}
	if rec.Status != types.StatusProvisioning {
		t.Fatalf("status=%q", rec.Status)
	}
	if rec.SubscriptionTier != "standard" {
		t.Fatalf("tier=%q", rec.SubscriptionTier)
	}
}

func TestCreateTenant_Validation(t *testing.T) {
	store := newFakeTenantStore()
	svc := NewProvisioningService(store, nil)

	t.Run("bad subdomain", func(t *testing.T) {
		_, err := svc.CreateTenant(context.Background(), CreateTenantRequest{
			Name: "X", Subdomain: "-bad-", ContactEmail: "a@b.c",
		})
		if !httperr.IsBadRequest(err) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := svc.CreateTenant(context.Background(), CreateTenantRequest{
			Subdomain: "acme", ContactEmail: "a@b.c",
		})
		if !httperr.IsBadRequest(err) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("duplicate subdomain", func(t *testing.T) {
		req := CreateTenantRequest{Name: "X", Subdomain: "dup", ContactEmail: "a@b.c"}
		if _, err := svc.CreateTenant(context.Background(), req); err != nil {
			t.Fatalf("err=%v", err)
		}
		_, err := svc.CreateTenant(context.Background(), req)
		if !httperr.IsConflict(err) {
			t.Fatalf("err=%v", err)
		}
	})
}

type recordingInvalidator struct {
	invalidated []string
}

func (r *recordingInvalidator) Invalidate(rec types.TenantRecord) {
	r.invalidated = append(r.invalidated, rec.TenantID)
}

func TestStatusChanges_InvalidateCache(t *testing.T) {
	store := newFakeTenantStore(acmeRecord())
	inv := &recordingInvalidator{}
	svc := NewProvisioningService(store, inv)

	rec, err := svc.Suspend(context.Background(), "acme_20250101", "non-payment")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if rec.Status != types.StatusSuspended || rec.StatusReason != "non-payment" {
		t.Fatalf("rec=%+v", rec)
	}

	if _, err := svc.Activate(context.Background(), "acme_20250101"); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := svc.Deactivate(context.Background(), "acme_20250101", "churned"); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(inv.invalidated) != 3 {
		t.Fatalf("invalidations=%d", len(inv.invalidated))
	}
}

func TestUpdateConfig(t *testing.T) {
	store := newFakeTenantStore(acmeRecord())
	inv := &recordingInvalidator{}
	svc := NewProvisioningService(store, inv)

	cfg := types.TenantConfig{ReviewThreshold: 0.9, EnabledTasks: map[string]bool{"medical_coding": true}}
	rec, err := svc.UpdateConfig(context.Background(), "acme_20250101", cfg)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if rec.Config.ReviewThreshold != 0.9 {
		t.Fatalf("threshold=%v", rec.Config.ReviewThreshold)
	}
	if len(inv.invalidated) != 1 {
		t.Fatalf("invalidations=%d", len(inv.invalidated))
	}

	_, err = svc.UpdateConfig(context.Background(), "acme_20250101", types.TenantConfig{ReviewThreshold: 1.5})
	if !httperr.IsBadRequest(err) {
		t.Fatalf("err=%v", err)
	}
}
