package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// CacheInvalidator is the slice of ConfigCache provisioning needs.
type CacheInvalidator interface {
	Invalidate(rec types.TenantRecord)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(types.TenantRecord) {}

// ProvisioningService owns all tenant writes. Every write invalidates
// the config cache so stale snapshots never outlive an update.
type ProvisioningService struct {
	store  ports.TenantStore
	cache  CacheInvalidator
	clock  clock.Clock
	logger *zap.Logger
}

type ProvisioningOption func(*ProvisioningService)

func WithProvisioningClock(clk clock.Clock) ProvisioningOption {
	return func(s *ProvisioningService) { s.clock = clk }
}

func WithProvisioningLogger(log *zap.Logger) ProvisioningOption {
	return func(s *ProvisioningService) {
		s.logger = log.With(zap.String("service", "tenant-provisioning"))
	}
}

func NewProvisioningService(store ports.TenantStore, cache CacheInvalidator, opts ...ProvisioningOption) *ProvisioningService {
	if cache == nil {
		cache = noopInvalidator{}
	}
	s := &ProvisioningService{
		store:  store,
		cache:  cache,
		clock:  clock.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateTenantRequest struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Subdomain    string             `json:"subdomain"`
	Domains      []string           `json:"domains,omitempty"`
	ContactEmail string             `json:"contact_email"`
	Tier         string             `json:"subscription_tier,omitempty"`
	Config       types.TenantConfig `json:"config"`
}

// CreateTenant registers a tenant as Provisioning. The tenant id is
// derived from the subdomain plus the creation date, e.g. "acme_20250101".
func (s *ProvisioningService) CreateTenant(ctx context.Context, req CreateTenantRequest) (types.TenantRecord, error) {
	sub := strings.ToLower(strings.TrimSpace(req.Subdomain))
	if !subdomainPattern.MatchString(sub) {
		return types.TenantRecord{}, httperr.NewBadRequest("invalid subdomain")
	}
	if strings.TrimSpace(req.Name) == "" {
		return types.TenantRecord{}, httperr.NewBadRequest("name is required")
	}
	if strings.TrimSpace(req.ContactEmail) == "" {
		return types.TenantRecord{}, httperr.NewBadRequest("contact_email is required")
	}

	if _, exists, err := s.store.FindBySubdomain(ctx, sub); err != nil {
		return types.TenantRecord{}, err
	} else if exists {
		return types.TenantRecord{}, httperr.NewConflict("subdomain already taken")
	}

	now := s.clock.Now().UTC()
	tier := req.Tier
	if tier == "" {
		tier = "standard"
	}
	rec := types.TenantRecord{
		TenantID:         sub + "_" + now.Format("20060102"),
		Name:             strings.TrimSpace(req.Name),
		Description:      strings.TrimSpace(req.Description),
		Subdomain:        sub,
		Domains:          normalizeDomains(req.Domains),
		Status:           types.StatusProvisioning,
		Config:           req.Config,
		SubscriptionTier: tier,
		ContactEmail:     strings.TrimSpace(req.ContactEmail),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return types.TenantRecord{}, err
	}

	s.logger.Info("tenant_created",
		zap.String("tenant_id", rec.TenantID),
		zap.String("subdomain", rec.Subdomain))
	return rec, nil
}

// Activate moves a tenant to Active and clears its status reason.
func (s *ProvisioningService) Activate(ctx context.Context, tenantID string) (types.TenantRecord, error) {
	return s.setStatus(ctx, tenantID, types.StatusActive, "")
}

func (s *ProvisioningService) Suspend(ctx context.Context, tenantID string, reason string) (types.TenantRecord, error) {
	return s.setStatus(ctx, tenantID, types.StatusSuspended, reason)
}

func (s *ProvisioningService) Deactivate(ctx context.Context, tenantID string, reason string) (types.TenantRecord, error) {
	return s.setStatus(ctx, tenantID, types.StatusDeactivated, reason)
}

func (s *ProvisioningService) setStatus(ctx context.Context, tenantID string, status types.TenantStatus, reason string) (types.TenantRecord, error) {
	rec, err := s.store.UpdateStatus(ctx, tenantID, status, reason)
	if err != nil {
		return types.TenantRecord{}, err
	}
	s.cache.Invalidate(rec)
	s.logger.Info("tenant_status_changed",
		zap.String("tenant_id", tenantID),
		zap.String("status", string(status)))
	return rec, nil
}

// UpdateConfig replaces the tenant configuration wholesale.
func (s *ProvisioningService) UpdateConfig(ctx context.Context, tenantID string, cfg types.TenantConfig) (types.TenantRecord, error) {
	if cfg.ReviewThreshold < 0 || cfg.ReviewThreshold > 1 {
		return types.TenantRecord{}, httperr.NewBadRequest("review_threshold must be in [0,1]")
	}
	rec, err := s.store.UpdateConfig(ctx, tenantID, cfg)
	if err != nil {
		return types.TenantRecord{}, err
	}
	s.cache.Invalidate(rec)
	s.logger.Info("tenant_config_updated", zap.String("tenant_id", tenantID))
	return rec, nil
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
