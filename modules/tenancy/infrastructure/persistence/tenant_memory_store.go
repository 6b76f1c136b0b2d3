package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

// TenantMemoryStore is an in-process TenantStore for tests and local runs.
type TenantMemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]types.TenantRecord
}

func NewTenantMemoryStore() *TenantMemoryStore {
	return &TenantMemoryStore{tenants: map[string]types.TenantRecord{}}
}

func (s *TenantMemoryStore) FindByID(_ context.Context, tenantID string) (types.TenantRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tenants[tenantID]
	return rec, ok, nil
}

func (s *TenantMemoryStore) FindBySubdomain(_ context.Context, subdomain string) (types.TenantRecord, bool, error) {
	subdomain = strings.ToLower(subdomain)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.tenants {
		if rec.Subdomain == subdomain {
			return rec, true, nil
		}
	}
	return types.TenantRecord{}, false, nil
}

func (s *TenantMemoryStore) FindByDomain(_ context.Context, domain string) (types.TenantRecord, bool, error) {
	domain = strings.ToLower(domain)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.tenants {
		for _, d := range rec.Domains {
			if d == domain {
				return rec, true, nil
			}
		}
	}
	return types.TenantRecord{}, false, nil
}

func (s *TenantMemoryStore) List(_ context.Context, status types.TenantStatus, limit int, offset int) ([]types.TenantRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	s.mu.RLock()
	var all []types.TenantRecord
	for _, rec := range s.tenants {
		if status != "" && rec.Status != status {
			continue
		}
		all = append(all, rec)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *TenantMemoryStore) Create(_ context.Context, rec types.TenantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[rec.TenantID]; ok {
		return httperr.NewConflict("tenant already exists")
	}
	for _, existing := range s.tenants {
		if existing.Subdomain == rec.Subdomain {
			return httperr.NewConflict("subdomain already in use")
		}
	}
	s.tenants[rec.TenantID] = rec
	return nil
}

func (s *TenantMemoryStore) UpdateStatus(_ context.Context, tenantID string, status types.TenantStatus, reason string) (types.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tenants[tenantID]
	if !ok {
		return types.TenantRecord{}, httperr.NewNotFound("tenant not found")
	}
	rec.Status = status
	rec.StatusReason = reason
	rec.UpdatedAt = time.Now().UTC()
	s.tenants[tenantID] = rec
	return rec, nil
}

func (s *TenantMemoryStore) UpdateConfig(_ context.Context, tenantID string, cfg types.TenantConfig) (types.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tenants[tenantID]
	if !ok {
		return types.TenantRecord{}, httperr.NewNotFound("tenant not found")
	}
	rec.Config = cfg
	rec.UpdatedAt = time.Now().UTC()
	s.tenants[tenantID] = rec
	return rec, nil
}

func (s *TenantMemoryStore) IncrementTaskExecutions(_ context.Context, tenantID string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tenants[tenantID]
	if !ok {
		return httperr.NewNotFound("tenant not found")
	}
	rec.TotalTaskExecutions += n
	s.tenants[tenantID] = rec
	return nil
}

var _ ports.TenantStore = (*TenantMemoryStore)(nil)
