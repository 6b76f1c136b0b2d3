package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

// AuditMemoryStore is an in-process AuditStore for tests and local runs.
type AuditMemoryStore struct {
	mu   sync.RWMutex
	recs map[string]map[string]types.ExecutionRecord
}

func NewAuditMemoryStore() *AuditMemoryStore {
	return &AuditMemoryStore{recs: map[string]map[string]types.ExecutionRecord{}}
}

func (s *AuditMemoryStore) Append(_ context.Context, rec types.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.recs[rec.TenantID]
	if byID == nil {
		byID = map[string]types.ExecutionRecord{}
		s.recs[rec.TenantID] = byID
	}
	if _, ok := byID[rec.ExecutionID]; ok {
		return httperr.NewConflict("execution already recorded")
	}
	byID[rec.ExecutionID] = rec
	return nil
}

func (s *AuditMemoryStore) Finalize(_ context.Context, rec types.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.recs[rec.TenantID][rec.ExecutionID]
	if !ok {
		return httperr.NewNotFound("execution not found")
	}
	if existing.Status.Terminal() {
		return httperr.NewConflict("execution already finalized")
	}
	s.recs[rec.TenantID][rec.ExecutionID] = rec
	return nil
}

func (s *AuditMemoryStore) Get(_ context.Context, tenantID string, executionID string) (types.ExecutionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[tenantID][executionID]
	return rec, ok, nil
}

func (s *AuditMemoryStore) List(_ context.Context, tenantID string, f ports.ListFilter) ([]types.ExecutionRecord, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	s.mu.RLock()
	var all []types.ExecutionRecord
	for _, rec := range s.recs[tenantID] {
		if !matchFilter(rec, f) {
			continue
		}
		all = append(all, rec)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	if f.Offset >= len(all) {
		return nil, nil
	}
	all = all[f.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func matchFilter(rec types.ExecutionRecord, f ports.ListFilter) bool {
	if f.TaskType != "" && rec.TaskType != f.TaskType {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.NeedsReview != nil && rec.NeedsReview != *f.NeedsReview {
		return false
	}
	if !f.Since.IsZero() && rec.StartedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.StartedAt.After(f.Until) {
		return false
	}
	return true
}

func (s *AuditMemoryStore) Stats(_ context.Context, tenantID string, f ports.StatsFilter) (types.ExecutionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats types.ExecutionStats
	var durTotal, confTotal float64
	for _, rec := range s.recs[tenantID] {
		if f.TaskType != "" && rec.TaskType != f.TaskType {
			continue
		}
		if !f.Since.IsZero() && rec.StartedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && rec.StartedAt.After(f.Until) {
			continue
		}
		stats.Total++
		if rec.Status == types.ExecutionSuccess {
			stats.SuccessCount++
		}
		if rec.NeedsReview {
			stats.NeedsReviewCount++
		}
		durTotal += float64(rec.DurationMS)
		confTotal += rec.Confidence
		stats.TotalTokensUsed += int64(rec.Metrics.TokensUsed)
		stats.TotalCostUSD += rec.Metrics.CostUSD
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.Total)
		stats.AvgDurationMS = durTotal / float64(stats.Total)
		stats.AvgConfidence = confTotal / float64(stats.Total)
	}
	return stats, nil
}

func (s *AuditMemoryStore) MarkReviewed(_ context.Context, tenantID string, executionID string, reviewer string, notes string, at time.Time) (types.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[tenantID][executionID]
	if !ok {
		return types.ExecutionRecord{}, httperr.NewNotFound("execution not found")
	}
	if rec.ReviewedAt != nil {
		return types.ExecutionRecord{}, httperr.NewConflict("execution already reviewed")
	}
	rec.ReviewedAt = &at
	rec.Reviewer = reviewer
	rec.ReviewNotes = notes
	s.recs[tenantID][executionID] = rec
	return rec, nil
}

var _ ports.AuditStore = (*AuditMemoryStore)(nil)
