package services

import (
	"context"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/httperr"
)

// AuditLogService is the read/review surface over the execution trail.
type AuditLogService struct {
	store  ports.AuditStore
	clock  clock.Clock
	logger *zap.Logger
}

type AuditLogOption func(*AuditLogService)

func WithAuditLogClock(clk clock.Clock) AuditLogOption {
	return func(s *AuditLogService) { s.clock = clk }
}

func WithAuditLogLogger(log *zap.Logger) AuditLogOption {
	return func(s *AuditLogService) { s.logger = log.With(zap.String("service", "audit-log")) }
}

func NewAuditLogService(store ports.AuditStore, opts ...AuditLogOption) *AuditLogService {
	s := &AuditLogService{
		store:  store,
		clock:  clock.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuditLogService) Get(ctx context.Context, tenantID string, executionID string) (types.ExecutionRecord, error) {
	rec, ok, err := s.store.Get(ctx, tenantID, executionID)
	if err != nil {
		return types.ExecutionRecord{}, err
	}
	if !ok {
		return types.ExecutionRecord{}, httperr.NewNotFound("execution not found")
	}
	return rec, nil
}

func (s *AuditLogService) List(ctx context.Context, tenantID string, f ports.ListFilter) ([]types.ExecutionRecord, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, httperr.NewBadRequest("invalid status filter")
	}
	return s.store.List(ctx, tenantID, f)
}

func (s *AuditLogService) Stats(ctx context.Context, tenantID string, f ports.StatsFilter) (types.ExecutionStats, error) {
	return s.store.Stats(ctx, tenantID, f)
}

// MarkReviewed records that a human looked at the execution. The
// outcome fields stay untouched; a second review is rejected.
func (s *AuditLogService) MarkReviewed(ctx context.Context, tenantID string, executionID string, reviewer string, notes string) (types.ExecutionRecord, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return types.ExecutionRecord{}, httperr.NewBadRequest("reviewer is required")
	}
	rec, err := s.store.MarkReviewed(ctx, tenantID, executionID, reviewer, strings.TrimSpace(notes), s.clock.Now().UTC())
	if err != nil {
		return types.ExecutionRecord{}, err
	}
	s.logger.Info("execution_reviewed",
		zap.String("tenant_id", tenantID),
		zap.String("execution_id", executionID),
		zap.String("reviewer", reviewer))
	return rec, nil
}
