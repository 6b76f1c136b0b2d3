package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/pkg/uuidv7"
)

const (
	DefaultMaxRetries  = 3
	DefaultTaskTimeout = 300 * time.Second
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffCap  = 30 * time.Second
)

var errAttemptTimeout = errors.New("task attempt timed out")

// UsageRecorder is the slice of the tenant store the executor needs to
// keep usage counters current.
type UsageRecorder interface {
	IncrementTaskExecutions(ctx context.Context, tenantID string, n int64) error
}

// Executor drives task executions: enablement check, pending audit
// record, bounded attempt loop with transient-only retries, confidence
// evaluation and exactly-one finalization.
type Executor struct {
	registry *Registry
	audit    ports.AuditStore
	usage    UsageRecorder
	eval     *ConfidenceEvaluator

	clock       clock.Clock
	logger      *zap.Logger
	maxRetries  int
	taskTimeout time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration
}

type ExecutorOption func(*Executor)

func WithExecutorClock(clk clock.Clock) ExecutorOption {
	return func(e *Executor) { e.clock = clk }
}

func WithExecutorLogger(log *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = log.With(zap.String("service", "executor")) }
}

func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

func WithTaskTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.taskTimeout = d
		}
	}
}

func WithBackoff(base, cap time.Duration) ExecutorOption {
	return func(e *Executor) {
		if base > 0 {
			e.backoffBase = base
		}
		if cap > 0 {
			e.backoffCap = cap
		}
	}
}

func WithUsageRecorder(u UsageRecorder) ExecutorOption {
	return func(e *Executor) { e.usage = u }
}

func NewExecutor(registry *Registry, audit ports.AuditStore, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:    registry,
		audit:       audit,
		eval:        NewConfidenceEvaluator(),
		clock:       clock.New(),
		logger:      zap.NewNop(),
		maxRetries:  DefaultMaxRetries,
		taskTimeout: DefaultTaskTimeout,
		backoffBase: DefaultBackoffBase,
		backoffCap:  DefaultBackoffCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one task for the tenant bound in tc. The returned record
// describes the outcome even when the task itself failed; a non-nil
// error means the execution could not be driven (unknown or disabled
// task, audit failure) or the caller's context was canceled.
func (e *Executor) Execute(ctx context.Context, taskType string, input json.RawMessage, tc ports.TaskContext) (types.ExecutionRecord, error) {
	runner, ok := e.registry.lookup(taskType)
	if !ok {
		return types.ExecutionRecord{}, types.ErrUnknownTaskType
	}
	if !tc.Tenant.Config.TaskEnabled(taskType) {
		return types.ExecutionRecord{}, types.ErrTaskDisabled
	}

	executionID, err := uuidv7.NewString()
	if err != nil {
		return types.ExecutionRecord{}, err
	}

	started := e.clock.Now().UTC()
	rec := types.ExecutionRecord{
		ExecutionID: executionID,
		TenantID:    tc.Tenant.TenantID,
		TaskType:    taskType,
		TaskVersion: runner.version,
		Status:      types.ExecutionPending,
		Input:       input,
		TriggeredBy: tc.TriggeredBy,
		StartedAt:   started,
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		return types.ExecutionRecord{}, err
	}

	e.logger.Info("task_execution_started",
		zap.String("tenant_id", rec.TenantID),
		zap.String("task_type", taskType),
		zap.String("execution_id", rec.ExecutionID))

	outcome, attempts, runErr := e.attemptLoop(ctx, runner, input, tc)
	rec.RetriesUsed = attempts - 1

	switch {
	case runErr == nil:
		rec.Status = types.ExecutionSuccess
		rec.Output = outcome.Output
		rec.Confidence = outcome.Confidence
		rec.Metrics = outcome.Metrics
	case errors.Is(runErr, errAttemptTimeout):
		rec.Status = types.ExecutionTimedOut
		rec.Error = "task attempt exceeded " + e.taskTimeout.String()
		rec.ErrorKind = string(types.ErrorTransient)
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		// Caller went away between attempts; nothing ran to completion.
		rec.Status = types.ExecutionFailed
		rec.Error = runErr.Error()
		rec.ErrorKind = string(types.ErrorFatal)
	default:
		rec.Status = types.ExecutionFailed
		rec.Error = runErr.Error()
		rec.ErrorKind = string(types.ClassifyError(runErr))
	}

	completed := e.clock.Now().UTC()
	rec.CompletedAt = &completed
	rec.DurationMS = completed.Sub(started).Milliseconds()

	e.eval.Evaluate(&rec, tc.Tenant.Config, outcome.FlagForReview)

	if err := e.audit.Finalize(ctx, rec); err != nil {
		return types.ExecutionRecord{}, err
	}

	if e.usage != nil {
		if err := e.usage.IncrementTaskExecutions(context.WithoutCancel(ctx), rec.TenantID, 1); err != nil {
			e.logger.Warn("usage_increment_failed",
				zap.String("tenant_id", rec.TenantID),
				zap.Error(err))
		}
	}

	e.logger.Info("task_execution_finished",
		zap.String("tenant_id", rec.TenantID),
		zap.String("execution_id", rec.ExecutionID),
		zap.String("status", string(rec.Status)),
		zap.Int("retries_used", rec.RetriesUsed),
		zap.Bool("needs_review", rec.NeedsReview))
	return rec, nil
}

// attemptLoop runs up to 1+maxRetries attempts. Only transient errors
// (timeouts included) trigger another attempt; the wait between
// attempts doubles each time up to the cap.
func (e *Executor) attemptLoop(ctx context.Context, runner rawRunner, input json.RawMessage, tc ports.TaskContext) (RunOutcome, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if attempts == 0 {
				attempts = 1
			}
			return RunOutcome{}, attempts, err
		}
		attempts++

		outcome, err := e.runOnce(ctx, runner, input, tc)
		if err == nil {
			return outcome, attempts, nil
		}
		lastErr = err

		retryable := errors.Is(err, errAttemptTimeout) || types.ClassifyError(err) == types.ErrorTransient
		if !retryable || attempt == e.maxRetries {
			return RunOutcome{}, attempts, err
		}

		delay := e.backoffBase << attempt
		if delay > e.backoffCap {
			delay = e.backoffCap
		}
		e.logger.Debug("task_attempt_retrying",
			zap.String("task_version", runner.version),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))
		timer := e.clock.Timer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return RunOutcome{}, attempts, ctx.Err()
		}
	}
	return RunOutcome{}, attempts, lastErr
}

// runOnce bounds a single attempt with the task timeout. The timeout is
// cooperative: the attempt's context is canceled and the goroutine is
// left to drain in the background.
func (e *Executor) runOnce(ctx context.Context, runner rawRunner, input json.RawMessage, tc ports.TaskContext) (RunOutcome, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		outcome RunOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := runner.run(attemptCtx, input, tc)
		done <- result{outcome, err}
	}()

	timer := e.clock.Timer(e.taskTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.outcome, res.err
	case <-timer.C:
		cancel()
		return RunOutcome{}, errAttemptTimeout
	case <-ctx.Done():
		return RunOutcome{}, ctx.Err()
	}
}
