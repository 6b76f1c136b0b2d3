package services

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
	tenancytypes "github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
)

var newReviewRuleCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)))
}

var newReviewRuleCELProgram = func(env *cel.Env, ast *cel.Ast) (cel.Program, error) {
	return env.Program(ast)
}

var reviewRuleProgramCache sync.Map

// ConfidenceEvaluator decides whether a finished execution needs human
// review: below-threshold confidence, non-success outcomes, an explicit
// task flag, or a matching tenant review rule all force review.
type ConfidenceEvaluator struct {
	logger *zap.Logger
}

func NewConfidenceEvaluator() *ConfidenceEvaluator {
	return &ConfidenceEvaluator{logger: zap.NewNop()}
}

func (e *ConfidenceEvaluator) WithLogger(log *zap.Logger) *ConfidenceEvaluator {
	e.logger = log.With(zap.String("service", "confidence"))
	return e
}

// ClampConfidence forces a reported confidence into [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Evaluate fills Confidence, NeedsReview and ReviewReason on rec.
// flagged is the task's own review flag. The record's Status must be
// terminal when this runs.
func (e *ConfidenceEvaluator) Evaluate(rec *types.ExecutionRecord, cfg tenancytypes.TenantConfig, flagged bool) {
	rec.Confidence = ClampConfidence(rec.Confidence)

	switch {
	case rec.Status == types.ExecutionTimedOut:
		rec.NeedsReview = true
		rec.ReviewReason = types.ReviewReasonTimeout
	case rec.Status != types.ExecutionSuccess:
		rec.NeedsReview = true
		rec.ReviewReason = types.ReviewReasonExecutionFailed
	case rec.Confidence < cfg.EffectiveReviewThreshold():
		rec.NeedsReview = true
		rec.ReviewReason = types.ReviewReasonLowConfidence
	case flagged:
		rec.NeedsReview = true
		rec.ReviewReason = types.ReviewReasonExplicitFlag
	}
	if rec.NeedsReview {
		return
	}

	for _, rule := range cfg.ReviewRules {
		matched, err := evalReviewRule(rule.Expr, rec)
		if err != nil {
			// A broken rule must not let executions slip past review.
			e.logger.Warn("review_rule_error",
				zap.String("rule_id", rule.RuleID),
				zap.Error(err))
			matched = true
		}
		if matched {
			rec.NeedsReview = true
			rec.ReviewReason = rule.ReasonCode
			return
		}
	}
}

func evalReviewRule(expr string, rec *types.ExecutionRecord) (bool, error) {
	program, err := loadOrCompileReviewRule(expr)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(map[string]any{"ctx": map[string]any{
		"task_type":    rec.TaskType,
		"task_version": rec.TaskVersion,
		"status":       string(rec.Status),
		"confidence":   rec.Confidence,
		"retries_used": rec.RetriesUsed,
		"duration_ms":  rec.DurationMS,
		"cost_usd":     rec.Metrics.CostUSD,
		"tokens_used":  rec.Metrics.TokensUsed,
	}})
	if err != nil {
		return false, err
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("rule did not produce bool")
	}
	return v, nil
}

func loadOrCompileReviewRule(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := reviewRuleProgramCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newReviewRuleCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.New("expression output type mismatch")
	}
	program, err := newReviewRuleCELProgram(env, ast)
	if err != nil {
		return nil, err
	}
	reviewRuleProgramCache.Store(expr, program)
	return program, nil
}
