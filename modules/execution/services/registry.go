package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
)

// RunOutcome is the type-erased result of one task run.
type RunOutcome struct {
	Output        json.RawMessage
	Confidence    float64
	FlagForReview bool
	Metrics       types.ExecutionMetrics
}

type rawRunner struct {
	version string
	run     func(ctx context.Context, input json.RawMessage, tc ports.TaskContext) (RunOutcome, error)
}

// Registry maps task types to their runners. Registration happens at
// startup; lookups are read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]rawRunner
}

func NewRegistry() *Registry {
	return &Registry{tasks: map[string]rawRunner{}}
}

// Register wires a typed task into the registry, erasing its input and
// output types to JSON. Input that does not decode into I fails the
// attempt as a validation error.
func Register[I, O any](r *Registry, task ports.Task[I, O]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.Type()] = rawRunner{
		version: task.Version(),
		run: func(ctx context.Context, raw json.RawMessage, tc ports.TaskContext) (RunOutcome, error) {
			var input I
			if err := json.Unmarshal(raw, &input); err != nil {
				return RunOutcome{}, types.NewValidation(err)
			}
			res, err := task.Run(ctx, input, tc)
			if err != nil {
				return RunOutcome{}, err
			}
			out, err := json.Marshal(res.Output)
			if err != nil {
				return RunOutcome{}, types.NewFatal(err)
			}
			return RunOutcome{
				Output:        out,
				Confidence:    res.Confidence,
				FlagForReview: res.FlagForReview,
				Metrics:       res.Metrics,
			}, nil
		},
	}
}

func (r *Registry) lookup(taskType string) (rawRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.tasks[taskType]
	return runner, ok
}

// TaskTypes lists the registered task types.
func (r *Registry) TaskTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tasks))
	for t := range r.tasks {
		out = append(out, t)
	}
	return out
}
