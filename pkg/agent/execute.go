package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-go-golems/steward/pkg/events"
	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/plan"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const stageExecute = "execute"

// StepResult is the outcome of one executed plan step.
type StepResult struct {
	StepID string       `json:"step_id" yaml:"step_id"`
	Action string       `json:"action" yaml:"action"`
	Status StepStatus   `json:"status" yaml:"status"`
	Result tools.Result `json:"result" yaml:"result"`
}

// PlanResult reports a confirmed plan or action after execution.
type PlanResult struct {
	PlanID  string       `json:"plan_id" yaml:"plan_id"`
	Success bool         `json:"success" yaml:"success"`
	Summary string       `json:"summary" yaml:"summary"`
	Error   string       `json:"error,omitempty" yaml:"error,omitempty"`
	Steps   []StepResult `json:"steps" yaml:"steps"`
}

func (r *PlanResult) outcomes() []events.StepOutcome {
	out := make([]events.StepOutcome, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, events.StepOutcome{
			StepID: s.StepID,
			Action: s.Action,
			Status: string(s.Status),
			Kind:   s.Result.Kind,
			Result: s.Result.Text,
		})
	}
	return out
}

// ExecutePlan runs a confirmed plan. The plan comes back from the caller and is
// validated first; an invalid plan returns an error wrapping ErrInvalidPlan and runs
// nothing. Steps start once all their dependencies finished; a step whose dependency
// failed fails without running. Independent steps run concurrently, while mutating
// steps of the same category run one at a time. Once started, a confirmed plan runs to
// the end even if ctx is cancelled.
func (o *Orchestrator) ExecutePlan(ctx context.Context, p plan.ExecutionPlan) (*PlanResult, error) {
	if err := plan.Validate(p, o.registry); err != nil {
		return nil, err
	}
	layers, err := plan.Layers(p)
	if err != nil {
		return nil, err
	}
	emitter := events.NewEmitter(p.ThreadID)
	runCtx := context.WithoutCancel(ctx)
	exec := o.executor()
	locks := exec.NewCategoryLocks()

	steps := make(map[string]plan.ExecutionStep, len(p.Steps))
	done := make(map[string]chan struct{}, len(p.Steps))
	results := make(map[string]*StepResult, len(p.Steps))
	for _, s := range p.Steps {
		steps[s.ID] = s
		done[s.ID] = make(chan struct{})
		results[s.ID] = &StepResult{StepID: s.ID, Action: s.Action, Status: StepPending}
	}

	var g errgroup.Group
	if limit := o.config.Tools.MaxParallelTools; limit > 0 {
		g.SetLimit(limit)
	}
	var publishMu sync.Mutex
	// steps are launched layer by layer so that every dependency is already running
	// or finished when a dependent takes a slot
	for _, layer := range layers {
		for _, id := range layer {
			step := steps[id]
			g.Go(func() error {
				defer close(done[step.ID])
				res := results[step.ID]
				for _, dep := range step.DependsOn {
					<-done[dep]
					if results[dep].Status != StepCompleted {
						res.Status = StepFailed
						res.Result = tools.Errorf("skipped: dependency %s did not complete", dep)
						return nil
					}
				}
				if mu := locks.For(step.Action); mu != nil {
					mu.Lock()
					defer mu.Unlock()
				}
				res.Status = StepInProgress
				tr := exec.ExecuteToolCall(runCtx, step.ToolCall())
				res.Result = tr.Result
				if tr.Result.Succeeded() {
					res.Status = StepCompleted
				} else {
					res.Status = StepFailed
				}
				publishMu.Lock()
				events.PublishEventToContext(ctx, events.NewToolResultEvent(emitter.Meta(stageExecute), tr))
				publishMu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	out := &PlanResult{PlanID: p.PlanID, Success: true}
	var failures []string
	for _, s := range p.Steps {
		res := *results[s.ID]
		out.Steps = append(out.Steps, res)
		if res.Status != StepCompleted {
			out.Success = false
			failures = append(failures, fmt.Sprintf("%s: %s", s.ID, strings.TrimPrefix(res.Result.Text, tools.ErrorPrefix)))
		}
	}
	completed := len(p.Steps) - len(failures)
	if out.Success {
		out.Summary = fmt.Sprintf("Completed all %d steps of %q.", len(p.Steps), p.Summary)
	} else {
		out.Summary = fmt.Sprintf("Completed %d of %d steps of %q.", completed, len(p.Steps), p.Summary)
		out.Error = strings.Join(failures, "; ")
	}

	log.Debug().
		Str("plan_id", p.PlanID).
		Str("thread_id", p.ThreadID).
		Int("steps", len(p.Steps)).
		Int("completed", completed).
		Msg("agent: plan executed")
	events.PublishEventToContext(ctx, events.NewExecutionCompleteEvent(emitter.Meta(stageExecute), out.Success, out.Summary, out.Error, out.outcomes()))
	o.appendHistory(ctx, p.ThreadID, engine.NewAssistantMessage(out.Summary))
	return out, nil
}

// ExecuteAction runs a confirmed pending action.
func (o *Orchestrator) ExecuteAction(ctx context.Context, a plan.PendingTaskAction) (*PlanResult, error) {
	if err := plan.ValidateAction(a, o.registry); err != nil {
		return nil, err
	}
	emitter := events.NewEmitter(a.ThreadID)
	tr := o.executor().ExecuteToolCall(context.WithoutCancel(ctx), a.ToolCall())
	events.PublishEventToContext(ctx, events.NewToolResultEvent(emitter.Meta(stageExecute), tr))

	step := StepResult{StepID: a.ID, Action: a.Action, Status: StepCompleted, Result: tr.Result}
	out := &PlanResult{PlanID: a.ID, Success: tr.Result.Succeeded(), Steps: []StepResult{step}}
	if out.Success {
		out.Summary = tr.Result.Text
	} else {
		out.Steps[0].Status = StepFailed
		out.Summary = fmt.Sprintf("Could not %s.", a.Description)
		out.Error = strings.TrimPrefix(tr.Result.Text, tools.ErrorPrefix)
	}

	log.Debug().
		Str("action_id", a.ID).
		Str("action", a.Action).
		Bool("success", out.Success).
		Msg("agent: pending action executed")
	events.PublishEventToContext(ctx, events.NewExecutionCompleteEvent(emitter.Meta(stageExecute), out.Success, out.Summary, out.Error, out.outcomes()))
	o.appendHistory(ctx, a.ThreadID, engine.NewAssistantMessage(out.Summary))
	return out, nil
}

// CancelPlan discards a proposed plan. Nothing is executed or retained.
func (o *Orchestrator) CancelPlan(p plan.ExecutionPlan) {
	log.Debug().Str("plan_id", p.PlanID).Str("thread_id", p.ThreadID).Msg("agent: plan cancelled")
}

// CancelAction discards a pending action. Nothing is executed or retained.
func (o *Orchestrator) CancelAction(a plan.PendingTaskAction) {
	log.Debug().Str("action_id", a.ID).Str("thread_id", a.ThreadID).Msg("agent: pending action cancelled")
}
