package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-go-golems/steward/pkg/conversation"
	"github.com/go-go-golems/steward/pkg/events"
	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/plan"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Stage string

const (
	StagePlanning   Stage = "planning"
	StageAgent      Stage = "agent"
	StageTools      Stage = "tools"
	StageReflection Stage = "reflection"
	StageSummary    Stage = "summary"
	stageDone       Stage = ""
)

// run is the state of one turn as it moves through the stages.
type run struct {
	o        *Orchestrator
	cfg      Config
	st       *AgentState
	emitter  *events.Emitter
	executor *tools.Executor
}

func (r *run) publish(ctx context.Context, e events.Event) {
	events.PublishEventToContext(ctx, e)
}

func (r *run) meta(stage Stage) events.EventMetadata {
	return r.emitter.Meta(string(stage))
}

func (r *run) decisionError(ctx context.Context, stage Stage, err error, raw string) {
	log.Warn().Err(err).Str("thread_id", r.st.ThreadID).Str("stage", string(stage)).Msg("agent: decision error")
	r.st.thought("%s: %v", stage, err)
	r.publish(ctx, events.NewDecisionErrorEvent(r.meta(stage), err.Error(), raw))
}

func (r *run) fatal(ctx context.Context, stage Stage, err error) error {
	log.Error().Err(err).Str("thread_id", r.st.ThreadID).Str("stage", string(stage)).Msg("agent: turn failed")
	r.publish(ctx, events.NewErrorEvent(r.meta(stage), err))
	return err
}

func (r *run) loop(ctx context.Context) error {
	stage := StagePlanning
	for stage != stageDone {
		if err := ctx.Err(); err != nil {
			return r.fatal(ctx, stage, errors.Wrap(err, "turn cancelled"))
		}
		log.Debug().
			Str("thread_id", r.st.ThreadID).
			Str("stage", string(stage)).
			Int("remaining_iterations", r.st.RemainingIterations).
			Msg("agent: entering stage")

		var (
			next Stage
			err  error
		)
		switch stage {
		case StagePlanning:
			next = r.planning(ctx)
		case StageAgent:
			next, err = r.agent(ctx)
		case StageTools:
			next = r.runTools(ctx)
		case StageReflection:
			next = r.reflection(ctx)
		case StageSummary:
			next, err = r.summary(ctx)
		default:
			err = errors.Errorf("unknown stage %q", stage)
		}
		if err != nil {
			return err
		}
		if next == StageAgent && (stage == StagePlanning || stage == StageReflection) {
			r.enterAgent()
		}
		stage = next
	}
	return nil
}

// enterAgent consumes one iteration of the turn's budget.
func (r *run) enterAgent() {
	r.st.RemainingIterations--
	r.st.AgentPasses++
	r.st.toolRounds = 0
	if step := r.st.Plan.current(); step != nil {
		step.Status = StepInProgress
	}
}

// isTrivial reports whether a request is short enough to act on without a plan.
func isTrivial(request string, minWords int) bool {
	words := strings.Fields(strings.ToLower(request))
	if len(words) >= minWords {
		return false
	}
	for _, w := range words {
		if w == "then" || w == "and" || w == "also" {
			return false
		}
	}
	return true
}

type planAnswer struct {
	Goal  string            `json:"goal"`
	Steps []json.RawMessage `json:"steps"`
}

func decodePlan(text string) (*AgentPlan, error) {
	var a planAnswer
	if err := engine.DecodeJSON(text, &a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Goal) == "" || len(a.Steps) == 0 {
		return nil, errors.New("plan needs a goal and at least one step")
	}
	p := &AgentPlan{Goal: strings.TrimSpace(a.Goal)}
	for i, raw := range a.Steps {
		var desc string
		if err := json.Unmarshal(raw, &desc); err != nil {
			var obj struct {
				Description string `json:"description"`
			}
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, errors.Errorf("step %d is neither a string nor an object with a description", i+1)
			}
			desc = obj.Description
		}
		if desc = strings.TrimSpace(desc); desc != "" {
			p.Steps = append(p.Steps, PlanStep{Description: desc, Status: StepPending})
		}
	}
	if len(p.Steps) == 0 {
		return nil, errors.New("plan has only empty steps")
	}
	return p, nil
}

func (r *run) planning(ctx context.Context) Stage {
	st := r.st
	if isTrivial(st.request, r.cfg.PlanMinWords) {
		st.Plan = &AgentPlan{
			Goal:     st.request,
			Steps:    []PlanStep{{Description: st.request, Status: StepPending}},
			Implicit: true,
		}
		return StageAgent
	}

	msgs := []engine.Message{
		engine.NewSystemMessage(planningPrompt),
		engine.NewUserMessage(st.request),
	}
	d, err := r.o.provider.Invoke(ctx, msgs, nil, nil)
	if err != nil {
		r.decisionError(ctx, StagePlanning, errors.Wrap(err, "planning call failed"), "")
		return StageAgent
	}
	p, err := decodePlan(d.Content)
	if err != nil {
		r.decisionError(ctx, StagePlanning, errors.Wrap(err, "malformed plan"), d.Content)
		return StageAgent
	}
	st.Plan = p
	st.thought("plan: %s (%d steps)", p.Goal, len(p.Steps))
	return StageAgent
}

func (r *run) toolSpecs() []engine.ToolSpec {
	specs := engine.SpecsFromRegistry(r.o.registry, tools.NewQueryFilter())
	out := specs[:0]
	for _, s := range specs {
		if r.cfg.Tools.IsToolAllowed(s.Name) {
			out = append(out, s)
		}
	}
	return out
}

func (r *run) agent(ctx context.Context) (Stage, error) {
	st := r.st
	allowTools := st.toolRounds < r.cfg.MaxToolRounds
	var specs []engine.ToolSpec
	if allowTools {
		specs = r.toolSpecs()
	}
	log.Debug().
		Str("thread_id", st.ThreadID).
		Int("iteration", st.AgentPasses).
		Int("tool_round", st.toolRounds).
		Int("tools", len(specs)).
		Msg("agent: invoking provider")

	st.streamed = ""
	onDelta := func(delta string) {
		if delta == "" {
			return
		}
		st.streamed += delta
		r.publish(ctx, events.NewContentEvent(r.meta(StageAgent), delta, false))
	}
	d, err := r.o.provider.Invoke(ctx, st.Messages, specs, onDelta)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stageDone, r.fatal(ctx, StageAgent, errors.Wrap(ctxErr, "turn cancelled"))
		}
		return stageDone, r.fatal(ctx, StageAgent, errors.Wrap(ErrProviderUnavailable, err.Error()))
	}

	// native tool calling never parses the text; an answer may quote a decision block
	if r.o.decisionBlocks && d.Kind == engine.DecisionContent {
		decoded, derr := engine.DecodeDecision(d.Content)
		if derr != nil {
			r.decisionError(ctx, StageAgent, derr, d.Content)
		}
		d = decoded
	}

	if d.HasToolCalls() {
		if !allowTools {
			st.thought("ignored %d tool calls after %d tool rounds", len(d.ToolCalls), st.toolRounds)
			if st.reply == "" {
				st.reply = "I could not finish this request with the available steps. Could you narrow it down?"
			}
			return StageSummary, nil
		}
		st.appendMessages(engine.NewToolCallsMessage(d.ToolCalls))
		st.pending = d.ToolCalls
		r.publish(ctx, events.NewToolCallsEvent(r.meta(StageAgent), d.ToolCalls))
		return StageTools, nil
	}

	st.appendMessages(engine.NewAssistantMessage(d.Content))
	st.reply = d.Content
	if r.cfg.Reflection {
		return StageReflection, nil
	}
	return StageSummary, nil
}

func (r *run) record(res tools.ToolResult, args map[string]any) {
	st := r.st
	st.ToolCalls = append(st.ToolCalls, ToolCallInfo{
		ID:        res.ID,
		Name:      res.Name,
		Args:      args,
		Kind:      res.Result.Kind,
		Result:    res.Result.Text,
		Timestamp: r.o.now(),
	})
	st.appendMessages(engine.NewToolResultMessage(res))
	if !res.Result.Succeeded() {
		return
	}
	switch data := res.Result.Data.(type) {
	case conversation.EntityRef:
		st.focus = &data
	case conversation.Deletion:
		st.deleted = append(st.deleted, data.Entity)
		if st.focus != nil && st.focus.Same(data.Entity) {
			st.focus = nil
		}
	}
}

// focusMutations keeps the conversation focus off records deleted during the turn.
func (s *AgentState) focusMutations() []conversation.Mutation {
	if s.focus != nil {
		return []conversation.Mutation{conversation.MutateSetFocus(*s.focus)}
	}
	if s.Conversation == nil || s.Conversation.FocusEntity == nil {
		return nil
	}
	for _, d := range s.deleted {
		if s.Conversation.FocusEntity.Same(d) {
			return []conversation.Mutation{conversation.MutateClearFocus()}
		}
	}
	return nil
}

func (r *run) execute(ctx context.Context, calls []tools.ToolCall) []tools.ToolResult {
	results := r.executor.ExecuteToolCalls(ctx, calls)
	for i, res := range results {
		r.record(res, calls[i].ArgsMap())
		r.publish(ctx, events.NewToolResultEvent(r.meta(StageTools), res))
	}
	return results
}

func (r *run) runTools(ctx context.Context) Stage {
	st := r.st
	calls := st.pending
	st.pending = nil
	st.toolRounds++

	var readonly, mutating []tools.ToolCall
	for _, c := range calls {
		if r.executor.IsMutating(c.Name) && r.cfg.Tools.IsToolAllowed(c.Name) {
			mutating = append(mutating, c)
		} else {
			readonly = append(readonly, c)
		}
	}

	if !r.cfg.RequireConfirmation || len(mutating) == 0 {
		results := r.execute(ctx, calls)
		r.updatePlanStep(results)
		return StageAgent
	}

	if len(readonly) > 0 {
		r.execute(ctx, readonly)
	}
	for _, c := range mutating {
		st.appendMessages(engine.NewToolResultMessage(tools.ToolResult{
			ID:     c.ID,
			Name:   c.Name,
			Result: tools.OK("Not executed yet: awaiting user confirmation."),
		}))
	}
	r.propose(ctx, mutating)
	return StageSummary
}

// propose turns held-back mutating calls into a pending action or a plan.
func (r *run) propose(ctx context.Context, calls []tools.ToolCall) {
	st := r.st
	if len(calls) == 1 {
		md := r.o.registry.GetMetadata(calls[0].Name)
		if md != nil && md.PendingOperation != tools.PendingOperationNone {
			a := plan.NewPendingAction(st.ThreadID, plan.Operation(md.PendingOperation), calls[0], plan.Describe(calls[0]))
			st.PendingAction = &a
			st.thought("awaiting confirmation of %s", a.Action)
			r.publish(ctx, events.NewPendingActionEvent(r.meta(StageTools), a))
			return
		}
	}
	summary := st.request
	if st.Plan != nil && !st.Plan.Implicit {
		summary = st.Plan.Goal
	}
	p := plan.FromToolCalls(st.ThreadID, summary, calls, plan.Describe)
	st.ExecutionPlan = &p
	st.thought("awaiting confirmation of a plan with %d steps", len(p.Steps))
	r.publish(ctx, events.NewPlanEvent(r.meta(StageTools), p))
}

func (r *run) updatePlanStep(results []tools.ToolResult) {
	step := r.st.Plan.current()
	if step == nil || len(results) == 0 {
		return
	}
	texts := make([]string, 0, len(results))
	ok := false
	for _, res := range results {
		texts = append(texts, res.Result.Text)
		ok = ok || res.Result.Succeeded()
	}
	step.Result = strings.Join(texts, "\n")
	if ok {
		step.Status = StepCompleted
	} else {
		step.Status = StepFailed
	}
}

type reflectionAnswer struct {
	Quality     Quality  `json:"quality"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Learnings   []string `json:"learnings"`
}

func decodeReflection(text string) (reflectionAnswer, error) {
	var a reflectionAnswer
	if err := engine.DecodeJSON(text, &a); err != nil {
		return a, err
	}
	switch a.Quality {
	case QualityGood, QualityNeedsImprovement:
		return a, nil
	default:
		return a, errors.Errorf("unknown quality %q", a.Quality)
	}
}

func (r *run) reflection(ctx context.Context) Stage {
	st := r.st
	msgs := []engine.Message{
		engine.NewSystemMessage(reflectionPrompt),
		engine.NewUserMessage(reflectionInput(st)),
	}
	res := ReflectionResult{Quality: QualityGood}
	d, err := r.o.provider.Invoke(ctx, msgs, nil, nil)
	if err != nil {
		r.decisionError(ctx, StageReflection, errors.Wrap(err, "reflection call failed"), "")
		st.Reflection = &res
		return StageSummary
	}
	a, err := decodeReflection(d.Content)
	if err != nil {
		r.decisionError(ctx, StageReflection, errors.Wrap(err, "malformed reflection"), d.Content)
		st.Reflection = &res
		return StageSummary
	}
	res = ReflectionResult{Quality: a.Quality, Issues: a.Issues, Suggestions: a.Suggestions}
	st.Reflection = &res
	st.Learnings = appendUnique(st.Learnings, a.Learnings...)

	if res.Quality == QualityNeedsImprovement && st.RemainingIterations > 0 {
		st.thought("reflection: needs improvement, %d iterations left", st.RemainingIterations)
		st.appendMessages(engine.NewSystemMessage(guidance(res)))
		return StageAgent
	}
	return StageSummary
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		dup := false
		for _, d := range dst {
			if d == it {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, it)
		}
	}
	return dst
}

// finalFragment is the text of the closing content event. When the reply is the
// answer streamed by the last Agent invocation only the unsent remainder goes out.
func (s *AgentState) finalFragment() string {
	if s.streamed != "" && s.PendingAction == nil && s.ExecutionPlan == nil && strings.HasPrefix(s.reply, s.streamed) {
		return strings.TrimPrefix(s.reply, s.streamed)
	}
	return s.reply
}

func (r *run) summary(ctx context.Context) (Stage, error) {
	st := r.st
	switch {
	case st.PendingAction != nil:
		st.reply = fmt.Sprintf("I'm ready to %s. Shall I go ahead?", st.PendingAction.Description)
	case st.ExecutionPlan != nil:
		var b strings.Builder
		fmt.Fprintf(&b, "I prepared %d changes:", len(st.ExecutionPlan.Steps))
		for i, s := range st.ExecutionPlan.Steps {
			fmt.Fprintf(&b, "\n%d. %s", i+1, s.Description)
		}
		b.WriteString("\nConfirm to run them.")
		st.reply = b.String()
	case strings.TrimSpace(st.reply) == "":
		return stageDone, r.fatal(ctx, StageSummary, errors.Wrapf(ErrNoReply, "after %d agent passes", st.AgentPasses))
	}
	if st.PendingAction != nil || st.ExecutionPlan != nil {
		st.appendMessages(engine.NewAssistantMessage(st.reply))
	}

	if st.Plan != nil && st.PendingAction == nil && st.ExecutionPlan == nil {
		for i := range st.Plan.Steps {
			if st.Plan.Steps[i].Status == StepInProgress {
				st.Plan.Steps[i].Status = StepCompleted
			}
		}
	}

	now := r.o.now()
	muts := append(st.focusMutations(), conversation.MutateTouch(now, r.cfg.ConversationTTL))
	if err := st.Conversation.ApplyAll(muts...); err != nil {
		log.Warn().Err(err).Str("thread_id", st.ThreadID).Msg("agent: could not update conversation state")
	}

	r.publish(ctx, events.NewContentEvent(r.meta(StageSummary), st.finalFragment(), true))
	r.publish(ctx, events.NewStateUpdateEvent(r.meta(StageSummary), st.Conversation))
	log.Debug().
		Str("thread_id", st.ThreadID).
		Int("agent_passes", st.AgentPasses).
		Int("tool_calls", len(st.ToolCalls)).
		Msg("agent: turn complete")
	return stageDone, nil
}
