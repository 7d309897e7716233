// Package plan compiles classified intents into risk annotated execution plans.
package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// DefaultMaxAttempts is the dispatch attempts of retryable steps.
const DefaultMaxAttempts = 3

// Simulator dry-runs actions.
type Simulator interface {
	Simulate(ctx context.Context, action model.Action) (*model.SafetyAuditEntry, error)
}

// CompilerConfig is the configuration of the compiler.
type CompilerConfig struct {
	Proposer  Proposer
	Simulator Simulator
	Policy    model.Policy
	Tracer    trace.Tracer
	Logger    log.Logger
	TimeNow   func() time.Time
}

func (c *CompilerConfig) defaults() error {
	if c.Proposer == nil {
		return fmt.Errorf("proposer is required")
	}
	if c.Simulator == nil {
		return fmt.Errorf("simulator is required")
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("github.com/slok/autotask/internal/plan")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "plan.Compiler"})
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	return nil
}

// Compiler compiles intents into plans. It's stateless per call.
type Compiler struct {
	proposer  Proposer
	simulator Simulator
	policy    model.Policy
	tracer    trace.Tracer
	logger    log.Logger
	timeNow   func() time.Time
}

// NewCompiler returns a new compiler.
func NewCompiler(cfg CompilerConfig) (*Compiler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Compiler{
		proposer:  cfg.Proposer,
		simulator: cfg.Simulator,
		policy:    cfg.Policy,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger,
		timeNow:   cfg.TimeNow,
	}, nil
}

// CompileRequest is the input of a compilation.
type CompileRequest struct {
	// TaskID owns the plan, pre-assessment audit entries are recorded under it.
	TaskID         string
	Classification model.IntentClassification
	Context        map[string]string
}

// Compile compiles a classified intent into a pending plan.
// All the returned errors wrap model.ErrCompilation.
func (c *Compiler) Compile(ctx context.Context, req CompileRequest) (*model.ExecutionPlan, error) {
	ctx, span := c.tracer.Start(ctx, "plan.Compile", trace.WithAttributes(
		attribute.String("autotask.task_id", req.TaskID),
		attribute.String("autotask.intent_type", string(req.Classification.IntentType)),
	))
	defer span.End()

	p, err := c.compile(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compilation failed")
		return nil, fmt.Errorf("%w: %w", model.ErrCompilation, err)
	}
	span.SetAttributes(
		attribute.Int("autotask.steps", len(p.Steps)),
		attribute.String("autotask.risk", string(p.Risk)),
	)

	return p, nil
}

func (c *Compiler) compile(ctx context.Context, req CompileRequest) (*model.ExecutionPlan, error) {
	cl := req.Classification
	if !cl.Automatable() {
		return nil, fmt.Errorf("intent type %q can't be automated", cl.IntentType)
	}

	proposed, err := c.proposer.Propose(ctx, ProposeRequest{Classification: cl, Context: req.Context})
	if err != nil {
		return nil, fmt.Errorf("could not propose steps: %w", err)
	}
	if len(proposed) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}

	now := c.timeNow().UTC()
	p := model.ExecutionPlan{
		ID:               ulid.Make().String(),
		TaskID:           req.TaskID,
		ClassificationID: cl.ID,
		Intent:           cl.OriginalText,
		IntentType:       cl.IntentType,
		Confidence:       cl.Confidence,
		Status:           model.PlanStatusPending,
		Context:          req.Context,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for i, ps := range proposed {
		s, err := c.buildStep(i, ps)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, s)
	}

	if err := c.preAssess(ctx, &p); err != nil {
		return nil, err
	}
	p.Risk = p.HighestRisk()

	program, err := RenderProgram(p)
	if err != nil {
		return nil, err
	}
	if _, err := ParseProgram(program); err != nil {
		return nil, fmt.Errorf("generated program doesn't compile: %w", err)
	}
	p.Program = program

	if err := p.Validate(); err != nil {
		return nil, err
	}

	c.logger.WithValues(log.Kv{"plan": p.ID, "task": req.TaskID}).Infof("Compiled %s plan with %d steps (risk %s)", p.IntentType, len(p.Steps), p.Risk)
	return &p, nil
}

func (c *Compiler) buildStep(i int, ps ProposedStep) (model.Step, error) {
	tableRisk, err := c.policy.ActionRisk(ps.Action)
	if err != nil {
		return model.Step{}, fmt.Errorf("step %d: %w", i, err)
	}
	if ps.Risk != "" && !ps.Risk.Valid() {
		return model.Step{}, fmt.Errorf("step %d: invalid risk %q: %w", i, ps.Risk, model.ErrNotValid)
	}

	s := model.Step{
		Index:       i,
		Name:        ps.Name,
		Action:      ps.Action,
		Params:      ps.Params,
		Risk:        model.MaxRisk(tableRisk, ps.Risk),
		Retryable:   ps.Action != model.ActionAskDecision,
		MaxAttempts: ps.MaxAttempts,
		Decision:    ps.Decision,
	}
	if s.Name == "" {
		s.Name = string(ps.Action)
	}
	if s.Params == nil {
		s.Params = map[string]string{}
	}
	if ps.Retryable != nil && !s.IsDecision() {
		s.Retryable = *ps.Retryable
	}
	if s.MaxAttempts == 0 {
		s.MaxAttempts = 1
		if s.Retryable {
			s.MaxAttempts = DefaultMaxAttempts
		}
	}
	if s.Decision != nil && s.Decision.Timeout == 0 {
		d := *s.Decision
		d.Timeout = c.policy.Approval.DecisionTimeout
		s.Decision = &d
	}

	if err := s.Validate(); err != nil {
		return model.Step{}, err
	}

	return s, nil
}

// preAssess dry-runs every step. Warnings escalate the step risk, blocked steps
// and failed simulations fail the compilation.
func (c *Compiler) preAssess(ctx context.Context, p *model.ExecutionPlan) error {
	agg := model.SimulationResult{Success: true}
	for i, s := range p.Steps {
		entry, err := c.simulator.Simulate(ctx, model.ActionFromStep(p.TaskID, *p, s))
		if err != nil {
			return fmt.Errorf("step %d: could not pre-assess: %w", i, err)
		}

		switch entry.Outcome {
		case model.SafetyOutcomeBlocked:
			msg := "blocked"
			if chk, ok := entry.FailedCheck(); ok {
				msg = chk.Message
			}
			return fmt.Errorf("step %d (%s) is blocked by safety: %s", i, s.Action, msg)
		case model.SafetyOutcomeError:
			return fmt.Errorf("step %d (%s) could not be simulated: %s", i, s.Action, entry.Error)
		case model.SafetyOutcomeWarning:
			p.Steps[i].Risk = s.Risk.Escalate()
			agg.Notes = append(agg.Notes, fmt.Sprintf("step %d risk escalated to %s: %v", i, p.Steps[i].Risk, entry.Risk.Factors))
		}

		if sim := entry.Simulation; sim != nil {
			agg.Success = agg.Success && sim.Success
			agg.AffectedRecords += sim.AffectedRecords
			agg.SideEffects = append(agg.SideEffects, sim.SideEffects...)
			agg.Duration += sim.Duration
		}
	}
	p.Simulation = &agg

	return nil
}
