// Package safety evaluates actions against constraints and simulations before they run.
// Every evaluation is recorded in the append only safety audit log.
package safety

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/metrics"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/runtime"
	"github.com/slok/autotask/internal/storage"
)

// EngineConfig is the configuration of the safety engine.
type EngineConfig struct {
	Runtime    runtime.Runtime
	Repository storage.AuditRepository
	Policy     model.SafetyPolicy
	// RiskOverrides replace the catalog risk of action types.
	RiskOverrides map[model.ActionType]model.RiskLevel
	Tracer        trace.Tracer
	Metrics       metrics.Recorder
	Logger        log.Logger
	TimeNow       func() time.Time
}

func (c *EngineConfig) defaults() error {
	if c.Runtime == nil {
		return fmt.Errorf("runtime is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("github.com/slok/autotask/internal/safety")
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "safety.Engine"})
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	return nil
}

// Engine is the safety engine. It never mutates tasks or plans.
type Engine struct {
	runtime     runtime.Runtime
	repo        storage.AuditRepository
	constraints []constraint
	rateLimits  []*rateConstraint
	maxAffected int
	overrides   model.Policy
	tracer      trace.Tracer
	metrics     metrics.Recorder
	logger      log.Logger
	timeNow     func() time.Time
}

// NewEngine returns a new safety engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cs, rcs, err := buildConstraints(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	return &Engine{
		runtime:     cfg.Runtime,
		repo:        cfg.Repository,
		constraints: cs,
		rateLimits:  rcs,
		maxAffected: cfg.Policy.MaxAffectedRecords,
		overrides:   model.Policy{RiskOverrides: cfg.RiskOverrides},
		tracer:      cfg.Tracer,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		timeNow:     cfg.TimeNow,
	}, nil
}

// Evaluate checks an action before dispatching it. Rate limit tokens are only taken
// when the action is admitted: allowed and not waiting on an approval gate (see
// model.Action.Gated).
// The returned error is only set when the audit entry can't be stored.
func (e *Engine) Evaluate(ctx context.Context, action model.Action) (*model.SafetyAuditEntry, error) {
	return e.evaluate(ctx, action, false)
}

// Simulate dry-runs the evaluation of an action, it never takes rate limit tokens.
func (e *Engine) Simulate(ctx context.Context, action model.Action) (*model.SafetyAuditEntry, error) {
	return e.evaluate(ctx, action, true)
}

func (e *Engine) evaluate(ctx context.Context, action model.Action, dryRun bool) (*model.SafetyAuditEntry, error) {
	ctx, span := e.tracer.Start(ctx, "safety.Evaluate", trace.WithAttributes(
		attribute.String("autotask.task_id", action.TaskID),
		attribute.Int("autotask.step_index", action.StepIndex),
		attribute.String("autotask.action", string(action.Type)),
		attribute.Bool("autotask.dry_run", dryRun),
	))
	defer span.End()

	entry := e.assess(ctx, action, dryRun)
	span.SetAttributes(
		attribute.String("autotask.safety.outcome", string(entry.Outcome)),
		attribute.String("autotask.risk", string(entry.Risk.Level)),
	)

	if err := e.repo.AppendAuditEntry(ctx, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit append failed")
		return nil, fmt.Errorf("could not append audit entry: %w", err)
	}
	e.metrics.SafetyOutcome(ctx, action.Type, entry.Outcome, dryRun)

	if entry.Outcome != model.SafetyOutcomeAllowed {
		e.logger.WithValues(log.Kv{"task": action.TaskID, "step": action.StepIndex}).Infof("Action %s evaluated as %s", action.Type, entry.Outcome)
	}

	return &entry, nil
}

func (e *Engine) assess(ctx context.Context, action model.Action, dryRun bool) model.SafetyAuditEntry {
	now := e.timeNow()
	entry := model.SafetyAuditEntry{
		ID:            ulid.Make().String(),
		TaskID:        action.TaskID,
		PlanID:        action.PlanID,
		StepIndex:     action.StepIndex,
		Action:        action.Type,
		ActionDetails: action.Params,
		DryRun:        dryRun,
		CreatedAt:     now.UTC(),
	}

	spec, known := model.LookupAction(action.Type)
	tableRisk, _ := e.overrides.ActionRisk(action.Type)
	base := model.MaxRisk(action.Risk, tableRisk)
	if !known {
		msg := fmt.Sprintf("unknown action type %q", action.Type)
		entry.Outcome = model.SafetyOutcomeBlocked
		entry.ConstraintChecks = []model.ConstraintCheck{{
			Name:     "catalog",
			Type:     model.ConstraintTypeDenyList,
			Severity: model.ConstraintSeverityError,
			Message:  msg,
		}}
		entry.Risk = assessRisk(model.RiskLevelCritical, []string{msg}, false)
		return entry
	}

	var warnings []string
	for _, c := range e.constraints {
		msg := c.Check(action, now)
		check := model.ConstraintCheck{Name: c.Name(), Type: c.Type(), Passed: msg == "", Severity: c.Severity(), Message: msg}
		entry.ConstraintChecks = append(entry.ConstraintChecks, check)
		if check.Passed {
			continue
		}

		if check.Severity == model.ConstraintSeverityError {
			entry.Outcome = model.SafetyOutcomeBlocked
			entry.Risk = assessRisk(base, []string{msg}, false)
			return entry
		}
		warnings = append(warnings, msg)
	}

	sim, err := e.runtime.Simulate(ctx, action)
	if err != nil {
		entry.Outcome = model.SafetyOutcomeError
		entry.Error = err.Error()
		entry.ConstraintChecks = append(entry.ConstraintChecks, model.ConstraintCheck{
			Name:    "simulation",
			Type:    model.ConstraintTypeSimulation,
			Message: fmt.Sprintf("simulation failed: %s", err),
		})
		entry.Risk = assessRisk(base, warnings, false)
		return entry
	}
	entry.Simulation = sim

	simWarnings := e.simulationWarnings(spec, *sim)
	simCheck := model.ConstraintCheck{Name: "simulation", Type: model.ConstraintTypeSimulation, Passed: len(simWarnings) == 0, Severity: model.ConstraintSeverityWarning}
	if len(simWarnings) > 0 {
		simCheck.Message = simWarnings[0]
	}
	entry.ConstraintChecks = append(entry.ConstraintChecks, simCheck)
	warnings = append(warnings, simWarnings...)

	if len(warnings) == 0 {
		entry.Outcome = model.SafetyOutcomeAllowed
		entry.Risk = assessRisk(base, nil, false)
	} else {
		entry.Risk = assessRisk(base.Escalate(), warnings, true)
		if !action.Acknowledged {
			entry.Outcome = model.SafetyOutcomeWarning
			return entry
		}
		entry.Outcome = model.SafetyOutcomeAllowed
		entry.ConstraintChecks = append(entry.ConstraintChecks, model.ConstraintCheck{
			Name:    "acknowledged",
			Type:    model.ConstraintTypeSimulation,
			Passed:  true,
			Message: "warning acknowledged by a granted approval",
		})
	}

	if !dryRun && !action.Gated(entry.Outcome, entry.Risk.Level) {
		e.admit(action, now, &entry)
	}
	return entry
}

// admit takes a token of every rate limit of the action, all of them or none.
// A limit drained since the checks ran blocks the action.
func (e *Engine) admit(action model.Action, now time.Time, entry *model.SafetyAuditEntry) {
	var taken []*rate.Reservation
	for _, rc := range e.rateLimits {
		if !rc.applies(action) {
			continue
		}
		r, ok := rc.reserve(now)
		if ok {
			taken = append(taken, r)
			continue
		}

		for _, r := range taken {
			r.CancelAt(now)
		}
		msg := rc.violation()
		for i, c := range entry.ConstraintChecks {
			if c.Type == model.ConstraintTypeRateLimit && c.Name == rc.Name() {
				entry.ConstraintChecks[i].Passed = false
				entry.ConstraintChecks[i].Message = msg
			}
		}
		entry.Outcome = model.SafetyOutcomeBlocked
		entry.Risk = assessRisk(entry.Risk.Level, append(slices.Clone(entry.Risk.Factors), msg), entry.Risk.Escalated)
		return
	}
}

func (e *Engine) simulationWarnings(spec model.ActionSpec, sim model.SimulationResult) []string {
	var ws []string
	if !sim.Success {
		ws = append(ws, "simulation predicts the action will fail")
	}
	if e.maxAffected > 0 && sim.AffectedRecords > e.maxAffected {
		ws = append(ws, fmt.Sprintf("simulation affects %d records, more than %d", sim.AffectedRecords, e.maxAffected))
	}
	if !spec.SideEffects && len(sim.SideEffects) > 0 {
		ws = append(ws, fmt.Sprintf("simulation reports undeclared side effects: %v", sim.SideEffects))
	}
	return ws
}

var riskBaseScore = map[model.RiskLevel]int{
	model.RiskLevelLow:      10,
	model.RiskLevelMedium:   35,
	model.RiskLevelHigh:     65,
	model.RiskLevelCritical: 90,
}

// assessRisk scores a risk level, every factor adds 5 points up to 100.
func assessRisk(level model.RiskLevel, factors []string, escalated bool) model.RiskAssessment {
	score := riskBaseScore[level] + 5*len(factors)
	if score > 100 {
		score = 100
	}
	return model.RiskAssessment{Level: level, Score: score, Factors: factors, Escalated: escalated}
}
