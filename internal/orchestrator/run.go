package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/slok/autotask/internal/gate"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/runtime"
)

// Run drives a running task until it suspends on a gate, reaches a terminal status
// or the context ends. Tasks that are not running are returned as they are.
func (o *Orchestrator) Run(ctx context.Context, taskID string) (*model.AutoTask, error) {
	unlock := o.locks.lock(taskID)
	defer unlock()

	t, err := o.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, *t)
}

func (o *Orchestrator) run(ctx context.Context, t model.AutoTask) (_ *model.AutoTask, err error) {
	if t.Status != model.TaskStatusRunning {
		o.taskLogger(t.ID).Debugf("Task is %s, nothing to run", t.Status)
		return &t, nil
	}

	defer o.keepLease(ctx, t.ID)()

	ctx, span := o.tracer.Start(ctx, "orchestrator.Run", trace.WithAttributes(
		attribute.String("autotask.task_id", t.ID),
		attribute.String("autotask.mode", string(t.Mode)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p, err := o.repo.GetPlan(ctx, t.PlanID)
	if err != nil {
		return nil, fmt.Errorf("could not get plan: %w", err)
	}

	next, err := o.preparePlan(ctx, t, *p)
	if err != nil {
		return nil, err
	}

	for next.Status == model.TaskStatusRunning {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Step boundary, operator requests are applied here.
		fresh, err := o.getTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if fresh.Status != next.Status || fresh.CurrentStep != next.CurrentStep {
			o.taskLogger(t.ID).Warningf("Task changed concurrently to %s at step %d, stopping", fresh.Status, fresh.CurrentStep)
			return fresh, nil
		}
		next = fresh

		switch {
		case next.Interrupt != model.TaskInterruptNone:
			next, err = o.interrupt(ctx, *next)
		case next.CurrentStep >= next.TotalSteps:
			next, err = o.complete(ctx, *next)
		default:
			next, err = o.step(ctx, *next, *p)
		}
		if err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.String("autotask.status", string(next.Status)))
	return o.getTask(ctx, t.ID)
}

// preparePlan takes the plan to executing, through the plan gate when the task asks
// for it.
func (o *Orchestrator) preparePlan(ctx context.Context, t model.AutoTask, p model.ExecutionPlan) (*model.AutoTask, error) {
	switch p.Status {
	case model.PlanStatusExecuting:
		return &t, nil
	case model.PlanStatusApproved:
	case model.PlanStatusPending:
		if t.RequirePlanApproval {
			a, err := o.repo.GetStepApproval(ctx, t.ID, model.PlanGateStep)
			switch {
			case errors.Is(err, model.ErrNotFound):
				return o.gatePlan(ctx, t, p)
			case err != nil:
				return nil, fmt.Errorf("could not get plan approval: %w", err)
			case !a.Resolved():
				return o.suspend(ctx, t, nil)
			case !a.Granted():
				next, err := o.commit(ctx, t, func(t *model.AutoTask) error {
					return o.terminate(t, EventFail, fmt.Sprintf("plan was not approved: approval %s", describeApproval(*a)))
				})
				if err != nil {
					return nil, err
				}
				o.closeTask(ctx, *next, model.PlanStatusRejected)
				return next, nil
			}
		}
		if err := o.repo.UpdatePlanStatus(ctx, p.ID, model.PlanStatusPending, model.PlanStatusApproved); err != nil {
			return nil, fmt.Errorf("could not approve plan: %w", err)
		}
	default:
		next, err := o.commit(ctx, t, func(t *model.AutoTask) error {
			return o.terminate(t, EventFail, fmt.Sprintf("plan %s is %s", p.ID, p.Status))
		})
		if err != nil {
			return nil, err
		}
		return next, nil
	}

	if err := o.repo.UpdatePlanStatus(ctx, p.ID, model.PlanStatusApproved, model.PlanStatusExecuting); err != nil {
		return nil, fmt.Errorf("could not start plan: %w", err)
	}
	return &t, nil
}

func (o *Orchestrator) gatePlan(ctx context.Context, t model.AutoTask, p model.ExecutionPlan) (*model.AutoTask, error) {
	a, err := o.gates.RequestApproval(ctx, gate.ApprovalRequest{
		TaskID:      t.ID,
		PlanID:      p.ID,
		StepIndex:   model.PlanGateStep,
		Description: fmt.Sprintf("%d steps for %q", len(p.Steps), p.Intent),
		Risk:        p.Risk,
	})
	if err != nil {
		return nil, fmt.Errorf("could not request plan approval: %w", err)
	}
	return o.suspend(ctx, t, func(ctx context.Context) error { return o.gates.NotifyApproval(ctx, *a) })
}

// suspend stores the task as waiting on a gate and then notifies the gate.
func (o *Orchestrator) suspend(ctx context.Context, t model.AutoTask, notify func(ctx context.Context) error) (*model.AutoTask, error) {
	next, err := o.commit(ctx, t, func(t *model.AutoTask) error { return applyEvent(t, EventGate) })
	if err != nil {
		return nil, err
	}

	if notify != nil {
		// The gate stays pending and the sweep resolves it if nobody answers.
		if err := notify(ctx); err != nil {
			o.taskLogger(t.ID).Errorf("Could not notify gate: %s", err)
		}
	}

	if next.Interrupt != model.TaskInterruptNone {
		return o.interrupt(ctx, *next)
	}
	return next, nil
}

// interrupt applies the operator request of a running or suspended task.
func (o *Orchestrator) interrupt(ctx context.Context, t model.AutoTask) (*model.AutoTask, error) {
	next, err := o.commit(ctx, t, func(t *model.AutoTask) error {
		if t.Interrupt == model.TaskInterruptCancel {
			return o.terminate(t, EventCancel, "")
		}
		if err := applyEvent(t, EventPause); err != nil {
			return err
		}
		t.Interrupt = model.TaskInterruptNone
		return nil
	})
	if err != nil {
		return nil, err
	}

	if next.Status == model.TaskStatusCancelled {
		o.closeTask(ctx, *next, model.PlanStatusFailed)
	}
	return next, nil
}

func (o *Orchestrator) complete(ctx context.Context, t model.AutoTask) (*model.AutoTask, error) {
	next, err := o.commit(ctx, t, func(t *model.AutoTask) error {
		if err := applyEvent(t, EventComplete); err != nil {
			return err
		}
		now := o.now()
		t.CompletedAt = &now
		t.SetCurrentStep(t.TotalSteps)
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.closeTask(ctx, *next, model.PlanStatusCompleted)
	return next, nil
}

// fail terminates the task recording the result of the step that caused it.
func (o *Orchestrator) fail(ctx context.Context, t model.AutoTask, cause string, sr model.StepResult) (*model.AutoTask, error) {
	next, err := o.commit(ctx, t, func(t *model.AutoTask) error { return o.terminate(t, EventFail, cause) }, sr)
	if err != nil {
		return nil, err
	}
	o.closeTask(ctx, *next, model.PlanStatusFailed)
	return next, nil
}

// advance records the step result and moves to the next step.
func (o *Orchestrator) advance(ctx context.Context, t model.AutoTask, sr model.StepResult) (*model.AutoTask, error) {
	return o.commit(ctx, t, func(t *model.AutoTask) error {
		if t.Status != model.TaskStatusRunning {
			return fmt.Errorf("task is %s: %w", t.Status, model.ErrConflict)
		}
		t.SetCurrentStep(t.CurrentStep + 1)
		return nil
	}, sr)
}

func (o *Orchestrator) step(ctx context.Context, t model.AutoTask, p model.ExecutionPlan) (_ *model.AutoTask, err error) {
	if t.CurrentStep >= len(p.Steps) {
		return nil, fmt.Errorf("step %d out of plan %s: %w", t.CurrentStep, p.ID, model.ErrNotValid)
	}
	step := p.Steps[t.CurrentStep]

	ctx, span := o.tracer.Start(ctx, "orchestrator.Step", trace.WithAttributes(
		attribute.String("autotask.task_id", t.ID),
		attribute.Int("autotask.step_index", step.Index),
		attribute.String("autotask.action", string(step.Action)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if step.IsDecision() {
		return o.decisionStep(ctx, t, p, step)
	}
	return o.actionStep(ctx, t, p, step)
}

func (o *Orchestrator) actionStep(ctx context.Context, t model.AutoTask, p model.ExecutionPlan, step model.Step) (*model.AutoTask, error) {
	acknowledged := false
	a, err := o.repo.GetStepApproval(ctx, t.ID, step.Index)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("could not get step approval: %w", err)
	case !a.Resolved():
		return o.suspend(ctx, t, nil)
	case a.Granted():
		acknowledged = true
	case a.Status == model.ApprovalStatusSkipped:
		return o.advance(ctx, t, o.stepResult(step, model.StepStatusSkipped, ""))
	case a.Status == model.ApprovalStatusRejected:
		cause := fmt.Sprintf("step %d (%s) was rejected: approval %s", step.Index, step.Action, describeApproval(*a))
		return o.fail(ctx, t, cause, o.stepResult(step, model.StepStatusRejected, cause))
	default:
		cause := fmt.Sprintf("step %d (%s) approval timed out: approval %s", step.Index, step.Action, describeApproval(*a))
		return o.fail(ctx, t, cause, o.stepResult(step, model.StepStatusTimeout, cause))
	}

	action := model.ActionFromStep(t.ID, p, step)
	action.Mode = t.Mode
	action.Acknowledged = acknowledged
	entry, err := o.safety.Evaluate(ctx, action)
	if err != nil {
		return nil, fmt.Errorf("could not evaluate step %d: %w", step.Index, err)
	}

	switch {
	case entry.Outcome == model.SafetyOutcomeBlocked || entry.Outcome == model.SafetyOutcomeError:
		cause := describeSafety(step, *entry)
		sr := o.stepResult(step, model.StepStatusBlocked, cause)
		sr.AuditID = entry.ID
		return o.fail(ctx, t, cause, sr)
	case acknowledged && !entry.Allowed():
		cause := fmt.Sprintf("step %d (%s) is still %s after its approval", step.Index, step.Action, entry.Outcome)
		sr := o.stepResult(step, model.StepStatusBlocked, cause)
		sr.AuditID = entry.ID
		return o.fail(ctx, t, cause, sr)
	case action.Gated(entry.Outcome, entry.Risk.Level):
		return o.gateStep(ctx, t, p, step, *entry)
	}

	return o.dispatch(ctx, t, action, step, *entry)
}

func (o *Orchestrator) gateStep(ctx context.Context, t model.AutoTask, p model.ExecutionPlan, step model.Step, entry model.SafetyAuditEntry) (*model.AutoTask, error) {
	desc := step.Name
	if len(entry.Risk.Factors) > 0 {
		desc = fmt.Sprintf("%s (%s)", desc, strings.Join(entry.Risk.Factors, "; "))
	}

	a, err := o.gates.RequestApproval(ctx, gate.ApprovalRequest{
		TaskID:      t.ID,
		PlanID:      p.ID,
		StepIndex:   step.Index,
		Action:      step.Action,
		Description: desc,
		Risk:        entry.Risk.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("could not request approval: %w", err)
	}

	o.taskLogger(t.ID).Infof("Step %d (%s, risk %s) waits for approval", step.Index, step.Action, entry.Risk.Level)
	return o.suspend(ctx, t, func(ctx context.Context) error { return o.gates.NotifyApproval(ctx, *a) })
}

// dispatch executes the step on the runtime, retrying retryable steps with backoff.
func (o *Orchestrator) dispatch(ctx context.Context, t model.AutoTask, action model.Action, step model.Step, entry model.SafetyAuditEntry) (*model.AutoTask, error) {
	logger := o.taskLogger(t.ID).WithValues(log.Kv{"step": step.Index, "action": step.Action})

	maxAttempts := step.MaxAttempts
	if !step.Retryable || maxAttempts < 1 {
		maxAttempts = 1
	}

	start := o.now()
	var (
		res      *runtime.Result
		err      error
		attempts int
	)
	for attempts = 1; ; attempts++ {
		res, err = o.runtime.Execute(ctx, action)
		if err == nil || attempts >= maxAttempts || runtime.IsPermanent(err) || ctx.Err() != nil {
			break
		}

		wait := o.backoff(attempts)
		logger.Warningf("Attempt %d/%d failed, retrying in %s: %s", attempts, maxAttempts, wait, err)
		if serr := o.sleep(ctx, wait); serr != nil {
			err = serr
			break
		}
	}
	finished := o.now()
	o.metrics.StepDispatch(ctx, step.Action, err == nil, attempts, finished.Sub(start))

	// Without a recorded result the step is dispatched again with the same
	// idempotency key when the task is reconciled.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("step %d interrupted: %w", step.Index, ctxErr)
	}

	sr := o.stepResult(step, model.StepStatusSucceeded, "")
	sr.Attempts = attempts
	sr.AuditID = entry.ID
	sr.StartedAt = start
	sr.FinishedAt = finished

	if err != nil {
		sr.Status = model.StepStatusFailed
		sr.Error = err.Error()
		cause := fmt.Sprintf("step %d (%s) failed after %d attempts: %s", step.Index, step.Action, attempts, err)
		return o.fail(ctx, t, cause, sr)
	}

	if res != nil {
		sr.Output = res.Output
	}
	logger.Infof("Step executed in %d attempts", attempts)
	return o.advance(ctx, t, sr)
}

func (o *Orchestrator) decisionStep(ctx context.Context, t model.AutoTask, p model.ExecutionPlan, step model.Step) (*model.AutoTask, error) {
	d, err := o.repo.GetStepDecision(ctx, t.ID, step.Index)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return o.askDecision(ctx, t, p, step)
	case err != nil:
		return nil, fmt.Errorf("could not get step decision: %w", err)
	}

	switch d.Status {
	case model.DecisionStatusPending:
		return o.suspend(ctx, t, nil)
	case model.DecisionStatusAnswered:
		sr := o.stepResult(step, model.StepStatusAnswered, "")
		sr.Output = map[string]string{"option": d.SelectedOption, "decided_by": d.DecidedBy}
		return o.advance(ctx, t, sr)
	case model.DecisionStatusTimeout:
		if d.Fallback == "" {
			cause := fmt.Sprintf("step %d decision timed out without answer", step.Index)
			return o.fail(ctx, t, cause, o.stepResult(step, model.StepStatusTimeout, cause))
		}
		sr := o.stepResult(step, model.StepStatusTimeout, "")
		sr.Output = map[string]string{"option": d.Fallback, "fallback": "true"}
		return o.advance(ctx, t, sr)
	default:
		cause := fmt.Sprintf("step %d decision was %s", step.Index, d.Status)
		return o.fail(ctx, t, cause, o.stepResult(step, model.StepStatusSkipped, cause))
	}
}

func (o *Orchestrator) askDecision(ctx context.Context, t model.AutoTask, p model.ExecutionPlan, step model.Step) (*model.AutoTask, error) {
	entry, err := o.safety.Evaluate(ctx, model.ActionFromStep(t.ID, p, step))
	if err != nil {
		return nil, fmt.Errorf("could not evaluate step %d: %w", step.Index, err)
	}
	if entry.Outcome == model.SafetyOutcomeBlocked || entry.Outcome == model.SafetyOutcomeError {
		cause := describeSafety(step, *entry)
		sr := o.stepResult(step, model.StepStatusBlocked, cause)
		sr.AuditID = entry.ID
		return o.fail(ctx, t, cause, sr)
	}

	d, err := o.gates.RequestDecision(ctx, gate.DecisionRequest{
		TaskID:    t.ID,
		PlanID:    p.ID,
		StepIndex: step.Index,
		Spec:      *step.Decision,
	})
	if err != nil {
		return nil, fmt.Errorf("could not request decision: %w", err)
	}

	o.taskLogger(t.ID).Infof("Step %d waits for a decision", step.Index)
	return o.suspend(ctx, t, func(ctx context.Context) error { return o.gates.NotifyDecision(ctx, *d) })
}

func (o *Orchestrator) stepResult(step model.Step, status model.StepStatus, errMsg string) model.StepResult {
	now := o.now()
	return model.StepResult{
		StepIndex:  step.Index,
		Action:     step.Action,
		Status:     status,
		Error:      errMsg,
		StartedAt:  now,
		FinishedAt: now,
	}
}

func describeSafety(step model.Step, entry model.SafetyAuditEntry) string {
	if entry.Outcome == model.SafetyOutcomeError {
		return fmt.Sprintf("step %d (%s) safety evaluation failed: %s", step.Index, step.Action, entry.Error)
	}
	if c, ok := entry.FailedCheck(); ok {
		return fmt.Sprintf("step %d (%s) blocked by %s constraint %q: %s", step.Index, step.Action, c.Type, c.Name, c.Message)
	}
	return fmt.Sprintf("step %d (%s) blocked: %s", step.Index, step.Action, strings.Join(entry.Risk.Factors, "; "))
}

func describeApproval(a model.TaskApproval) string {
	parts := []string{string(a.Status)}
	if a.DecidedBy != "" {
		parts = append(parts, "by "+a.DecidedBy)
	}
	if a.DecisionReason != "" {
		parts = append(parts, a.DecisionReason)
	}
	return strings.Join(parts, ", ")
}

// ExponentialBackoff returns a deterministic backoff: base doubled on every attempt
// and capped to max.
func ExponentialBackoff(base, max time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt && d < max; i++ {
			d *= 2
		}
		if d > max {
			d = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
