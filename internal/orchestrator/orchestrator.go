// Package orchestrator drives tasks through their state machine: it evaluates every
// step with the safety engine, suspends on human gates and dispatches the allowed
// steps to the runtime. All the state lives in the repository, the orchestrator only
// holds in-process locks so the same task is not driven twice by one process.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/slok/autotask/internal/gate"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/metrics"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/runtime"
	"github.com/slok/autotask/internal/storage"
)

// Repository is the storage the orchestrator needs.
type Repository interface {
	storage.TaskRepository
	storage.PlanRepository
	storage.ApprovalRepository
	storage.DecisionRepository
}

// Safety evaluates an action before it's dispatched.
type Safety interface {
	Evaluate(ctx context.Context, action model.Action) (*model.SafetyAuditEntry, error)
}

// Gateway opens and cancels human gates.
type Gateway interface {
	RequestApproval(ctx context.Context, req gate.ApprovalRequest) (*model.TaskApproval, error)
	NotifyApproval(ctx context.Context, a model.TaskApproval) error
	RequestDecision(ctx context.Context, req gate.DecisionRequest) (*model.TaskDecision, error)
	NotifyDecision(ctx context.Context, d model.TaskDecision) error
	CancelForTask(ctx context.Context, taskID string) error
}

var _ Gateway = &gate.Gateway{}

// OrchestratorConfig is the configuration of the orchestrator.
type OrchestratorConfig struct {
	Repository Repository
	Safety     Safety
	Gateway    Gateway
	Runtime    runtime.Runtime
	// Backoff returns the wait before retrying a failed attempt (1 based).
	Backoff func(attempt int) time.Duration
	// Sleep waits between attempts, it must return early when the context ends.
	Sleep func(ctx context.Context, d time.Duration) error
	// Lease is how long a running task belongs to the process driving it after its
	// last write. The driver renews it while it runs, reconcile passes only take
	// over running tasks whose lease expired.
	Lease   time.Duration
	Tracer  trace.Tracer
	Metrics metrics.Recorder
	Logger  log.Logger
	TimeNow func() time.Time
}

func (c *OrchestratorConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Safety == nil {
		return fmt.Errorf("safety is required")
	}
	if c.Gateway == nil {
		return fmt.Errorf("gateway is required")
	}
	if c.Runtime == nil {
		return fmt.Errorf("runtime is required")
	}
	if c.Backoff == nil {
		c.Backoff = ExponentialBackoff(500*time.Millisecond, 30*time.Second)
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
	if c.Lease == 0 {
		c.Lease = 2 * time.Minute
	}
	if c.Lease < 0 {
		return fmt.Errorf("lease can't be negative")
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("github.com/slok/autotask/internal/orchestrator")
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Orchestrator"})
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	return nil
}

// Orchestrator runs tasks.
type Orchestrator struct {
	repo    Repository
	safety  Safety
	gates   Gateway
	runtime runtime.Runtime
	backoff func(attempt int) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	lease   time.Duration
	tracer  trace.Tracer
	metrics metrics.Recorder
	logger  log.Logger
	timeNow func() time.Time
	locks   *taskLocks
}

// NewOrchestrator returns a new orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Orchestrator{
		repo:    cfg.Repository,
		safety:  cfg.Safety,
		gates:   cfg.Gateway,
		runtime: cfg.Runtime,
		backoff: cfg.Backoff,
		sleep:   cfg.Sleep,
		lease:   cfg.Lease,
		tracer:  cfg.Tracer,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		timeNow: cfg.TimeNow,
		locks:   newTaskLocks(),
	}, nil
}

func (o *Orchestrator) now() time.Time { return o.timeNow().UTC() }

func (o *Orchestrator) taskLogger(taskID string) log.Logger {
	return o.logger.WithValues(log.Kv{"task": taskID})
}

// CreateRequest is the request to create a task.
type CreateRequest struct {
	SessionID           string
	Title               string
	Intent              string
	Mode                model.ExecutionMode
	Priority            model.TaskPriority
	RequirePlanApproval bool
}

const maxTitleLength = 80

// Create stores a new pending task.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*model.AutoTask, error) {
	if req.Mode == "" {
		req.Mode = model.ExecutionModeSupervised
	}
	if req.Priority == "" {
		req.Priority = model.TaskPriorityNormal
	}
	if req.Title == "" {
		req.Title = req.Intent
		if r := []rune(req.Title); len(r) > maxTitleLength {
			req.Title = string(r[:maxTitleLength-3]) + "..."
		}
	}

	now := o.now()
	t := model.AutoTask{
		ID:                  ulid.Make().String(),
		SessionID:           req.SessionID,
		Title:               req.Title,
		Intent:              req.Intent,
		Status:              model.TaskStatusPending,
		Mode:                req.Mode,
		Priority:            req.Priority,
		RequirePlanApproval: req.RequirePlanApproval,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := o.repo.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("could not create task: %w", err)
	}

	o.taskLogger(t.ID).Infof("Task created (mode %s)", t.Mode)
	return &t, nil
}

// AttachPlan stores the compiled plan of a pending task and makes it ready.
func (o *Orchestrator) AttachPlan(ctx context.Context, taskID string, p model.ExecutionPlan) (*model.AutoTask, error) {
	unlock := o.locks.lock(taskID)
	defer unlock()

	t, err := o.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(t.Status, EventPlanAttached); err != nil {
		return nil, err
	}
	if p.TaskID != "" && p.TaskID != taskID {
		return nil, fmt.Errorf("plan %s belongs to task %s: %w", p.ID, p.TaskID, model.ErrNotValid)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	p.TaskID = taskID
	p.Status = model.PlanStatusPending
	if !p.Risk.Valid() {
		p.Risk = p.HighestRisk()
	}
	if err := o.repo.CreatePlan(ctx, p); err != nil {
		return nil, fmt.Errorf("could not store plan: %w", err)
	}

	return o.commit(ctx, *t, func(t *model.AutoTask) error {
		if err := applyEvent(t, EventPlanAttached); err != nil {
			return err
		}
		t.PlanID = p.ID
		t.TotalSteps = len(p.Steps)
		t.SetCurrentStep(0)
		return nil
	})
}

// Start moves a ready task to running, Run drives it afterwards.
func (o *Orchestrator) Start(ctx context.Context, taskID string) (*model.AutoTask, error) {
	unlock := o.locks.lock(taskID)
	defer unlock()

	t, err := o.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	return o.commit(ctx, *t, func(t *model.AutoTask) error {
		if err := applyEvent(t, EventStart); err != nil {
			return err
		}
		t.StartedAt = &now
		return nil
	})
}

// Pause suspends a task. Running tasks pause at the next step boundary, tasks waiting
// on a gate pause right away and the gate stays open.
func (o *Orchestrator) Pause(ctx context.Context, taskID string) (*model.AutoTask, error) {
	return o.onFreshTask(ctx, taskID, func(t model.AutoTask) (*model.AutoTask, error) {
		if t.Status == model.TaskStatusRunning {
			return o.commit(ctx, t, func(t *model.AutoTask) error {
				if t.Status != model.TaskStatusRunning {
					return fmt.Errorf("task is %s: %w", t.Status, model.ErrConflict)
				}
				if t.Interrupt == model.TaskInterruptCancel {
					return fmt.Errorf("task is being cancelled: %w", model.ErrNotValid)
				}
				t.Interrupt = model.TaskInterruptPause
				return nil
			})
		}

		return o.commit(ctx, t, func(t *model.AutoTask) error { return applyEvent(t, EventPause) })
	})
}

// Resume continues a paused task, Run drives it afterwards. A pause requested on a
// running task that has not reached the step boundary yet is withdrawn.
func (o *Orchestrator) Resume(ctx context.Context, taskID string) (*model.AutoTask, error) {
	return o.onFreshTask(ctx, taskID, func(t model.AutoTask) (*model.AutoTask, error) {
		if t.Status == model.TaskStatusRunning && t.Interrupt == model.TaskInterruptPause {
			return o.commit(ctx, t, func(t *model.AutoTask) error {
				t.Interrupt = model.TaskInterruptNone
				return nil
			})
		}

		return o.commit(ctx, t, func(t *model.AutoTask) error {
			if err := applyEvent(t, EventResume); err != nil {
				return err
			}
			t.Interrupt = model.TaskInterruptNone
			return nil
		})
	})
}

// Cancel cancels a task. Running tasks are cancelled at the next step boundary, the
// rest right away resolving their pending gates.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) (*model.AutoTask, error) {
	return o.onFreshTask(ctx, taskID, func(t model.AutoTask) (*model.AutoTask, error) {
		if t.Status == model.TaskStatusRunning {
			return o.commit(ctx, t, func(t *model.AutoTask) error {
				if t.Status != model.TaskStatusRunning {
					return fmt.Errorf("task is %s: %w", t.Status, model.ErrConflict)
				}
				t.Interrupt = model.TaskInterruptCancel
				return nil
			})
		}

		next, err := o.commit(ctx, t, func(t *model.AutoTask) error { return o.terminate(t, EventCancel, "") })
		if err != nil {
			return nil, err
		}
		o.closeTask(ctx, *next, model.PlanStatusFailed)
		return next, nil
	})
}

// Fail terminates a non terminal task with a cause.
func (o *Orchestrator) Fail(ctx context.Context, taskID string, cause string) (*model.AutoTask, error) {
	return o.onFreshTask(ctx, taskID, func(t model.AutoTask) (*model.AutoTask, error) {
		next, err := o.commit(ctx, t, func(t *model.AutoTask) error { return o.terminate(t, EventFail, cause) })
		if err != nil {
			return nil, err
		}
		o.closeTask(ctx, *next, model.PlanStatusFailed)
		return next, nil
	})
}

const maxConflictRetries = 3

// onFreshTask loads the task and runs fn, reloading and running it again when a
// concurrent change wins the conditional update.
func (o *Orchestrator) onFreshTask(ctx context.Context, taskID string, fn func(t model.AutoTask) (*model.AutoTask, error)) (*model.AutoTask, error) {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		var t *model.AutoTask
		t, err = o.getTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		var next *model.AutoTask
		next, err = fn(*t)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return nil, err
		}
	}
	return nil, err
}

func (o *Orchestrator) getTask(ctx context.Context, taskID string) (*model.AutoTask, error) {
	t, err := o.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	return t, nil
}

func expectation(t model.AutoTask) storage.TaskExpectation {
	return storage.TaskExpectation{Status: t.Status, CurrentStep: t.CurrentStep, Interrupt: t.Interrupt}
}

func applyEvent(t *model.AutoTask, ev Event) error {
	to, err := Transition(t.Status, ev)
	if err != nil {
		return err
	}
	t.Status = to
	return nil
}

// terminate moves the task to a terminal status.
func (o *Orchestrator) terminate(t *model.AutoTask, ev Event, cause string) error {
	if err := applyEvent(t, ev); err != nil {
		return err
	}
	now := o.now()
	t.Error = cause
	t.Interrupt = model.TaskInterruptNone
	t.CompletedAt = &now
	return nil
}

// commit applies mutate to the task and stores it with a conditional update on the
// task status, current step and interrupt. When only an operator interrupt changed
// in between, mutate is applied again on the fresh task.
func (o *Orchestrator) commit(ctx context.Context, t model.AutoTask, mutate func(t *model.AutoTask) error, results ...model.StepResult) (*model.AutoTask, error) {
	for i := 0; ; i++ {
		next := t
		next.StepResults = nil
		if err := mutate(&next); err != nil {
			return nil, err
		}
		next.UpdatedAt = o.now()

		err := o.repo.UpdateTask(ctx, next, expectation(t), results...)
		if err == nil {
			if next.Status != t.Status {
				o.metrics.TaskTransition(ctx, t.Status, next.Status)
				o.taskLogger(t.ID).Infof("Task %s -> %s", t.Status, next.Status)
			}
			return &next, nil
		}
		if !errors.Is(err, model.ErrConflict) || i >= maxConflictRetries {
			return nil, fmt.Errorf("could not update task: %w", err)
		}

		fresh, gerr := o.getTask(ctx, t.ID)
		if gerr != nil {
			return nil, gerr
		}
		if fresh.Status != t.Status || fresh.CurrentStep != t.CurrentStep {
			return nil, fmt.Errorf("task changed concurrently to %s at step %d: %w", fresh.Status, fresh.CurrentStep, model.ErrConflict)
		}
		t = *fresh
	}
}

// closeTask resolves what a terminated task leaves behind: its pending gates and
// its plan.
func (o *Orchestrator) closeTask(ctx context.Context, t model.AutoTask, planStatus model.PlanStatus) {
	logger := o.taskLogger(t.ID)
	if err := o.gates.CancelForTask(ctx, t.ID); err != nil {
		logger.Warningf("Could not cancel pending gates: %s", err)
	}
	if t.PlanID == "" {
		return
	}

	p, err := o.repo.GetPlan(ctx, t.PlanID)
	if err != nil {
		logger.Warningf("Could not get plan: %s", err)
		return
	}
	switch p.Status {
	case model.PlanStatusCompleted, model.PlanStatusFailed, model.PlanStatusRejected:
		return
	}
	if err := o.repo.UpdatePlanStatus(ctx, p.ID, p.Status, planStatus); err != nil {
		logger.Warningf("Could not set plan %s as %s: %s", p.ID, planStatus, err)
	}
}
