package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// HandleResume continues the task of a resolved gate. Events of tasks that are not
// waiting anymore or whose gate is still pending are ignored, so duplicated and
// stale events are harmless.
func (o *Orchestrator) HandleResume(ctx context.Context, ev model.ResumeEvent) (*model.AutoTask, error) {
	unlock := o.locks.lock(ev.TaskID)
	defer unlock()

	return o.resume(ctx, ev.TaskID)
}

func (o *Orchestrator) resume(ctx context.Context, taskID string) (*model.AutoTask, error) {
	t, err := o.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	logger := o.taskLogger(taskID)
	if t.Status != model.TaskStatusWaitingApproval {
		logger.Debugf("Task is %s, ignoring resume", t.Status)
		return t, nil
	}

	resolved, err := o.gateResolved(ctx, *t)
	if err != nil {
		return nil, err
	}
	if !resolved {
		logger.Debugf("Gate of step %d still pending, ignoring resume", t.CurrentStep)
		return t, nil
	}

	next, err := o.commit(ctx, *t, func(t *model.AutoTask) error { return applyEvent(t, EventGateResolved) })
	if err != nil {
		return nil, err
	}
	return o.run(ctx, *next)
}

// gateResolved returns true when the gate the task waits on is not pending anymore.
func (o *Orchestrator) gateResolved(ctx context.Context, t model.AutoTask) (bool, error) {
	p, err := o.repo.GetPlan(ctx, t.PlanID)
	if err != nil {
		return false, fmt.Errorf("could not get plan: %w", err)
	}

	stepIndex := t.CurrentStep
	switch {
	case t.RequirePlanApproval && p.Status == model.PlanStatusPending:
		stepIndex = model.PlanGateStep
	case stepIndex < len(p.Steps) && p.Steps[stepIndex].IsDecision():
		d, err := o.repo.GetStepDecision(ctx, t.ID, stepIndex)
		if errors.Is(err, model.ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("could not get step decision: %w", err)
		}
		return d.Resolved(), nil
	}

	a, err := o.repo.GetStepApproval(ctx, t.ID, stepIndex)
	// Without a gate the run opens it again.
	if errors.Is(err, model.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not get step approval: %w", err)
	}
	return a.Resolved(), nil
}

func (o *Orchestrator) rerun(ctx context.Context, taskID string) error {
	t, err := o.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !o.leaseExpired(*t) {
		return nil
	}
	_, err = o.run(ctx, *t)
	return err
}

// ReconcileResult is what a reconcile pass did.
type ReconcileResult struct {
	// Rerun are the running tasks driven again.
	Rerun int
	// Resumed are the waiting tasks whose gate was already resolved.
	Resumed int
	// Failed are the tasks that could not be reconciled.
	Failed int
}

// Reconcile recovers the tasks left behind by a crash or by lost resume events:
// running tasks whose lease expired and waiting tasks whose gate is resolved.
func (o *Orchestrator) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	res := &ReconcileResult{}

	running := model.TaskStatusRunning
	tasks, err := o.repo.ListTasks(ctx, storage.TaskListOpts{Status: &running})
	if err != nil {
		return nil, fmt.Errorf("could not list running tasks: %w", err)
	}
	for _, t := range tasks {
		if !o.leaseExpired(t) {
			o.taskLogger(t.ID).Debugf("Task lease is held since %s, not rerunning", t.UpdatedAt)
			continue
		}
		unlock, ok := o.locks.tryLock(t.ID)
		if !ok {
			continue
		}
		err := o.rerun(ctx, t.ID)
		unlock()
		if err != nil {
			o.taskLogger(t.ID).Errorf("Could not rerun task: %s", err)
			res.Failed++
			continue
		}
		res.Rerun++
	}

	waiting := model.TaskStatusWaitingApproval
	tasks, err = o.repo.ListTasks(ctx, storage.TaskListOpts{Status: &waiting})
	if err != nil {
		return res, fmt.Errorf("could not list waiting tasks: %w", err)
	}
	for _, t := range tasks {
		unlock, ok := o.locks.tryLock(t.ID)
		if !ok {
			continue
		}
		resolved, err := o.gateResolved(ctx, t)
		if err == nil && resolved {
			_, err = o.resume(ctx, t.ID)
			if err == nil {
				res.Resumed++
			}
		}
		unlock()
		if err != nil {
			o.taskLogger(t.ID).Errorf("Could not resume task: %s", err)
			res.Failed++
		}
	}

	if res.Rerun+res.Resumed+res.Failed > 0 {
		o.logger.Infof("Reconciled %d running and %d waiting tasks (%d failed)", res.Rerun, res.Resumed, res.Failed)
	}
	return res, nil
}
