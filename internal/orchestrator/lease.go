package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/slok/autotask/internal/model"
)

// keepLease renews the lease of the task until the returned func is called.
func (o *Orchestrator) keepLease(ctx context.Context, taskID string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(o.lease / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := o.renewLease(ctx, taskID); err != nil && ctx.Err() == nil {
				o.taskLogger(taskID).Warningf("Could not renew task lease: %s", err)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// renewLease touches the running task. Losing the conditional update means the
// driver or an operator wrote the task, which renews the lease as well.
func (o *Orchestrator) renewLease(ctx context.Context, taskID string) error {
	t, err := o.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != model.TaskStatusRunning {
		return nil
	}

	expect := expectation(*t)
	t.StepResults = nil
	t.UpdatedAt = o.now()
	err = o.repo.UpdateTask(ctx, *t, expect)
	if errors.Is(err, model.ErrConflict) {
		return nil
	}
	return err
}

// leaseExpired returns true when nobody wrote the task for a whole lease.
func (o *Orchestrator) leaseExpired(t model.AutoTask) bool {
	return o.now().Sub(t.UpdatedAt) >= o.lease
}
