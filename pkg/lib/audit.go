package lib

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/app/audit"
	"github.com/slok/autotask/internal/app/sweep"
	"github.com/slok/autotask/internal/model"
)

// AuditOpts selects the audit entries. TaskID or PlanID is required.
type AuditOpts struct {
	TaskID string
	PlanID string
	// Outcome filters by outcome (allowed, blocked, warning, error).
	Outcome string
}

// Audit returns the safety evaluations in evaluation order.
func (c *Client) Audit(ctx context.Context, opts AuditOpts) ([]AuditEntry, error) {
	svc, err := audit.NewService(audit.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	entries, err := svc.Run(ctx, audit.Request{
		TaskID:  opts.TaskID,
		PlanID:  opts.PlanID,
		Outcome: model.SafetyOutcome(opts.Outcome),
	})
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalAuditEntries(entries), nil
}

// SweepResult counts what a sweep did.
type SweepResult struct {
	ExpiredApprovals int
	ExpiredDecisions int
	// Rerun are the running tasks left behind by a stopped process.
	Rerun   int
	Resumed int
	Failed  int
}

// Sweep expires the overdue approvals and decisions and continues the tasks
// that can go on. Long running applications should call it periodically.
func (c *Client) Sweep(ctx context.Context) (*SweepResult, error) {
	svc, err := sweep.NewService(sweep.ServiceConfig{
		Gateway:    c.sys.Gateway,
		Reconciler: c.sys.Orchestrator,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	return &SweepResult{
		ExpiredApprovals: res.Swept.Approvals,
		ExpiredDecisions: res.Swept.Decisions,
		Rerun:            res.Reconciled.Rerun,
		Resumed:          res.Reconciled.Resumed,
		Failed:           res.Reconciled.Failed,
	}, nil
}
