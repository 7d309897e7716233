package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// SweepResult is what a sweep resolved.
type SweepResult struct {
	Approvals int
	Decisions int
}

// Sweep resolves the pending gates that expired before now. It's idempotent and
// safe to run concurrently from many processes, only one resolution wins.
func (g *Gateway) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	res := &SweepResult{}

	pendingApproval := model.ApprovalStatusPending
	approvals, err := g.repo.ListApprovals(ctx, storage.ApprovalListOpts{Status: &pendingApproval, ExpiredBefore: &now})
	if err != nil {
		return nil, fmt.Errorf("could not list expired approvals: %w", err)
	}
	for _, a := range approvals {
		ok, err := g.expireApproval(ctx, a)
		if err != nil {
			return res, err
		}
		if ok {
			res.Approvals++
		}
	}
	g.metrics.Swept(ctx, model.GateKindApproval, res.Approvals)

	pendingDecision := model.DecisionStatusPending
	decisions, err := g.repo.ListDecisions(ctx, storage.DecisionListOpts{Status: &pendingDecision, ExpiredBefore: &now})
	if err != nil {
		return res, fmt.Errorf("could not list expired decisions: %w", err)
	}
	for _, d := range decisions {
		ok, err := g.timeoutDecision(ctx, d)
		if err != nil {
			return res, err
		}
		if ok {
			res.Decisions++
		}
	}
	g.metrics.Swept(ctx, model.GateKindDecision, res.Decisions)

	if res.Approvals+res.Decisions > 0 {
		g.logger.Infof("Sweep expired %d approvals and %d decisions", res.Approvals, res.Decisions)
	}
	return res, nil
}
