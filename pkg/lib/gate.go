package lib

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/app/approve"
	"github.com/slok/autotask/internal/app/decide"
	"github.com/slok/autotask/internal/app/pending"
	"github.com/slok/autotask/internal/model"
)

// Pending are the approvals and decisions waiting on a human, the ones expiring first go first.
type Pending struct {
	Approvals []Approval
	Decisions []Decision
}

// ListPending returns the pending gates. An empty taskID returns the gates of all tasks.
func (c *Client) ListPending(ctx context.Context, taskID string) (*Pending, error) {
	svc, err := pending.NewService(pending.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, pending.Request{TaskID: taskID})
	if err != nil {
		return nil, mapError(err)
	}

	p := &Pending{
		Approvals: make([]Approval, 0, len(res.Approvals)),
		Decisions: make([]Decision, 0, len(res.Decisions)),
	}
	for _, a := range res.Approvals {
		p.Approvals = append(p.Approvals, fromInternalApproval(a))
	}
	for _, d := range res.Decisions {
		p.Decisions = append(p.Decisions, fromInternalDecision(d))
	}

	return p, nil
}

// ApproveOpts is a vote on an approval.
//
// ApprovalID or Token is required.
type ApproveOpts struct {
	ApprovalID string
	// Token is the single use token sent with the notification.
	Token    string
	Approver string
	// Verdict defaults to [VerdictApprove].
	Verdict Verdict
	Reason  string
}

// ApproveResult is the result of [Client.Approve].
type ApproveResult struct {
	Approval Approval
	// Task is set when the vote resolved the approval and the task continued.
	Task *Task
}

// Approve votes on an approval. When the vote resolves it, the task continues
// until it needs a human again or finishes.
//
// Returns [ErrAlreadyResolved] if the approval was already resolved and
// [ErrNotValid] if the approver can't vote on the current level.
func (c *Client) Approve(ctx context.Context, opts ApproveOpts) (*ApproveResult, error) {
	svc, err := approve.NewService(approve.ServiceConfig{
		Gateway: c.sys.Gateway,
		Resumer: c.sys.Orchestrator,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	verdict := opts.Verdict
	if verdict == "" {
		verdict = VerdictApprove
	}

	res, err := svc.Run(ctx, approve.Request{
		ApprovalID: opts.ApprovalID,
		Token:      opts.Token,
		Approver:   opts.Approver,
		Verdict:    model.Verdict(verdict),
		Reason:     opts.Reason,
	})
	if err != nil {
		return nil, mapError(err)
	}

	result := &ApproveResult{Approval: fromInternalApproval(res.Approval)}
	if res.Task != nil {
		t := fromInternalTask(*res.Task)
		result.Task = &t
	}

	return result, nil
}

// DecideOpts is the answer of a decision.
//
// DecisionID or Token, and Option are required.
type DecideOpts struct {
	DecisionID string
	// Token is the single use token sent with the notification.
	Token  string
	Option string
	By     string
	Reason string
}

// DecideResult is the result of [Client.Decide].
type DecideResult struct {
	Decision Decision
	// Task is the task after continuing with the answer.
	Task *Task
}

// Decide answers a decision and continues its task.
//
// Returns [ErrAlreadyResolved] if the decision was already answered or timed out
// and [ErrNotValid] if the option is not one of the decision options.
func (c *Client) Decide(ctx context.Context, opts DecideOpts) (*DecideResult, error) {
	svc, err := decide.NewService(decide.ServiceConfig{
		Gateway: c.sys.Gateway,
		Resumer: c.sys.Orchestrator,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, decide.Request{
		DecisionID: opts.DecisionID,
		Token:      opts.Token,
		Option:     opts.Option,
		By:         opts.By,
		Reason:     opts.Reason,
	})
	if err != nil {
		return nil, mapError(err)
	}

	result := &DecideResult{Decision: fromInternalDecision(res.Decision)}
	if res.Task != nil {
		t := fromInternalTask(*res.Task)
		result.Task = &t
	}

	return result, nil
}
