package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/notify"
	"github.com/slok/autotask/internal/storage"
)

// ApprovalRequest opens an approval gate on a step, or on the whole plan with model.PlanGateStep.
type ApprovalRequest struct {
	TaskID      string
	PlanID      string
	StepIndex   int
	Action      model.ActionType
	Description string
	Risk        model.RiskLevel
	// Chain overrides the policy chain for the risk.
	Chain *model.ApprovalChain
	// Timeout overrides the chain first level and the policy timeouts.
	Timeout       time.Duration
	DefaultAction model.DefaultAction
}

// RequestApproval creates a pending approval. A task can only have one pending approval.
func (g *Gateway) RequestApproval(ctx context.Context, req ApprovalRequest) (*model.TaskApproval, error) {
	if req.TaskID == "" {
		return nil, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}
	if !req.Risk.Valid() {
		return nil, fmt.Errorf("invalid risk %q: %w", req.Risk, model.ErrNotValid)
	}

	chain := model.ApprovalChain{Levels: []model.ApprovalLevel{{}}}
	if req.Chain != nil {
		chain = *req.Chain
	} else if c, ok := g.policy.ChainFor(req.Risk); ok {
		chain = c
	}
	if err := chain.Validate(); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = chain.Levels[0].Timeout
	}
	if timeout == 0 {
		timeout = g.policy.DefaultTimeout
	}

	defAction := req.DefaultAction
	if defAction == "" {
		defAction = g.policy.DefaultAction
	}

	now := g.now()
	a := model.TaskApproval{
		ID:                ulid.Make().String(),
		TaskID:            req.TaskID,
		PlanID:            req.PlanID,
		StepIndex:         req.StepIndex,
		Action:            req.Action,
		ActionDescription: req.Description,
		Risk:              req.Risk,
		Status:            model.ApprovalStatusPending,
		Chain:             chain,
		ExpiresAt:         now.Add(timeout),
		DefaultAction:     defAction,
		Token:             newToken(),
		CreatedAt:         now,
	}
	if err := g.repo.CreateApproval(ctx, a); err != nil {
		return nil, fmt.Errorf("could not create approval: %w", err)
	}

	g.logger.WithValues(gateKv(a.TaskID, a.ID)).Infof("Approval requested for step %d (%s, risk %s)", a.StepIndex, a.Action, a.Risk)
	return &a, nil
}

// NotifyApproval delivers the prompt of the current chain level.
func (g *Gateway) NotifyApproval(ctx context.Context, a model.TaskApproval) error {
	target := fmt.Sprintf("step %d", a.StepIndex)
	if a.StepIndex == model.PlanGateStep {
		target = "the whole plan"
	}

	err := g.notifier.Notify(ctx, notify.Prompt{
		Kind:      model.GateKindApproval,
		GateID:    a.ID,
		TaskID:    a.TaskID,
		StepIndex: a.StepIndex,
		Title:     fmt.Sprintf("Approval required for %s", target),
		Message:   fmt.Sprintf("%s (risk %s): %s", a.Action, a.Risk, a.ActionDescription),
		Risk:      a.Risk,
		Level:     a.CurrentLevel,
		Approvers: a.Level().Approvers,
		Token:     a.Token,
		ExpiresAt: a.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("could not notify approval %s: %w", a.ID, err)
	}
	return nil
}

// Vote is the answer of an approver, the approval is referenced by ID or by token.
type Vote struct {
	ApprovalID string
	Token      string
	Approver   string
	Verdict    model.Verdict
	Reason     string
}

// SubmitApproval records a vote and resolves or advances the chain when the level completes.
// Votes on resolved approvals return model.ErrAlreadyResolved and don't change anything.
func (g *Gateway) SubmitApproval(ctx context.Context, v Vote) (*model.TaskApproval, error) {
	if !v.Verdict.Valid() {
		return nil, fmt.Errorf("invalid verdict %q: %w", v.Verdict, model.ErrNotValid)
	}
	if v.Approver == "" {
		return nil, fmt.Errorf("approver is required: %w", model.ErrNotValid)
	}

	a, err := g.getApproval(ctx, v.ApprovalID, v.Token)
	if err != nil {
		return nil, err
	}

	// A conflict means a concurrent vote or resolution changed the approval, the
	// vote is decided again on the fresh state.
	for attempt := 1; ; attempt++ {
		res, err := g.vote(ctx, *a, v)
		if !errors.Is(err, model.ErrConflict) || attempt == voteAttempts {
			return res, err
		}

		a, err = g.repo.GetApproval(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("could not get approval: %w", err)
		}
	}
}

const voteAttempts = 3

func (g *Gateway) vote(ctx context.Context, a model.TaskApproval, v Vote) (*model.TaskApproval, error) {
	if a.Resolved() {
		return &a, fmt.Errorf("approval %s is %s: %w", a.ID, a.Status, model.ErrAlreadyResolved)
	}

	now := g.now()
	if !now.Before(a.ExpiresAt) {
		if _, err := g.expireApproval(ctx, a); err != nil {
			return nil, err
		}
		current, err := g.repo.GetApproval(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("could not get approval: %w", err)
		}
		return current, fmt.Errorf("approval %s expired: %w", a.ID, model.ErrAlreadyResolved)
	}

	level := a.Level()
	if !level.CanVote(v.Approver) {
		return nil, fmt.Errorf("%s can't vote on level %d of approval %s: %w", v.Approver, a.CurrentLevel, a.ID, model.ErrNotValid)
	}

	votes, err := g.repo.ListApprovalVotes(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list votes: %w", err)
	}
	levelVotes := 0
	for _, existing := range votes {
		if existing.Level != a.CurrentLevel {
			continue
		}
		if existing.Approver == v.Approver {
			return nil, fmt.Errorf("%s already voted on level %d: %w", v.Approver, a.CurrentLevel, model.ErrAlreadyExists)
		}
		levelVotes++
	}

	vote := model.ApprovalVote{
		ApprovalID: a.ID,
		Level:      a.CurrentLevel,
		Approver:   v.Approver,
		Verdict:    v.Verdict,
		Reason:     v.Reason,
		CreatedAt:  now,
	}
	votes = append(votes, vote)

	next := a
	waiting := false
	switch {
	case v.Verdict == model.VerdictSkip:
		next.Status = model.ApprovalStatusSkipped
	case v.Verdict == model.VerdictReject && a.Chain.StopOnReject:
		next.Status = model.ApprovalStatusRejected
	case !levelComplete(level, a.CurrentLevel, v.Verdict, votes):
		waiting = true
	case a.CurrentLevel < len(a.Chain.Levels)-1:
		next.CurrentLevel++
		if t := next.Level().Timeout; t > 0 {
			next.ExpiresAt = now.Add(t)
		}
	case anyReject(votes):
		next.Status = model.ApprovalStatusRejected
	default:
		next.Status = model.ApprovalStatusApproved
	}

	if next.Status != model.ApprovalStatusPending {
		next.DecisionReason = v.Reason
		next.DecidedBy = v.Approver
		next.DecidedAt = &now
	}

	// The vote and the approval it leads to are stored together, a vote that lost
	// against another resolution is never recorded.
	expect := storage.VoteExpectation{
		ApprovalExpectation: storage.ApprovalExpectation{Status: model.ApprovalStatusPending, Level: a.CurrentLevel},
		Votes:               levelVotes,
	}
	if err := g.repo.RecordApprovalVote(ctx, vote, next, expect); err != nil {
		return nil, fmt.Errorf("could not record vote: %w", err)
	}

	switch {
	case waiting:
		g.logger.WithValues(gateKv(a.TaskID, a.ID)).Infof("Vote of %s recorded, level %d waits for more approvers", v.Approver, a.CurrentLevel)
		return &next, nil
	case next.Status == model.ApprovalStatusPending:
		g.logger.WithValues(gateKv(a.TaskID, a.ID)).Infof("Approval advanced to level %d", next.CurrentLevel)
		if err := g.NotifyApproval(ctx, next); err != nil {
			g.logger.Warningf("Could not notify next approval level: %s", err)
		}
		return &next, nil
	}

	g.resolved(ctx, model.GateKindApproval, next.TaskID, next.ID, string(next.Status), next.CreatedAt)
	return &next, nil
}

// levelComplete returns true when the level has all the votes it needs. A reject
// completes a require all level since it can't be unanimous anymore.
func levelComplete(level model.ApprovalLevel, idx int, verdict model.Verdict, votes []model.ApprovalVote) bool {
	if !level.RequireAll || verdict == model.VerdictReject {
		return true
	}

	approved := map[string]bool{}
	for _, v := range votes {
		if v.Level == idx && v.Verdict == model.VerdictApprove {
			approved[v.Approver] = true
		}
	}
	for _, a := range level.Approvers {
		if !approved[a] {
			return false
		}
	}
	return true
}

func anyReject(votes []model.ApprovalVote) bool {
	for _, v := range votes {
		if v.Verdict == model.VerdictReject {
			return true
		}
	}
	return false
}

func (g *Gateway) getApproval(ctx context.Context, id, token string) (*model.TaskApproval, error) {
	var (
		a   *model.TaskApproval
		err error
	)
	switch {
	case id != "":
		a, err = g.repo.GetApproval(ctx, id)
	case token != "":
		a, err = g.repo.GetApprovalByToken(ctx, token)
	default:
		return nil, fmt.Errorf("approval id or token is required: %w", model.ErrNotValid)
	}
	if err != nil {
		return nil, fmt.Errorf("could not get approval: %w", err)
	}
	return a, nil
}

// expireApproval resolves an approval as expired, returns false when another
// resolution won.
func (g *Gateway) expireApproval(ctx context.Context, a model.TaskApproval) (bool, error) {
	expect := storage.ApprovalExpectation{Status: model.ApprovalStatusPending, Level: a.CurrentLevel}
	now := g.now()
	a.Status = model.ApprovalStatusExpired
	a.DecisionReason = fmt.Sprintf("expired, default action %s applied", a.DefaultAction)
	a.DecidedBy = "system"
	a.DecidedAt = &now

	err := g.repo.UpdateApproval(ctx, a, expect)
	if errors.Is(err, model.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not expire approval %s: %w", a.ID, err)
	}

	g.resolved(ctx, model.GateKindApproval, a.TaskID, a.ID, string(a.Status), a.CreatedAt)
	return true, nil
}
