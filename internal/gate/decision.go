package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/notify"
)

// DecisionRequest raises an open question for a decision step.
type DecisionRequest struct {
	TaskID    string
	PlanID    string
	StepIndex int
	Spec      model.DecisionSpec
}

// RequestDecision creates a pending decision. A task can only have one pending decision.
func (g *Gateway) RequestDecision(ctx context.Context, req DecisionRequest) (*model.TaskDecision, error) {
	if req.TaskID == "" {
		return nil, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}
	if err := req.Spec.Validate(); err != nil {
		return nil, err
	}

	timeout := req.Spec.Timeout
	if timeout == 0 {
		timeout = g.policy.DecisionTimeout
	}

	now := g.now()
	d := model.TaskDecision{
		ID:        ulid.Make().String(),
		TaskID:    req.TaskID,
		PlanID:    req.PlanID,
		StepIndex: req.StepIndex,
		Question:  req.Spec.Question,
		Options:   req.Spec.Options,
		Status:    model.DecisionStatusPending,
		Timeout:   timeout,
		ExpiresAt: now.Add(timeout),
		Fallback:  req.Spec.Fallback,
		Token:     newToken(),
		CreatedAt: now,
	}
	if err := g.repo.CreateDecision(ctx, d); err != nil {
		return nil, fmt.Errorf("could not create decision: %w", err)
	}

	g.logger.WithValues(gateKv(d.TaskID, d.ID)).Infof("Decision requested for step %d", d.StepIndex)
	return &d, nil
}

// NotifyDecision delivers the question to the user.
func (g *Gateway) NotifyDecision(ctx context.Context, d model.TaskDecision) error {
	err := g.notifier.Notify(ctx, notify.Prompt{
		Kind:      model.GateKindDecision,
		GateID:    d.ID,
		TaskID:    d.TaskID,
		StepIndex: d.StepIndex,
		Title:     "Decision required",
		Message:   d.Question,
		Options:   d.Options,
		Token:     d.Token,
		ExpiresAt: d.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("could not notify decision %s: %w", d.ID, err)
	}
	return nil
}

// Answer selects one option of a decision, referenced by ID or by token.
type Answer struct {
	DecisionID string
	Token      string
	Option     string
	By         string
	Reason     string
}

// SubmitDecision answers a decision. Answers on resolved decisions return
// model.ErrAlreadyResolved and don't change anything.
func (g *Gateway) SubmitDecision(ctx context.Context, ans Answer) (*model.TaskDecision, error) {
	if ans.By == "" {
		return nil, fmt.Errorf("answer author is required: %w", model.ErrNotValid)
	}

	d, err := g.getDecision(ctx, ans.DecisionID, ans.Token)
	if err != nil {
		return nil, err
	}
	if d.Resolved() {
		return d, fmt.Errorf("decision %s is %s: %w", d.ID, d.Status, model.ErrAlreadyResolved)
	}
	if !d.HasOption(ans.Option) {
		return nil, fmt.Errorf("%q is not an option of decision %s: %w", ans.Option, d.ID, model.ErrNotValid)
	}

	now := g.now()
	if !now.Before(d.ExpiresAt) {
		if _, err := g.timeoutDecision(ctx, *d); err != nil {
			return nil, err
		}
		d, err = g.repo.GetDecision(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("could not get decision: %w", err)
		}
		return d, fmt.Errorf("decision %s timed out: %w", d.ID, model.ErrAlreadyResolved)
	}

	next := *d
	next.Status = model.DecisionStatusAnswered
	next.SelectedOption = ans.Option
	next.DecisionReason = ans.Reason
	next.DecidedBy = ans.By
	next.DecidedAt = &now

	if err := g.repo.UpdateDecision(ctx, next, model.DecisionStatusPending); err != nil {
		if !errors.Is(err, model.ErrConflict) {
			return nil, fmt.Errorf("could not update decision: %w", err)
		}
		current, gerr := g.repo.GetDecision(ctx, d.ID)
		if gerr != nil {
			return nil, fmt.Errorf("could not get decision: %w", gerr)
		}
		return current, fmt.Errorf("decision %s is %s: %w", d.ID, current.Status, model.ErrAlreadyResolved)
	}

	g.resolved(ctx, model.GateKindDecision, next.TaskID, next.ID, string(next.Status), next.CreatedAt)
	return &next, nil
}

func (g *Gateway) getDecision(ctx context.Context, id, token string) (*model.TaskDecision, error) {
	var (
		d   *model.TaskDecision
		err error
	)
	switch {
	case id != "":
		d, err = g.repo.GetDecision(ctx, id)
	case token != "":
		d, err = g.repo.GetDecisionByToken(ctx, token)
	default:
		return nil, fmt.Errorf("decision id or token is required: %w", model.ErrNotValid)
	}
	if err != nil {
		return nil, fmt.Errorf("could not get decision: %w", err)
	}
	return d, nil
}

// timeoutDecision resolves a decision as timed out, the fallback is applied by the
// orchestrator. Returns false when another resolution won.
func (g *Gateway) timeoutDecision(ctx context.Context, d model.TaskDecision) (bool, error) {
	now := g.now()
	d.Status = model.DecisionStatusTimeout
	d.DecisionReason = "no answer before the timeout"
	d.DecidedBy = "system"
	d.DecidedAt = &now

	err := g.repo.UpdateDecision(ctx, d, model.DecisionStatusPending)
	if errors.Is(err, model.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not time out decision %s: %w", d.ID, err)
	}

	g.resolved(ctx, model.GateKindDecision, d.TaskID, d.ID, string(d.Status), d.CreatedAt)
	return true, nil
}
