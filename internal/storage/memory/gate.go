package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// CreateApproval stores a new approval, a task can only have one pending approval.
func (r *Repository) CreateApproval(ctx context.Context, a model.TaskApproval) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.approvals[a.ID]; ok {
		return fmt.Errorf("approval %s: %w", a.ID, model.ErrAlreadyExists)
	}
	for _, existing := range r.approvals {
		if existing.Token == a.Token {
			return fmt.Errorf("approval token: %w", model.ErrAlreadyExists)
		}
		if a.Status == model.ApprovalStatusPending && existing.TaskID == a.TaskID && existing.Status == model.ApprovalStatusPending {
			return fmt.Errorf("pending approval for task %s: %w", a.TaskID, model.ErrAlreadyExists)
		}
	}

	r.approvals[a.ID] = copyApproval(a)
	r.approvalOrder = append(r.approvalOrder, a.ID)
	return nil
}

// GetApproval retrieves an approval by ID.
func (r *Repository) GetApproval(ctx context.Context, id string) (*model.TaskApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.approvals[id]
	if !ok {
		return nil, fmt.Errorf("approval %s: %w", id, model.ErrNotFound)
	}
	a = copyApproval(a)
	return &a, nil
}

// GetApprovalByToken retrieves an approval by its response token.
func (r *Repository) GetApprovalByToken(ctx context.Context, token string) (*model.TaskApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.approvals {
		if a.Token == token {
			a = copyApproval(a)
			return &a, nil
		}
	}
	return nil, fmt.Errorf("approval: %w", model.ErrNotFound)
}

// GetStepApproval retrieves the latest approval of a task step.
func (r *Repository) GetStepApproval(ctx context.Context, taskID string, stepIndex int) (*model.TaskApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.approvalOrder) - 1; i >= 0; i-- {
		a := r.approvals[r.approvalOrder[i]]
		if a.TaskID == taskID && a.StepIndex == stepIndex {
			a = copyApproval(a)
			return &a, nil
		}
	}
	return nil, fmt.Errorf("approval: %w", model.ErrNotFound)
}

// ListApprovals lists approvals in creation order.
func (r *Repository) ListApprovals(ctx context.Context, opts storage.ApprovalListOpts) ([]model.TaskApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	approvals := []model.TaskApproval{}
	for _, id := range r.approvalOrder {
		a := r.approvals[id]
		if opts.TaskID != "" && a.TaskID != opts.TaskID {
			continue
		}
		if opts.Status != nil && a.Status != *opts.Status {
			continue
		}
		if opts.ExpiredBefore != nil && !a.ExpiresAt.Before(*opts.ExpiredBefore) {
			continue
		}
		approvals = append(approvals, copyApproval(a))
	}

	return approvals, nil
}

// UpdateApproval stores the approval only if its stored status and level match.
func (r *Repository) UpdateApproval(ctx context.Context, a model.TaskApproval, expect storage.ApprovalExpectation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.approvals[a.ID]
	if !ok {
		return fmt.Errorf("approval %s: %w", a.ID, model.ErrNotFound)
	}
	if stored.Status != expect.Status || stored.CurrentLevel != expect.Level {
		return fmt.Errorf("approval %s is not %s at level %d: %w", a.ID, expect.Status, expect.Level, model.ErrConflict)
	}

	stored.Status = a.Status
	stored.CurrentLevel = a.CurrentLevel
	stored.DecisionReason = a.DecisionReason
	stored.DecidedBy = a.DecidedBy
	stored.DecidedAt = a.DecidedAt
	stored.ExpiresAt = a.ExpiresAt
	r.approvals[a.ID] = stored

	return nil
}

// RecordApprovalVote appends a vote and stores the approval if it still matches the expectation.
func (r *Repository) RecordApprovalVote(ctx context.Context, v model.ApprovalVote, a model.TaskApproval, expect storage.VoteExpectation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.approvals[a.ID]
	if !ok {
		return fmt.Errorf("approval %s: %w", a.ID, model.ErrNotFound)
	}

	levelVotes := 0
	for _, existing := range r.votes[a.ID] {
		if existing.Level != v.Level {
			continue
		}
		if existing.Approver == v.Approver {
			return fmt.Errorf("%s already voted on level %d: %w", v.Approver, v.Level, model.ErrAlreadyExists)
		}
		levelVotes++
	}
	if stored.Status != expect.Status || stored.CurrentLevel != expect.Level || levelVotes != expect.Votes {
		return fmt.Errorf("approval %s is not %s at level %d with %d votes: %w", a.ID, expect.Status, expect.Level, expect.Votes, model.ErrConflict)
	}

	if v.ID == "" {
		v.ID = ulid.Make().String()
	}
	v.ApprovalID = a.ID
	r.votes[a.ID] = append(r.votes[a.ID], v)

	stored.Status = a.Status
	stored.CurrentLevel = a.CurrentLevel
	stored.DecisionReason = a.DecisionReason
	stored.DecidedBy = a.DecidedBy
	stored.DecidedAt = a.DecidedAt
	stored.ExpiresAt = a.ExpiresAt
	r.approvals[a.ID] = stored

	return nil
}

// ListApprovalVotes lists the votes of an approval in vote order.
func (r *Repository) ListApprovalVotes(ctx context.Context, approvalID string) ([]model.ApprovalVote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	votes := append([]model.ApprovalVote{}, r.votes[approvalID]...)
	sort.SliceStable(votes, func(i, j int) bool { return votes[i].Level < votes[j].Level })
	return votes, nil
}

// CreateDecision stores a new decision, a task can only have one pending decision.
func (r *Repository) CreateDecision(ctx context.Context, d model.TaskDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.decisions[d.ID]; ok {
		return fmt.Errorf("decision %s: %w", d.ID, model.ErrAlreadyExists)
	}
	for _, existing := range r.decisions {
		if existing.Token == d.Token {
			return fmt.Errorf("decision token: %w", model.ErrAlreadyExists)
		}
		if d.Status == model.DecisionStatusPending && existing.TaskID == d.TaskID && existing.Status == model.DecisionStatusPending {
			return fmt.Errorf("pending decision for task %s: %w", d.TaskID, model.ErrAlreadyExists)
		}
	}

	d.Options = append([]model.DecisionOption{}, d.Options...)
	r.decisions[d.ID] = d
	r.decisionOrder = append(r.decisionOrder, d.ID)
	return nil
}

// GetDecision retrieves a decision by ID.
func (r *Repository) GetDecision(ctx context.Context, id string) (*model.TaskDecision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.decisions[id]
	if !ok {
		return nil, fmt.Errorf("decision %s: %w", id, model.ErrNotFound)
	}
	return &d, nil
}

// GetDecisionByToken retrieves a decision by its response token.
func (r *Repository) GetDecisionByToken(ctx context.Context, token string) (*model.TaskDecision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.decisions {
		if d.Token == token {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("decision: %w", model.ErrNotFound)
}

// GetStepDecision retrieves the latest decision of a task step.
func (r *Repository) GetStepDecision(ctx context.Context, taskID string, stepIndex int) (*model.TaskDecision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.decisionOrder) - 1; i >= 0; i-- {
		d := r.decisions[r.decisionOrder[i]]
		if d.TaskID == taskID && d.StepIndex == stepIndex {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("decision: %w", model.ErrNotFound)
}

// ListDecisions lists decisions in creation order.
func (r *Repository) ListDecisions(ctx context.Context, opts storage.DecisionListOpts) ([]model.TaskDecision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decisions := []model.TaskDecision{}
	for _, id := range r.decisionOrder {
		d := r.decisions[id]
		if opts.TaskID != "" && d.TaskID != opts.TaskID {
			continue
		}
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		if opts.ExpiredBefore != nil && !d.ExpiresAt.Before(*opts.ExpiredBefore) {
			continue
		}
		decisions = append(decisions, d)
	}

	return decisions, nil
}

// UpdateDecision stores the decision only if the stored status matches.
func (r *Repository) UpdateDecision(ctx context.Context, d model.TaskDecision, expectStatus model.DecisionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.decisions[d.ID]
	if !ok {
		return fmt.Errorf("decision %s: %w", d.ID, model.ErrNotFound)
	}
	if stored.Status != expectStatus {
		return fmt.Errorf("decision %s is not %s: %w", d.ID, expectStatus, model.ErrConflict)
	}

	stored.Status = d.Status
	stored.SelectedOption = d.SelectedOption
	stored.DecisionReason = d.DecisionReason
	stored.DecidedBy = d.DecidedBy
	stored.DecidedAt = d.DecidedAt
	r.decisions[d.ID] = stored

	return nil
}

func copyApproval(a model.TaskApproval) model.TaskApproval {
	levels := make([]model.ApprovalLevel, 0, len(a.Chain.Levels))
	for _, l := range a.Chain.Levels {
		l.Approvers = append([]string{}, l.Approvers...)
		levels = append(levels, l)
	}
	a.Chain.Levels = levels
	return a
}
