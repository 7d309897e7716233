package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

const approvalColumns = `
	id, task_id, plan_id, step_index, action_type, action_description, risk_level,
	status, chain, current_level, decision_reason, decided_by, decided_at,
	expires_at, default_action, token, created_at
`

// CreateApproval stores a new pending approval.
func (r *Repository) CreateApproval(ctx context.Context, a model.TaskApproval) error {
	chain, err := marshalJSON(a.Chain)
	if err != nil {
		return err
	}

	query := `INSERT INTO task_approvals (` + approvalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		a.ID, a.TaskID, a.PlanID, a.StepIndex, a.Action, a.ActionDescription, a.Risk,
		a.Status, chain, a.CurrentLevel, a.DecisionReason, a.DecidedBy, nullableUnix(a.DecidedAt),
		a.ExpiresAt.Unix(), a.DefaultAction, a.Token, a.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("approval for task %s: %w", a.TaskID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert approval: %w", err)
	}

	r.logger.Debugf("Created approval %s for task %s step %d", a.ID, a.TaskID, a.StepIndex)
	return nil
}

// GetApproval retrieves an approval by ID.
func (r *Repository) GetApproval(ctx context.Context, id string) (*model.TaskApproval, error) {
	return r.getApproval(ctx, `SELECT `+approvalColumns+` FROM task_approvals WHERE id = ?`, id)
}

// GetApprovalByToken retrieves an approval by its response token.
func (r *Repository) GetApprovalByToken(ctx context.Context, token string) (*model.TaskApproval, error) {
	return r.getApproval(ctx, `SELECT `+approvalColumns+` FROM task_approvals WHERE token = ?`, token)
}

// GetStepApproval retrieves the latest approval of a task step.
func (r *Repository) GetStepApproval(ctx context.Context, taskID string, stepIndex int) (*model.TaskApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM task_approvals WHERE task_id = ? AND step_index = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	return r.getApproval(ctx, query, taskID, stepIndex)
}

// ListApprovals lists approvals, oldest first.
func (r *Repository) ListApprovals(ctx context.Context, opts storage.ApprovalListOpts) ([]model.TaskApproval, error) {
	var where []string
	var args []any
	if opts.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, opts.TaskID)
	}
	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *opts.Status)
	}
	if opts.ExpiredBefore != nil {
		where = append(where, "expires_at < ?")
		args = append(args, opts.ExpiredBefore.Unix())
	}

	query := `SELECT ` + approvalColumns + ` FROM task_approvals`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not list approvals: %w", err)
	}
	defer rows.Close()

	approvals := []model.TaskApproval{}
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate approvals: %w", err)
	}

	return approvals, nil
}

// UpdateApproval stores the approval only if its stored status and level match.
func (r *Repository) UpdateApproval(ctx context.Context, a model.TaskApproval, expect storage.ApprovalExpectation) error {
	query := `
		UPDATE task_approvals SET
			status = ?, current_level = ?, decision_reason = ?, decided_by = ?, decided_at = ?, expires_at = ?
		WHERE id = ? AND status = ? AND current_level = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		a.Status, a.CurrentLevel, a.DecisionReason, a.DecidedBy, nullableUnix(a.DecidedAt), a.ExpiresAt.Unix(),
		a.ID, expect.Status, expect.Level,
	)
	if err != nil {
		return fmt.Errorf("could not update approval: %w", err)
	}

	err = r.checkAffected(ctx, res, "task_approvals", a.ID,
		fmt.Errorf("approval %s: %w", a.ID, model.ErrNotFound),
		fmt.Errorf("approval %s is not %s at level %d: %w", a.ID, expect.Status, expect.Level, model.ErrConflict),
	)
	if err != nil {
		return err
	}

	r.logger.Debugf("Approval %s: %s -> %s (level %d)", a.ID, expect.Status, a.Status, a.CurrentLevel)
	return nil
}

// RecordApprovalVote appends a vote and stores the approval if it still matches the expectation.
func (r *Repository) RecordApprovalVote(ctx context.Context, v model.ApprovalVote, a model.TaskApproval, expect storage.VoteExpectation) error {
	if v.ID == "" {
		v.ID = ulid.Make().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // Rollback is safe to call after Commit.

	var voted int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM approval_votes WHERE approval_id = ? AND level = ? AND approver = ?`, a.ID, v.Level, v.Approver).Scan(&voted)
	if err != nil {
		return fmt.Errorf("could not check votes: %w", err)
	}
	if voted > 0 {
		return fmt.Errorf("%s already voted on level %d: %w", v.Approver, v.Level, model.ErrAlreadyExists)
	}

	query := `
		UPDATE task_approvals SET
			status = ?, current_level = ?, decision_reason = ?, decided_by = ?, decided_at = ?, expires_at = ?
		WHERE id = ? AND status = ? AND current_level = ?
			AND (SELECT COUNT(*) FROM approval_votes WHERE approval_id = ? AND level = ?) = ?
	`
	res, err := tx.ExecContext(ctx, query,
		a.Status, a.CurrentLevel, a.DecisionReason, a.DecidedBy, nullableUnix(a.DecidedAt), a.ExpiresAt.Unix(),
		a.ID, expect.Status, expect.Level,
		a.ID, expect.Level, expect.Votes,
	)
	if err != nil {
		return fmt.Errorf("could not update approval: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_approvals WHERE id = ?`, a.ID).Scan(&exists); err != nil {
			return fmt.Errorf("could not check approval existence: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("approval %s: %w", a.ID, model.ErrNotFound)
		}
		return fmt.Errorf("approval %s is not %s at level %d with %d votes: %w", a.ID, expect.Status, expect.Level, expect.Votes, model.ErrConflict)
	}

	insert := `
		INSERT INTO approval_votes (id, approval_id, level, approver, verdict, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, insert, v.ID, a.ID, v.Level, v.Approver, v.Verdict, v.Reason, v.CreatedAt.Unix())
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("%s already voted on level %d: %w", v.Approver, v.Level, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert vote: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit vote: %w", err)
	}

	r.logger.Debugf("Approval %s: vote of %s, %s -> %s (level %d)", a.ID, v.Approver, expect.Status, a.Status, a.CurrentLevel)
	return nil
}

// ListApprovalVotes lists the votes of an approval in vote order.
func (r *Repository) ListApprovalVotes(ctx context.Context, approvalID string) ([]model.ApprovalVote, error) {
	query := `
		SELECT id, approval_id, level, approver, verdict, reason, created_at
		FROM approval_votes
		WHERE approval_id = ?
		ORDER BY level ASC, created_at ASC, rowid ASC
	`
	rows, err := r.db.QueryContext(ctx, query, approvalID)
	if err != nil {
		return nil, fmt.Errorf("could not list votes: %w", err)
	}
	defer rows.Close()

	votes := []model.ApprovalVote{}
	for rows.Next() {
		var v model.ApprovalVote
		var createdAt int64
		if err := rows.Scan(&v.ID, &v.ApprovalID, &v.Level, &v.Approver, &v.Verdict, &v.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("could not scan vote: %w", err)
		}
		v.CreatedAt = timeFromUnix(createdAt)
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate votes: %w", err)
	}

	return votes, nil
}

func (r *Repository) getApproval(ctx context.Context, query string, args ...any) (*model.TaskApproval, error) {
	a, err := r.scanApproval(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("approval: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get approval: %w", err)
	}
	return &a, nil
}

func (r *Repository) scanApproval(s scanner) (model.TaskApproval, error) {
	var a model.TaskApproval
	var chain string
	var decidedAt sql.NullInt64
	var expiresAt, createdAt int64

	err := s.Scan(
		&a.ID, &a.TaskID, &a.PlanID, &a.StepIndex, &a.Action, &a.ActionDescription, &a.Risk,
		&a.Status, &chain, &a.CurrentLevel, &a.DecisionReason, &a.DecidedBy, &decidedAt,
		&expiresAt, &a.DefaultAction, &a.Token, &createdAt,
	)
	if err != nil {
		return model.TaskApproval{}, err
	}

	if err := unmarshalJSON(chain, &a.Chain); err != nil {
		return model.TaskApproval{}, err
	}
	a.DecidedAt = timePtrFromNull(decidedAt)
	a.ExpiresAt = timeFromUnix(expiresAt)
	a.CreatedAt = timeFromUnix(createdAt)

	return a, nil
}
