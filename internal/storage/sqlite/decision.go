package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

const decisionColumns = `
	id, task_id, plan_id, step_index, question, options, status, selected_option,
	decision_reason, decided_by, decided_at, timeout_seconds, expires_at, fallback,
	token, created_at
`

// CreateDecision stores a new pending decision.
func (r *Repository) CreateDecision(ctx context.Context, d model.TaskDecision) error {
	options, err := marshalJSON(d.Options)
	if err != nil {
		return err
	}

	query := `INSERT INTO task_decisions (` + decisionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		d.ID, d.TaskID, d.PlanID, d.StepIndex, d.Question, options, d.Status, d.SelectedOption,
		d.DecisionReason, d.DecidedBy, nullableUnix(d.DecidedAt), int64(d.Timeout/time.Second), d.ExpiresAt.Unix(), d.Fallback,
		d.Token, d.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("decision for task %s: %w", d.TaskID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert decision: %w", err)
	}

	r.logger.Debugf("Created decision %s for task %s step %d", d.ID, d.TaskID, d.StepIndex)
	return nil
}

// GetDecision retrieves a decision by ID.
func (r *Repository) GetDecision(ctx context.Context, id string) (*model.TaskDecision, error) {
	return r.getDecision(ctx, `SELECT `+decisionColumns+` FROM task_decisions WHERE id = ?`, id)
}

// GetDecisionByToken retrieves a decision by its response token.
func (r *Repository) GetDecisionByToken(ctx context.Context, token string) (*model.TaskDecision, error) {
	return r.getDecision(ctx, `SELECT `+decisionColumns+` FROM task_decisions WHERE token = ?`, token)
}

// GetStepDecision retrieves the latest decision of a task step.
func (r *Repository) GetStepDecision(ctx context.Context, taskID string, stepIndex int) (*model.TaskDecision, error) {
	query := `SELECT ` + decisionColumns + ` FROM task_decisions WHERE task_id = ? AND step_index = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	return r.getDecision(ctx, query, taskID, stepIndex)
}

// ListDecisions lists decisions, oldest first.
func (r *Repository) ListDecisions(ctx context.Context, opts storage.DecisionListOpts) ([]model.TaskDecision, error) {
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

	query := `SELECT ` + decisionColumns + ` FROM task_decisions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not list decisions: %w", err)
	}
	defer rows.Close()

	decisions := []model.TaskDecision{}
	for rows.Next() {
		d, err := r.scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate decisions: %w", err)
	}

	return decisions, nil
}

// UpdateDecision stores the decision only if the stored status matches.
func (r *Repository) UpdateDecision(ctx context.Context, d model.TaskDecision, expectStatus model.DecisionStatus) error {
	query := `
		UPDATE task_decisions SET
			status = ?, selected_option = ?, decision_reason = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		d.Status, d.SelectedOption, d.DecisionReason, d.DecidedBy, nullableUnix(d.DecidedAt),
		d.ID, expectStatus,
	)
	if err != nil {
		return fmt.Errorf("could not update decision: %w", err)
	}

	err = r.checkAffected(ctx, res, "task_decisions", d.ID,
		fmt.Errorf("decision %s: %w", d.ID, model.ErrNotFound),
		fmt.Errorf("decision %s is not %s: %w", d.ID, expectStatus, model.ErrConflict),
	)
	if err != nil {
		return err
	}

	r.logger.Debugf("Decision %s: %s -> %s", d.ID, expectStatus, d.Status)
	return nil
}

func (r *Repository) getDecision(ctx context.Context, query string, args ...any) (*model.TaskDecision, error) {
	d, err := r.scanDecision(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("decision: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get decision: %w", err)
	}
	return &d, nil
}

func (r *Repository) scanDecision(s scanner) (model.TaskDecision, error) {
	var d model.TaskDecision
	var options string
	var decidedAt sql.NullInt64
	var timeoutSeconds, expiresAt, createdAt int64

	err := s.Scan(
		&d.ID, &d.TaskID, &d.PlanID, &d.StepIndex, &d.Question, &options, &d.Status, &d.SelectedOption,
		&d.DecisionReason, &d.DecidedBy, &decidedAt, &timeoutSeconds, &expiresAt, &d.Fallback,
		&d.Token, &createdAt,
	)
	if err != nil {
		return model.TaskDecision{}, err
	}

	if err := unmarshalJSON(options, &d.Options); err != nil {
		return model.TaskDecision{}, err
	}
	d.DecidedAt = timePtrFromNull(decidedAt)
	d.Timeout = time.Duration(timeoutSeconds) * time.Second
	d.ExpiresAt = timeFromUnix(expiresAt)
	d.CreatedAt = timeFromUnix(createdAt)

	return d, nil
}
