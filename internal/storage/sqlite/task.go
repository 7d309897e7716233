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

const taskColumns = `
	id, session_id, title, intent, status, execution_mode, priority,
	plan_id, current_step, total_steps, progress, error_message, interrupt,
	require_plan_approval, created_at, updated_at, started_at, completed_at
`

// CreateTask creates a new task.
func (r *Repository) CreateTask(ctx context.Context, t model.AutoTask) error {
	if err := t.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO auto_tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.SessionID, t.Title, t.Intent, t.Status, t.Mode, t.Priority,
		t.PlanID, t.CurrentStep, t.TotalSteps, t.Progress, t.Error, t.Interrupt,
		boolToInt(t.RequirePlanApproval), t.CreatedAt.Unix(), t.UpdatedAt.Unix(),
		nullableUnix(t.StartedAt), nullableUnix(t.CompletedAt),
	)
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("task %s: %w", t.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task with its step results.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.AutoTask, error) {
	query := `SELECT ` + taskColumns + ` FROM auto_tasks WHERE id = ?`
	t, err := r.scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	results, err := r.listStepResults(ctx, id)
	if err != nil {
		return nil, err
	}
	t.StepResults = results

	return &t, nil
}

// ListTasks lists tasks, newest first.
func (r *Repository) ListTasks(ctx context.Context, opts storage.TaskListOpts) ([]model.AutoTask, error) {
	var where []string
	var args []any
	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *opts.Status)
	}
	if opts.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, opts.SessionID)
	}

	query := `SELECT ` + taskColumns + ` FROM auto_tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.AutoTask{}
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask conditionally updates the task and appends the step results atomically.
func (r *Repository) UpdateTask(ctx context.Context, t model.AutoTask, expect storage.TaskExpectation, results ...model.StepResult) error {
	if err := t.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // Rollback is safe to call after Commit.

	query := `
		UPDATE auto_tasks SET
			title = ?, status = ?, execution_mode = ?, priority = ?, plan_id = ?,
			current_step = ?, total_steps = ?, progress = ?, error_message = ?, interrupt = ?,
			require_plan_approval = ?, updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ? AND status = ? AND current_step = ? AND interrupt = ?
	`
	res, err := tx.ExecContext(ctx, query,
		t.Title, t.Status, t.Mode, t.Priority, t.PlanID,
		t.CurrentStep, t.TotalSteps, t.Progress, t.Error, t.Interrupt,
		boolToInt(t.RequirePlanApproval), t.UpdatedAt.Unix(), nullableUnix(t.StartedAt), nullableUnix(t.CompletedAt),
		t.ID, expect.Status, expect.CurrentStep, expect.Interrupt,
	)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM auto_tasks WHERE id = ?`, t.ID).Scan(&exists); err != nil {
			return fmt.Errorf("could not check task existence: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
		}
		return fmt.Errorf("task %s is not %s at step %d: %w", t.ID, expect.Status, expect.CurrentStep, model.ErrConflict)
	}

	if len(results) > 0 {
		insertQuery := `
			INSERT INTO step_results (id, task_id, step_index, action_type, status, output, error, attempts, audit_id, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		stmt, err := tx.PrepareContext(ctx, insertQuery)
		if err != nil {
			return fmt.Errorf("could not prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, sr := range results {
			if sr.ID == "" {
				sr.ID = ulid.Make().String()
			}
			output, err := marshalJSON(sr.Output)
			if err != nil {
				return err
			}
			_, err = stmt.ExecContext(ctx,
				sr.ID, t.ID, sr.StepIndex, sr.Action, sr.Status, output, sr.Error, sr.Attempts, sr.AuditID,
				sr.StartedAt.Unix(), sr.FinishedAt.Unix(),
			)
			if err != nil {
				if isUniqueErr(err) {
					return fmt.Errorf("step %d result already recorded: %w", sr.StepIndex, model.ErrConflict)
				}
				return fmt.Errorf("could not insert step result: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Updated task %s: %s -> %s (step %d/%d, %d new results)", t.ID, expect.Status, t.Status, t.CurrentStep, t.TotalSteps, len(results))
	return nil
}

func (r *Repository) listStepResults(ctx context.Context, taskID string) ([]model.StepResult, error) {
	query := `
		SELECT id, task_id, step_index, action_type, status, output, error, attempts, audit_id, started_at, finished_at
		FROM step_results
		WHERE task_id = ?
		ORDER BY step_index ASC
	`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not list step results: %w", err)
	}
	defer rows.Close()

	results := []model.StepResult{}
	for rows.Next() {
		var sr model.StepResult
		var output string
		var startedAt, finishedAt int64
		err := rows.Scan(&sr.ID, &sr.TaskID, &sr.StepIndex, &sr.Action, &sr.Status, &output, &sr.Error, &sr.Attempts, &sr.AuditID, &startedAt, &finishedAt)
		if err != nil {
			return nil, fmt.Errorf("could not scan step result: %w", err)
		}
		if err := unmarshalJSON(output, &sr.Output); err != nil {
			return nil, err
		}
		sr.StartedAt = timeFromUnix(startedAt)
		sr.FinishedAt = timeFromUnix(finishedAt)
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate step results: %w", err)
	}

	return results, nil
}

func (r *Repository) scanTask(s scanner) (model.AutoTask, error) {
	var t model.AutoTask
	var requirePlanApproval int
	var createdAt, updatedAt int64
	var startedAt, completedAt sql.NullInt64

	err := s.Scan(
		&t.ID, &t.SessionID, &t.Title, &t.Intent, &t.Status, &t.Mode, &t.Priority,
		&t.PlanID, &t.CurrentStep, &t.TotalSteps, &t.Progress, &t.Error, &t.Interrupt,
		&requirePlanApproval, &createdAt, &updatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return model.AutoTask{}, err
	}

	t.RequirePlanApproval = requirePlanApproval == 1
	t.CreatedAt = timeFromUnix(createdAt)
	t.UpdatedAt = timeFromUnix(updatedAt)
	t.StartedAt = timePtrFromNull(startedAt)
	t.CompletedAt = timePtrFromNull(completedAt)
	t.StepResults = []model.StepResult{}

	return t, nil
}
