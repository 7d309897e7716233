package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// AppendAuditEntry appends a safety audit entry. There is no update or delete.
func (r *Repository) AppendAuditEntry(ctx context.Context, e model.SafetyAuditEntry) error {
	details, err := marshalJSON(e.ActionDetails)
	if err != nil {
		return err
	}
	checks, err := marshalJSON(e.ConstraintChecks)
	if err != nil {
		return err
	}
	sim, err := nullableJSON(e.Simulation, e.Simulation == nil)
	if err != nil {
		return err
	}
	risk, err := marshalJSON(e.Risk)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO safety_audit_log (
			id, task_id, plan_id, step_index, action_type, action_details, constraint_checks,
			simulation_result, risk_assessment, outcome, dry_run, error_message, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.TaskID, e.PlanID, e.StepIndex, e.Action, details, checks,
		sim, risk, e.Outcome, boolToInt(e.DryRun), e.Error, e.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("audit entry %s: %w", e.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert audit entry: %w", err)
	}

	return nil
}

// ListAuditEntries lists audit entries in insertion order.
func (r *Repository) ListAuditEntries(ctx context.Context, opts storage.AuditListOpts) ([]model.SafetyAuditEntry, error) {
	var where []string
	var args []any
	if opts.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, opts.TaskID)
	}
	if opts.PlanID != "" {
		where = append(where, "plan_id = ?")
		args = append(args, opts.PlanID)
	}

	query := `
		SELECT
			id, task_id, plan_id, step_index, action_type, action_details, constraint_checks,
			simulation_result, risk_assessment, outcome, dry_run, error_message, created_at
		FROM safety_audit_log
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []model.SafetyAuditEntry{}
	for rows.Next() {
		var e model.SafetyAuditEntry
		var details, checks, risk string
		var sim sql.NullString
		var dryRun int
		var createdAt int64
		err := rows.Scan(
			&e.ID, &e.TaskID, &e.PlanID, &e.StepIndex, &e.Action, &details, &checks,
			&sim, &risk, &e.Outcome, &dryRun, &e.Error, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("could not scan audit entry: %w", err)
		}
		if err := unmarshalJSON(details, &e.ActionDetails); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(checks, &e.ConstraintChecks); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(risk, &e.Risk); err != nil {
			return nil, err
		}
		if sim.Valid {
			e.Simulation = &model.SimulationResult{}
			if err := unmarshalJSON(sim.String, e.Simulation); err != nil {
				return nil, err
			}
		}
		e.DryRun = dryRun == 1
		e.CreatedAt = timeFromUnix(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate audit entries: %w", err)
	}

	return entries, nil
}
