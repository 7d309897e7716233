package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/slok/autotask/internal/model"
)

// stepRow is the stored shape of an embedded plan step.
type stepRow struct {
	Index       int                 `json:"index"`
	Name        string              `json:"name,omitempty"`
	Action      model.ActionType    `json:"action"`
	Params      map[string]string   `json:"params,omitempty"`
	Risk        model.RiskLevel     `json:"risk"`
	Retryable   bool                `json:"retryable,omitempty"`
	MaxAttempts int                 `json:"max_attempts,omitempty"`
	Decision    *model.DecisionSpec `json:"decision,omitempty"`
}

// CreatePlan stores a compiled plan.
func (r *Repository) CreatePlan(ctx context.Context, p model.ExecutionPlan) error {
	if p.TaskID == "" {
		return fmt.Errorf("plan task id is required: %w", model.ErrNotValid)
	}

	steps := make([]stepRow, 0, len(p.Steps))
	for _, s := range p.Steps {
		steps = append(steps, stepRow(s))
	}
	stepsJSON, err := marshalJSON(steps)
	if err != nil {
		return err
	}
	contextJSON, err := marshalJSON(p.Context)
	if err != nil {
		return err
	}
	simJSON, err := nullableJSON(p.Simulation, p.Simulation == nil)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO execution_plans (
			id, task_id, classification_id, intent, intent_type, confidence, status,
			steps, context, program, simulation_result, risk_level, approved_by,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.TaskID, p.ClassificationID, p.Intent, p.IntentType, p.Confidence, p.Status,
		stepsJSON, contextJSON, p.Program, simJSON, p.Risk, p.ApprovedBy,
		p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("plan for task %s: %w", p.TaskID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert plan: %w", err)
	}

	r.logger.Debugf("Created plan %s for task %s", p.ID, p.TaskID)
	return nil
}

// GetPlan retrieves a plan by ID.
func (r *Repository) GetPlan(ctx context.Context, id string) (*model.ExecutionPlan, error) {
	query := `
		SELECT
			id, task_id, classification_id, intent, intent_type, confidence, status,
			steps, context, program, simulation_result, risk_level, approved_by,
			created_at, updated_at
		FROM execution_plans
		WHERE id = ?
	`

	var p model.ExecutionPlan
	var stepsJSON, contextJSON string
	var simJSON sql.NullString
	var createdAt, updatedAt int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.TaskID, &p.ClassificationID, &p.Intent, &p.IntentType, &p.Confidence, &p.Status,
		&stepsJSON, &contextJSON, &p.Program, &simJSON, &p.Risk, &p.ApprovedBy,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("plan %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get plan: %w", err)
	}

	var steps []stepRow
	if err := unmarshalJSON(stepsJSON, &steps); err != nil {
		return nil, err
	}
	for _, s := range steps {
		p.Steps = append(p.Steps, model.Step(s))
	}
	if err := unmarshalJSON(contextJSON, &p.Context); err != nil {
		return nil, err
	}
	if simJSON.Valid {
		p.Simulation = &model.SimulationResult{}
		if err := unmarshalJSON(simJSON.String, p.Simulation); err != nil {
			return nil, err
		}
	}
	p.CreatedAt = timeFromUnix(createdAt)
	p.UpdatedAt = timeFromUnix(updatedAt)

	return &p, nil
}

// UpdatePlanStatus changes the plan status if the stored status is from.
func (r *Repository) UpdatePlanStatus(ctx context.Context, id string, from, to model.PlanStatus) error {
	query := `UPDATE execution_plans SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC().Unix(), id, from)
	if err != nil {
		return fmt.Errorf("could not update plan: %w", err)
	}

	err = r.checkAffected(ctx, res, "execution_plans", id,
		fmt.Errorf("plan %s: %w", id, model.ErrNotFound),
		fmt.Errorf("plan %s is not %s: %w", id, from, model.ErrConflict),
	)
	if err != nil {
		return err
	}

	r.logger.Debugf("Plan %s: %s -> %s", id, from, to)
	return nil
}
