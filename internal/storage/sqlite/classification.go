package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slok/autotask/internal/model"
)

// CreateClassification appends an intent classification.
func (r *Repository) CreateClassification(ctx context.Context, c model.IntentClassification) error {
	entities, err := marshalJSON(c.Entities)
	if err != nil {
		return err
	}
	alternatives, err := marshalJSON(c.Alternatives)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO intent_classifications (
			id, session_id, original_text, intent_type, confidence, entities, suggested_name,
			alternatives, requires_clarification, clarification_question, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.SessionID, c.OriginalText, c.IntentType, c.Confidence, entities, c.SuggestedName,
		alternatives, boolToInt(c.RequiresClarification), c.ClarificationQuestion, c.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("classification %s: %w", c.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert classification: %w", err)
	}

	return nil
}

// GetClassification retrieves a classification by ID.
func (r *Repository) GetClassification(ctx context.Context, id string) (*model.IntentClassification, error) {
	query := `
		SELECT
			id, session_id, original_text, intent_type, confidence, entities, suggested_name,
			alternatives, requires_clarification, clarification_question, was_correct, corrected_type, created_at
		FROM intent_classifications
		WHERE id = ?
	`

	var c model.IntentClassification
	var entities, alternatives string
	var requiresClarification int
	var wasCorrect sql.NullInt64
	var correctedType sql.NullString
	var createdAt int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.SessionID, &c.OriginalText, &c.IntentType, &c.Confidence, &entities, &c.SuggestedName,
		&alternatives, &requiresClarification, &c.ClarificationQuestion, &wasCorrect, &correctedType, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("classification %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get classification: %w", err)
	}

	if err := unmarshalJSON(entities, &c.Entities); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(alternatives, &c.Alternatives); err != nil {
		return nil, err
	}
	c.RequiresClarification = requiresClarification == 1
	if wasCorrect.Valid {
		b := wasCorrect.Int64 == 1
		c.WasCorrect = &b
	}
	if correctedType.Valid {
		it := model.IntentType(correctedType.String)
		c.CorrectedType = &it
	}
	c.CreatedAt = timeFromUnix(createdAt)

	return &c, nil
}

// SetClassificationFeedback sets the calibration feedback once.
func (r *Repository) SetClassificationFeedback(ctx context.Context, id string, wasCorrect bool, corrected *model.IntentType) error {
	var correctedType *string
	if corrected != nil {
		s := string(*corrected)
		correctedType = &s
	}

	query := `UPDATE intent_classifications SET was_correct = ?, corrected_type = ? WHERE id = ? AND was_correct IS NULL`
	res, err := r.db.ExecContext(ctx, query, boolToInt(wasCorrect), correctedType, id)
	if err != nil {
		return fmt.Errorf("could not update classification: %w", err)
	}

	return r.checkAffected(ctx, res, "intent_classifications", id,
		fmt.Errorf("classification %s: %w", id, model.ErrNotFound),
		fmt.Errorf("classification %s already has feedback: %w", id, model.ErrConflict),
	)
}
