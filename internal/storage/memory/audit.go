package memory

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// AppendAuditEntry appends a safety audit entry.
func (r *Repository) AppendAuditEntry(ctx context.Context, e model.SafetyAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.audit {
		if existing.ID == e.ID {
			return fmt.Errorf("audit entry %s: %w", e.ID, model.ErrAlreadyExists)
		}
	}
	r.audit = append(r.audit, e)

	return nil
}

// ListAuditEntries lists audit entries in insertion order.
func (r *Repository) ListAuditEntries(ctx context.Context, opts storage.AuditListOpts) ([]model.SafetyAuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := []model.SafetyAuditEntry{}
	for _, e := range r.audit {
		if opts.TaskID != "" && e.TaskID != opts.TaskID {
			continue
		}
		if opts.PlanID != "" && e.PlanID != opts.PlanID {
			continue
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// CreateClassification appends an intent classification.
func (r *Repository) CreateClassification(ctx context.Context, c model.IntentClassification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.classifications[c.ID]; ok {
		return fmt.Errorf("classification %s: %w", c.ID, model.ErrAlreadyExists)
	}
	r.classifications[c.ID] = c

	return nil
}

// GetClassification retrieves a classification by ID.
func (r *Repository) GetClassification(ctx context.Context, id string) (*model.IntentClassification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.classifications[id]
	if !ok {
		return nil, fmt.Errorf("classification %s: %w", id, model.ErrNotFound)
	}
	return &c, nil
}

// SetClassificationFeedback sets the calibration feedback once.
func (r *Repository) SetClassificationFeedback(ctx context.Context, id string, wasCorrect bool, corrected *model.IntentType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.classifications[id]
	if !ok {
		return fmt.Errorf("classification %s: %w", id, model.ErrNotFound)
	}
	if c.WasCorrect != nil {
		return fmt.Errorf("classification %s already has feedback: %w", id, model.ErrConflict)
	}

	c.WasCorrect = &wasCorrect
	if corrected != nil {
		ct := *corrected
		c.CorrectedType = &ct
	}
	r.classifications[id] = c

	return nil
}
