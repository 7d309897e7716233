package audit

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// ServiceConfig is the configuration for the audit service.
type ServiceConfig struct {
	Repository storage.AuditRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service reads the safety audit trail.
type Service struct {
	repo   storage.AuditRepository
	logger log.Logger
}

// NewService creates a new audit service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the audit request parameters.
type Request struct {
	TaskID string
	PlanID string
	// Outcome is an optional filter on the evaluation outcome.
	Outcome model.SafetyOutcome
}

// Run returns the audit entries of a task or plan in evaluation order.
func (s *Service) Run(ctx context.Context, req Request) ([]model.SafetyAuditEntry, error) {
	if req.TaskID == "" && req.PlanID == "" {
		return nil, fmt.Errorf("task id or plan id is required: %w", model.ErrNotValid)
	}

	entries, err := s.repo.ListAuditEntries(ctx, storage.AuditListOpts{TaskID: req.TaskID, PlanID: req.PlanID})
	if err != nil {
		return nil, fmt.Errorf("could not list audit entries: %w", err)
	}

	if req.Outcome != "" {
		filtered := make([]model.SafetyAuditEntry, 0, len(entries))
		for _, e := range entries {
			if e.Outcome == req.Outcome {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	s.logger.Debugf("found %d audit entries", len(entries))
	return entries, nil
}
