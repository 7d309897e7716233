package pending

import (
	"context"
	"fmt"
	"sort"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// Repository is the storage the pending service needs.
type Repository interface {
	storage.ApprovalRepository
	storage.DecisionRepository
}

// ServiceConfig is the configuration for the pending service.
type ServiceConfig struct {
	Repository Repository
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

// Service lists the gates waiting on a human.
type Service struct {
	repo   Repository
	logger log.Logger
}

// NewService creates a new pending service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the pending request parameters.
type Request struct {
	// TaskID is an optional filter to only show the gates of a task.
	TaskID string
}

// Result are the pending gates, the ones expiring first go first.
type Result struct {
	Approvals []model.TaskApproval
	Decisions []model.TaskDecision
}

// Run lists the pending approvals and decisions.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	pendingApproval := model.ApprovalStatusPending
	approvals, err := s.repo.ListApprovals(ctx, storage.ApprovalListOpts{TaskID: req.TaskID, Status: &pendingApproval})
	if err != nil {
		return nil, fmt.Errorf("could not list approvals: %w", err)
	}

	pendingDecision := model.DecisionStatusPending
	decisions, err := s.repo.ListDecisions(ctx, storage.DecisionListOpts{TaskID: req.TaskID, Status: &pendingDecision})
	if err != nil {
		return nil, fmt.Errorf("could not list decisions: %w", err)
	}

	sort.SliceStable(approvals, func(i, j int) bool { return approvals[i].ExpiresAt.Before(approvals[j].ExpiresAt) })
	sort.SliceStable(decisions, func(i, j int) bool { return decisions[i].ExpiresAt.Before(decisions[j].ExpiresAt) })

	s.logger.Debugf("found %d pending approvals and %d pending decisions", len(approvals), len(decisions))
	return &Result{Approvals: approvals, Decisions: decisions}, nil
}
