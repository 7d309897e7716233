package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// ServiceConfig is the configuration for the status service.
type ServiceConfig struct {
	Repository storage.Repository
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

// Service retrieves detailed task status.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the status request parameters.
type Request struct {
	TaskID string
}

// Result is the task with everything it's waiting on.
type Result struct {
	// Task includes its step results.
	Task model.AutoTask
	// Plan is nil until a plan is attached.
	Plan            *model.ExecutionPlan
	PendingApproval *model.TaskApproval
	PendingDecision *model.TaskDecision
}

// Run retrieves the status of a task.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if req.TaskID == "" {
		return nil, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}
	s.logger.Debugf("getting status for task: %s", req.TaskID)

	task, err := s.repo.GetTask(ctx, req.TaskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("task not found: %s: %w", req.TaskID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get task status: %w", err)
	}
	res := &Result{Task: *task}

	if task.PlanID != "" {
		res.Plan, err = s.repo.GetPlan(ctx, task.PlanID)
		if err != nil {
			return nil, fmt.Errorf("could not get plan: %w", err)
		}
	}

	// Only suspended tasks have pending gates.
	if task.Status != model.TaskStatusWaitingApproval {
		return res, nil
	}

	pendingApproval := model.ApprovalStatusPending
	approvals, err := s.repo.ListApprovals(ctx, storage.ApprovalListOpts{TaskID: task.ID, Status: &pendingApproval})
	if err != nil {
		return nil, fmt.Errorf("could not list approvals: %w", err)
	}
	if len(approvals) > 0 {
		res.PendingApproval = &approvals[0]
	}

	pendingDecision := model.DecisionStatusPending
	decisions, err := s.repo.ListDecisions(ctx, storage.DecisionListOpts{TaskID: task.ID, Status: &pendingDecision})
	if err != nil {
		return nil, fmt.Errorf("could not list decisions: %w", err)
	}
	if len(decisions) > 0 {
		res.PendingDecision = &decisions[0]
	}

	return res, nil
}
