package cancel

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// Orchestrator cancels tasks.
type Orchestrator interface {
	Cancel(ctx context.Context, taskID string) (*model.AutoTask, error)
}

// ServiceConfig is the configuration for the cancel service.
type ServiceConfig struct {
	Orchestrator Orchestrator
	Logger       log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Orchestrator == nil {
		return fmt.Errorf("orchestrator is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Cancel"})

	return nil
}

// Service cancels a task.
type Service struct {
	orch   Orchestrator
	logger log.Logger
}

// NewService creates a new cancel service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		orch:   cfg.Orchestrator,
		logger: cfg.Logger,
	}, nil
}

// Request represents the cancel request parameters.
type Request struct {
	TaskID string
}

// Run cancels a task. Suspended tasks are cancelled right away and their pending
// gates closed, running tasks stop at the next step boundary.
func (s *Service) Run(ctx context.Context, req Request) (*model.AutoTask, error) {
	if req.TaskID == "" {
		return nil, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	task, err := s.orch.Cancel(ctx, req.TaskID)
	if err != nil {
		return nil, fmt.Errorf("could not cancel task: %w", err)
	}

	if task.Status == model.TaskStatusCancelled {
		s.logger.Infof("cancelled task: %s", task.ID)
	} else {
		s.logger.Infof("task %s will be cancelled at the next step boundary", task.ID)
	}
	return task, nil
}
