package resume

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// Orchestrator resumes and drives tasks.
type Orchestrator interface {
	Resume(ctx context.Context, taskID string) (*model.AutoTask, error)
	Run(ctx context.Context, taskID string) (*model.AutoTask, error)
}

// ServiceConfig is the configuration for the resume service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Resume"})

	return nil
}

// Service resumes a paused task.
type Service struct {
	orch   Orchestrator
	logger log.Logger
}

// NewService creates a new resume service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		orch:   cfg.Orchestrator,
		logger: cfg.Logger,
	}, nil
}

// Request represents the resume request parameters.
type Request struct {
	TaskID string
	// Detach leaves the execution to a serving process instead of running the task here.
	Detach bool
}

// Run resumes a paused task and runs it until it suspends again or finishes.
func (s *Service) Run(ctx context.Context, req Request) (*model.AutoTask, error) {
	if req.TaskID == "" {
		return nil, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	task, err := s.orch.Resume(ctx, req.TaskID)
	if err != nil {
		return nil, fmt.Errorf("could not resume task: %w", err)
	}
	s.logger.Infof("resumed task: %s", task.ID)

	if req.Detach || task.Status != model.TaskStatusRunning {
		return task, nil
	}

	task, err = s.orch.Run(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("could not run task: %w", err)
	}

	return task, nil
}
