package pause

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// Orchestrator pauses tasks.
type Orchestrator interface {
	Pause(ctx context.Context, taskID string) (*model.AutoTask, error)
}

// ServiceConfig is the configuration for the pause service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Pause"})

	return nil
}

// Service pauses a task.
type Service struct {
	orch   Orchestrator
	logger log.Logger
}

// NewService creates a new pause service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		orch:   cfg.Orchestrator,
		logger: cfg.Logger,
	}, nil
}

// Request represents the pause request parameters.
type Request struct {
	TaskID string
}

// Run pauses a task. Running tasks pause at the next step boundary.
func (s *Service) Run(ctx context.Context, req Request) (*model.AutoTask, error) {
	if req.TaskID == "" {
		return nil, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	task, err := s.orch.Pause(ctx, req.TaskID)
	if err != nil {
		return nil, fmt.Errorf("could not pause task: %w", err)
	}

	s.logger.Infof("pause requested for task %s (status: %s)", task.ID, task.Status)
	return task, nil
}
