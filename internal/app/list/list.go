package list

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository storage.TaskRepository
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

// Service lists tasks with optional filtering.
type Service struct {
	repo   storage.TaskRepository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	// StatusFilter is an optional filter to only show tasks with this status.
	StatusFilter *model.TaskStatus
	// SessionID is an optional filter to only show the tasks of a conversation.
	SessionID string
	// Active hides the tasks in a terminal status.
	Active bool
}

// Run lists the tasks, optionally filtered.
func (s *Service) Run(ctx context.Context, req Request) ([]model.AutoTask, error) {
	if req.StatusFilter != nil && !req.StatusFilter.Valid() {
		return nil, fmt.Errorf("invalid status %q: %w", *req.StatusFilter, model.ErrNotValid)
	}
	s.logger.Debugf("listing tasks with filter: %v", req.StatusFilter)

	tasks, err := s.repo.ListTasks(ctx, storage.TaskListOpts{Status: req.StatusFilter, SessionID: req.SessionID})
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	if req.Active {
		filtered := make([]model.AutoTask, 0, len(tasks))
		for _, t := range tasks {
			if !t.Status.Terminal() {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	s.logger.Debugf("found %d tasks", len(tasks))
	return tasks, nil
}
