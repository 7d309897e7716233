package decide

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/gate"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// Gateway answers decisions.
type Gateway interface {
	SubmitDecision(ctx context.Context, ans gate.Answer) (*model.TaskDecision, error)
}

// Resumer continues the task of a resolved gate.
type Resumer interface {
	HandleResume(ctx context.Context, ev model.ResumeEvent) (*model.AutoTask, error)
}

// ServiceConfig is the configuration for the decide service.
type ServiceConfig struct {
	Gateway Gateway
	// Resumer is optional, without it the resolution is left to the resume event consumers.
	Resumer Resumer
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Gateway == nil {
		return fmt.Errorf("gateway is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Decide"})

	return nil
}

// Service answers open questions.
type Service struct {
	gateway Gateway
	resumer Resumer
	logger  log.Logger
}

// NewService creates a new decide service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		gateway: cfg.Gateway,
		resumer: cfg.Resumer,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the decide request parameters. The decision is referenced
// by ID or by its response token.
type Request struct {
	DecisionID string
	Token      string
	Option     string
	By         string
	Reason     string
}

// Result is the answered decision and the task after continuing, if it was resumed here.
type Result struct {
	Decision model.TaskDecision
	Task     *model.AutoTask
}

// Run answers the decision and continues its task.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if req.DecisionID == "" && req.Token == "" {
		return nil, fmt.Errorf("decision id or token is required: %w", model.ErrNotValid)
	}

	d, err := s.gateway.SubmitDecision(ctx, gate.Answer{
		DecisionID: req.DecisionID,
		Token:      req.Token,
		Option:     req.Option,
		By:         req.By,
		Reason:     req.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("could not answer decision: %w", err)
	}
	res := &Result{Decision: *d}
	s.logger.Infof("decision %s answered with %q", d.ID, d.SelectedOption)

	if s.resumer == nil {
		return res, nil
	}
	res.Task, err = s.resumer.HandleResume(ctx, model.ResumeEvent{TaskID: d.TaskID, GateID: d.ID, Kind: model.GateKindDecision})
	if err != nil {
		return nil, fmt.Errorf("could not resume task: %w", err)
	}

	return res, nil
}
