package approve

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/gate"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// Gateway records approval votes.
type Gateway interface {
	SubmitApproval(ctx context.Context, v gate.Vote) (*model.TaskApproval, error)
}

// Resumer continues the task of a resolved gate.
type Resumer interface {
	HandleResume(ctx context.Context, ev model.ResumeEvent) (*model.AutoTask, error)
}

// ServiceConfig is the configuration for the approve service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Approve"})

	return nil
}

// Service votes on approval gates.
type Service struct {
	gateway Gateway
	resumer Resumer
	logger  log.Logger
}

// NewService creates a new approve service.
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

// Request represents the approve request parameters. The approval is referenced
// by ID or by its response token.
type Request struct {
	ApprovalID string
	Token      string
	Approver   string
	Verdict    model.Verdict
	Reason     string
}

// Result is the approval after the vote and, when it resolved and was resumed here,
// the task after continuing.
type Result struct {
	Approval model.TaskApproval
	Task     *model.AutoTask
}

// Run submits the vote and continues the task when the approval resolves.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if req.ApprovalID == "" && req.Token == "" {
		return nil, fmt.Errorf("approval id or token is required: %w", model.ErrNotValid)
	}

	a, err := s.gateway.SubmitApproval(ctx, gate.Vote{
		ApprovalID: req.ApprovalID,
		Token:      req.Token,
		Approver:   req.Approver,
		Verdict:    req.Verdict,
		Reason:     req.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("could not submit approval: %w", err)
	}
	res := &Result{Approval: *a}

	if !a.Resolved() {
		s.logger.Infof("vote recorded on approval %s, waiting on level %d", a.ID, a.CurrentLevel)
		return res, nil
	}
	s.logger.Infof("approval %s resolved as %s", a.ID, a.Status)

	if s.resumer == nil {
		return res, nil
	}
	res.Task, err = s.resumer.HandleResume(ctx, model.ResumeEvent{TaskID: a.TaskID, GateID: a.ID, Kind: model.GateKindApproval})
	if err != nil {
		return nil, fmt.Errorf("could not resume task: %w", err)
	}

	return res, nil
}
