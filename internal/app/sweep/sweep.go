package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/autotask/internal/gate"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/orchestrator"
)

// Gateway resolves expired gates.
type Gateway interface {
	Sweep(ctx context.Context, now time.Time) (*gate.SweepResult, error)
}

// Reconciler recovers tasks left behind.
type Reconciler interface {
	Reconcile(ctx context.Context) (*orchestrator.ReconcileResult, error)
}

// ServiceConfig is the configuration for the sweep service.
type ServiceConfig struct {
	Gateway    Gateway
	Reconciler Reconciler
	Logger     log.Logger
	TimeNow    func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Gateway == nil {
		return fmt.Errorf("gateway is required")
	}
	if c.Reconciler == nil {
		return fmt.Errorf("reconciler is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Sweep"})

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

// Service runs the periodic maintenance pass.
type Service struct {
	gateway    Gateway
	reconciler Reconciler
	logger     log.Logger
	timeNow    func() time.Time
}

// NewService creates a new sweep service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		gateway:    cfg.Gateway,
		reconciler: cfg.Reconciler,
		logger:     cfg.Logger,
		timeNow:    cfg.TimeNow,
	}, nil
}

// Result is what a pass did.
type Result struct {
	Swept      gate.SweepResult
	Reconciled orchestrator.ReconcileResult
}

// Run expires the overdue gates and then recovers the tasks that can continue.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	swept, err := s.gateway.Sweep(ctx, s.timeNow().UTC())
	if err != nil {
		return nil, fmt.Errorf("could not sweep gates: %w", err)
	}

	rec, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not reconcile tasks: %w", err)
	}

	res := &Result{Swept: *swept, Reconciled: *rec}
	if swept.Approvals+swept.Decisions+rec.Rerun+rec.Resumed+rec.Failed > 0 {
		s.logger.Infof("Swept %d approvals and %d decisions, rerun %d, resumed %d and %d failed",
			swept.Approvals, swept.Decisions, rec.Rerun, rec.Resumed, rec.Failed)
	}

	return res, nil
}
