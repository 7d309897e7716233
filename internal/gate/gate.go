// Package gate is the pending human input module: approval gates with chains and
// decisions with enumerated options. Every resolution is a conditional update on the
// pending status followed by a resume event.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/slok/autotask/internal/events"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/metrics"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/notify"
	"github.com/slok/autotask/internal/storage"
)

// Repository is the storage the gateway needs.
type Repository interface {
	storage.ApprovalRepository
	storage.DecisionRepository
}

// GatewayConfig is the configuration of the gateway.
type GatewayConfig struct {
	Repository Repository
	Notifier   notify.Notifier
	Publisher  events.Publisher
	Policy     model.ApprovalPolicy
	Metrics    metrics.Recorder
	Logger     log.Logger
	TimeNow    func() time.Time
}

func (c *GatewayConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Notifier == nil {
		return fmt.Errorf("notifier is required")
	}
	if c.Publisher == nil {
		c.Publisher = events.Noop
	}
	if c.Policy.DefaultTimeout == 0 {
		c.Policy.DefaultTimeout = 24 * time.Hour
	}
	if c.Policy.DecisionTimeout == 0 {
		c.Policy.DecisionTimeout = c.Policy.DefaultTimeout
	}
	if c.Policy.DefaultAction == "" {
		c.Policy.DefaultAction = model.DefaultActionReject
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "gate.Gateway"})
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	return nil
}

// Gateway manages approvals and decisions.
type Gateway struct {
	repo      Repository
	notifier  notify.Notifier
	publisher events.Publisher
	policy    model.ApprovalPolicy
	metrics   metrics.Recorder
	logger    log.Logger
	timeNow   func() time.Time
}

// NewGateway returns a new gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Gateway{
		repo:      cfg.Repository,
		notifier:  cfg.Notifier,
		publisher: cfg.Publisher,
		policy:    cfg.Policy,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		timeNow:   cfg.TimeNow,
	}, nil
}

func (g *Gateway) now() time.Time { return g.timeNow().UTC() }

func newToken() string { return uuid.NewString() }

func gateKv(taskID, gateID string) log.Kv { return log.Kv{"task": taskID, "gate": gateID} }

// resolved publishes the resume event of a committed resolution.
func (g *Gateway) resolved(ctx context.Context, kind model.GateKind, taskID, gateID, status string, createdAt time.Time) {
	g.metrics.GateResolved(ctx, kind, status, g.now().Sub(createdAt))
	g.publisher.Publish(ctx, model.ResumeEvent{TaskID: taskID, GateID: gateID, Kind: kind})
	g.logger.WithValues(gateKv(taskID, gateID)).Infof("%s resolved as %s", kind, status)
}

// CancelForTask resolves the pending gates of a task: approvals as skipped and
// decisions as cancelled.
func (g *Gateway) CancelForTask(ctx context.Context, taskID string) error {
	const reason = "task cancelled"

	pendingApproval := model.ApprovalStatusPending
	approvals, err := g.repo.ListApprovals(ctx, storage.ApprovalListOpts{TaskID: taskID, Status: &pendingApproval})
	if err != nil {
		return fmt.Errorf("could not list approvals: %w", err)
	}
	for _, a := range approvals {
		expect := storage.ApprovalExpectation{Status: a.Status, Level: a.CurrentLevel}
		now := g.now()
		a.Status = model.ApprovalStatusSkipped
		a.DecisionReason = reason
		a.DecidedBy = "system"
		a.DecidedAt = &now
		err := g.repo.UpdateApproval(ctx, a, expect)
		if errors.Is(err, model.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("could not cancel approval %s: %w", a.ID, err)
		}
		g.resolved(ctx, model.GateKindApproval, a.TaskID, a.ID, string(a.Status), a.CreatedAt)
	}

	pendingDecision := model.DecisionStatusPending
	decisions, err := g.repo.ListDecisions(ctx, storage.DecisionListOpts{TaskID: taskID, Status: &pendingDecision})
	if err != nil {
		return fmt.Errorf("could not list decisions: %w", err)
	}
	for _, d := range decisions {
		now := g.now()
		d.Status = model.DecisionStatusCancelled
		d.DecisionReason = reason
		d.DecidedBy = "system"
		d.DecidedAt = &now
		err := g.repo.UpdateDecision(ctx, d, model.DecisionStatusPending)
		if errors.Is(err, model.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("could not cancel decision %s: %w", d.ID, err)
		}
		g.resolved(ctx, model.GateKindDecision, d.TaskID, d.ID, string(d.Status), d.CreatedAt)
	}

	return nil
}

// Stats are the gate counts per status.
type Stats struct {
	Approvals map[model.ApprovalStatus]int
	Decisions map[model.DecisionStatus]int
}

// Stats returns the gate counts per status.
func (g *Gateway) Stats(ctx context.Context) (*Stats, error) {
	approvals, err := g.repo.ListApprovals(ctx, storage.ApprovalListOpts{})
	if err != nil {
		return nil, fmt.Errorf("could not list approvals: %w", err)
	}
	decisions, err := g.repo.ListDecisions(ctx, storage.DecisionListOpts{})
	if err != nil {
		return nil, fmt.Errorf("could not list decisions: %w", err)
	}

	s := &Stats{Approvals: map[model.ApprovalStatus]int{}, Decisions: map[model.DecisionStatus]int{}}
	for _, a := range approvals {
		s.Approvals[a.Status]++
	}
	for _, d := range decisions {
		s.Decisions[d.Status]++
	}

	return s, nil
}
