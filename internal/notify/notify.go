// Package notify delivers approval and decision prompts to humans.
package notify

import (
	"context"
	"time"

	"github.com/slok/autotask/internal/model"
)

// Prompt is a request for human input. Replies are correlated back with the token.
type Prompt struct {
	Kind      model.GateKind         `json:"kind"`
	GateID    string                 `json:"gate_id"`
	TaskID    string                 `json:"task_id"`
	StepIndex int                    `json:"step_index"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Risk      model.RiskLevel        `json:"risk,omitempty"`
	Level     int                    `json:"level,omitempty"`
	Approvers []string               `json:"approvers,omitempty"`
	Options   []model.DecisionOption `json:"options,omitempty"`
	Token     string                 `json:"token"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// Notifier delivers prompts.
type Notifier interface {
	Notify(ctx context.Context, p Prompt) error
}

//go:generate mockery --case underscore --output notifymock --outpkg notifymock --name Notifier --structname MockNotifier

// NotifierFunc is a helper to use a function as a Notifier.
type NotifierFunc func(ctx context.Context, p Prompt) error

func (f NotifierFunc) Notify(ctx context.Context, p Prompt) error { return f(ctx, p) }
