package plan

import (
	"context"

	"github.com/slok/autotask/internal/model"
)

// ProposeRequest is what a proposer decomposes into steps.
type ProposeRequest struct {
	Classification model.IntentClassification
	Context        map[string]string
}

// ProposedStep is a step as proposed, before validation and risk annotation.
type ProposedStep struct {
	Name   string
	Action model.ActionType
	Params map[string]string
	// Risk is the proposed risk, the policy table risk wins when it's higher.
	Risk model.RiskLevel
	// Retryable is unset when the proposer has no opinion.
	Retryable   *bool
	MaxAttempts int
	Decision    *model.DecisionSpec
}

// Proposer decomposes a classified intent into ordered steps.
type Proposer interface {
	Propose(ctx context.Context, req ProposeRequest) ([]ProposedStep, error)
}

// ProposerFunc is a helper to use a function as a Proposer.
type ProposerFunc func(ctx context.Context, req ProposeRequest) ([]ProposedStep, error)

func (f ProposerFunc) Propose(ctx context.Context, req ProposeRequest) ([]ProposedStep, error) {
	return f(ctx, req)
}
