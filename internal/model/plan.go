package model

import (
	"fmt"
	"time"
)

// PlanStatus is the status of an execution plan.
type PlanStatus string

const (
	PlanStatusPending   PlanStatus = "pending"
	PlanStatusApproved  PlanStatus = "approved"
	PlanStatusRejected  PlanStatus = "rejected"
	PlanStatusExecuting PlanStatus = "executing"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusFailed    PlanStatus = "failed"
)

// DecisionOption is one of the enumerated answers of a decision.
type DecisionOption struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// DecisionSpec makes a step a branch point that needs a user answer.
type DecisionSpec struct {
	Question string           `yaml:"question" json:"question"`
	Options  []DecisionOption `yaml:"options" json:"options"`
	Timeout  time.Duration    `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// Fallback is the option used when the decision times out, empty means the task fails.
	Fallback string `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// HasOption returns true if the option ID is one of the decision options.
func (d DecisionSpec) HasOption(id string) bool {
	for _, o := range d.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Validate validates the decision spec.
func (d DecisionSpec) Validate() error {
	if d.Question == "" {
		return fmt.Errorf("decision question is required: %w", ErrNotValid)
	}
	if len(d.Options) < 2 {
		return fmt.Errorf("decision needs at least 2 options: %w", ErrNotValid)
	}
	seen := map[string]bool{}
	for _, o := range d.Options {
		if o.ID == "" {
			return fmt.Errorf("decision option id is required: %w", ErrNotValid)
		}
		if seen[o.ID] {
			return fmt.Errorf("duplicated decision option %q: %w", o.ID, ErrNotValid)
		}
		seen[o.ID] = true
	}
	if d.Fallback != "" && !d.HasOption(d.Fallback) {
		return fmt.Errorf("decision fallback %q is not an option: %w", d.Fallback, ErrNotValid)
	}
	return nil
}

// Step is one atomic action of a plan. Steps are immutable once compiled.
type Step struct {
	Index       int
	Name        string
	Action      ActionType
	Params      map[string]string
	Risk        RiskLevel
	Retryable   bool
	MaxAttempts int
	Decision    *DecisionSpec
}

// IsDecision returns true if the step is a branch point answered by a human.
func (s Step) IsDecision() bool { return s.Action == ActionAskDecision }

// Validate validates the step against the action catalog.
func (s Step) Validate() error {
	spec, ok := LookupAction(s.Action)
	if !ok {
		return fmt.Errorf("step %d: unknown action type %q: %w", s.Index, s.Action, ErrNotValid)
	}

	for _, p := range spec.RequiredParams {
		if s.Params[p] == "" {
			return fmt.Errorf("step %d: action %s requires %q param: %w", s.Index, s.Action, p, ErrNotValid)
		}
	}

	if !s.Risk.Valid() {
		return fmt.Errorf("step %d: invalid risk %q: %w", s.Index, s.Risk, ErrNotValid)
	}

	if s.IsDecision() {
		if s.Decision == nil {
			return fmt.Errorf("step %d: decision spec is required: %w", s.Index, ErrNotValid)
		}
		if err := s.Decision.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", s.Index, err)
		}
	}

	if s.MaxAttempts < 0 {
		return fmt.Errorf("step %d: max attempts can't be negative: %w", s.Index, ErrNotValid)
	}

	return nil
}

// SimulationResult is the outcome of a side effect free dry run.
type SimulationResult struct {
	Success         bool          `json:"success"`
	AffectedRecords int           `json:"affected_records"`
	SideEffects     []string      `json:"side_effects,omitempty"`
	Notes           []string      `json:"notes,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// ExecutionPlan is the compiled artifact for one intent.
type ExecutionPlan struct {
	ID               string
	TaskID           string
	ClassificationID string
	Intent           string
	IntentType       IntentType
	Confidence       float64
	Status           PlanStatus
	Steps            []Step
	Context          map[string]string
	Program          string
	Simulation       *SimulationResult
	Risk             RiskLevel
	ApprovedBy       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate validates the plan.
func (p ExecutionPlan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps: %w", ErrNotValid)
	}
	if p.Program == "" {
		return fmt.Errorf("plan has no program: %w", ErrNotValid)
	}
	for i, s := range p.Steps {
		if s.Index != i {
			return fmt.Errorf("step %d has index %d: %w", i, s.Index, ErrNotValid)
		}
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// HighestRisk returns the most severe step risk.
func (p ExecutionPlan) HighestRisk() RiskLevel {
	risk := RiskLevelLow
	for _, s := range p.Steps {
		risk = MaxRisk(risk, s.Risk)
	}
	return risk
}
