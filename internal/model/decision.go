package model

import "time"

// DecisionStatus is the status of an open question.
type DecisionStatus string

const (
	DecisionStatusPending   DecisionStatus = "pending"
	DecisionStatusAnswered  DecisionStatus = "answered"
	DecisionStatusTimeout   DecisionStatus = "timeout"
	DecisionStatusCancelled DecisionStatus = "cancelled"
)

// TaskDecision is an open question with enumerated options raised mid execution.
type TaskDecision struct {
	ID             string
	TaskID         string
	PlanID         string
	StepIndex      int
	Question       string
	Options        []DecisionOption
	Status         DecisionStatus
	SelectedOption string
	DecisionReason string
	DecidedBy      string
	DecidedAt      *time.Time
	Timeout        time.Duration
	ExpiresAt      time.Time
	Fallback       string
	Token          string
	CreatedAt      time.Time
}

// Resolved returns true if the decision reached a terminal status.
func (d TaskDecision) Resolved() bool { return d.Status != DecisionStatusPending }

// HasOption returns true if the option ID is one of the decision options.
func (d TaskDecision) HasOption(id string) bool {
	for _, o := range d.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}
