package model

import "time"

// SafetyOutcome is the verdict of a safety evaluation.
type SafetyOutcome string

const (
	SafetyOutcomeAllowed SafetyOutcome = "allowed"
	SafetyOutcomeBlocked SafetyOutcome = "blocked"
	SafetyOutcomeWarning SafetyOutcome = "warning"
	SafetyOutcomeError   SafetyOutcome = "error"
)

// ConstraintType is the kind of a safety constraint.
type ConstraintType string

const (
	ConstraintTypeDenyList      ConstraintType = "deny_list"
	ConstraintTypeRateLimit     ConstraintType = "rate_limit"
	ConstraintTypeScope         ConstraintType = "scope"
	ConstraintTypeResourceLimit ConstraintType = "resource_limit"
	ConstraintTypeSimulation    ConstraintType = "simulation"
)

// ConstraintSeverity decides what a violated constraint does: error blocks, warning escalates.
type ConstraintSeverity string

const (
	ConstraintSeverityError   ConstraintSeverity = "error"
	ConstraintSeverityWarning ConstraintSeverity = "warning"
)

// ConstraintCheck is the result of checking one constraint.
type ConstraintCheck struct {
	Name     string             `json:"name"`
	Type     ConstraintType     `json:"type"`
	Passed   bool               `json:"passed"`
	Severity ConstraintSeverity `json:"severity,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// RiskAssessment is the risk computed by a safety evaluation.
type RiskAssessment struct {
	Level     RiskLevel `json:"level"`
	Score     int       `json:"score"`
	Factors   []string  `json:"factors,omitempty"`
	Escalated bool      `json:"escalated,omitempty"`
}

// SafetyAuditEntry is the append only record of one safety evaluation.
type SafetyAuditEntry struct {
	ID               string
	TaskID           string
	PlanID           string
	StepIndex        int
	Action           ActionType
	ActionDetails    map[string]string
	ConstraintChecks []ConstraintCheck
	Simulation       *SimulationResult
	Risk             RiskAssessment
	Outcome          SafetyOutcome
	DryRun           bool
	Error            string
	CreatedAt        time.Time
}

// Allowed returns true if the action can be dispatched.
func (e SafetyAuditEntry) Allowed() bool { return e.Outcome == SafetyOutcomeAllowed }

// FailedCheck returns the first constraint check that didn't pass.
func (e SafetyAuditEntry) FailedCheck() (ConstraintCheck, bool) {
	for _, c := range e.ConstraintChecks {
		if !c.Passed {
			return c, true
		}
	}
	return ConstraintCheck{}, false
}
