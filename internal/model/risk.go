package model

import (
	"fmt"
	"strings"
)

// RiskLevel is the four tier severity of an action.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

var riskOrdinals = map[RiskLevel]int{
	RiskLevelLow:      0,
	RiskLevelMedium:   1,
	RiskLevelHigh:     2,
	RiskLevelCritical: 3,
}

// ParseRiskLevel parses a risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk level %q: %w", s, ErrNotValid)
	}
	return r, nil
}

// Valid returns true if the risk level is one of the known tiers.
func (r RiskLevel) Valid() bool {
	_, ok := riskOrdinals[r]
	return ok
}

// Ordinal returns the numeric severity, low is 0.
func (r RiskLevel) Ordinal() int { return riskOrdinals[r] }

// AtLeast returns true if r is as severe as o or more.
func (r RiskLevel) AtLeast(o RiskLevel) bool { return r.Ordinal() >= o.Ordinal() }

// Escalate returns the next tier, critical stays critical.
func (r RiskLevel) Escalate() RiskLevel {
	switch r {
	case RiskLevelLow:
		return RiskLevelMedium
	case RiskLevelMedium:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// MaxRisk returns the most severe of both risks.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if !a.Valid() {
		return b
	}
	if b.Valid() && b.Ordinal() > a.Ordinal() {
		return b
	}
	return a
}

// ExecutionMode is the task policy that decides which risks need a human.
type ExecutionMode string

const (
	// ExecutionModeAutonomous only gates critical steps.
	ExecutionModeAutonomous ExecutionMode = "autonomous"
	// ExecutionModeSupervised gates high and critical steps.
	ExecutionModeSupervised ExecutionMode = "supervised"
	// ExecutionModeManual gates every step.
	ExecutionModeManual ExecutionMode = "manual"
)

// Valid returns true if the mode is known.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ExecutionModeAutonomous, ExecutionModeSupervised, ExecutionModeManual:
		return true
	}
	return false
}

// GateThreshold returns the lowest risk that requires approval under this mode.
func (m ExecutionMode) GateThreshold() RiskLevel {
	switch m {
	case ExecutionModeAutonomous:
		return RiskLevelCritical
	case ExecutionModeManual:
		return RiskLevelLow
	default:
		return RiskLevelHigh
	}
}

// Gates returns true if a step with the risk must be approved by a human.
func (m ExecutionMode) Gates(r RiskLevel) bool {
	return r.AtLeast(m.GateThreshold())
}
