package model

import (
	"fmt"
	"time"
)

// ApprovalStatus is the status of an approval gate.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
	ApprovalStatusSkipped  ApprovalStatus = "skipped"
)

// DefaultAction is applied to an approval when it expires.
type DefaultAction string

const (
	DefaultActionReject  DefaultAction = "reject"
	DefaultActionApprove DefaultAction = "approve"
)

// Verdict is the answer of an approver.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictSkip    Verdict = "skip"
)

// Valid returns true if the verdict is known.
func (v Verdict) Valid() bool {
	return v == VerdictApprove || v == VerdictReject || v == VerdictSkip
}

// PlanGateStep is the step index used by gates that cover the whole plan.
const PlanGateStep = -1

// ApprovalLevel is one level of an approval chain.
type ApprovalLevel struct {
	// Approvers that can vote on this level, empty means anyone.
	Approvers  []string      `yaml:"approvers" json:"approvers,omitempty"`
	RequireAll bool          `yaml:"requireAll" json:"require_all,omitempty"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

// CanVote returns true if the approver is allowed to vote on the level.
func (l ApprovalLevel) CanVote(approver string) bool {
	if len(l.Approvers) == 0 {
		return true
	}
	for _, a := range l.Approvers {
		if a == approver {
			return true
		}
	}
	return false
}

// ApprovalChain is an ordered list of approval levels.
type ApprovalChain struct {
	Levels       []ApprovalLevel `yaml:"levels" json:"levels"`
	StopOnReject bool            `yaml:"stopOnReject" json:"stop_on_reject,omitempty"`
}

// Validate validates the chain.
func (c ApprovalChain) Validate() error {
	if len(c.Levels) == 0 {
		return fmt.Errorf("approval chain needs at least one level: %w", ErrNotValid)
	}
	for i, l := range c.Levels {
		if l.RequireAll && len(l.Approvers) == 0 {
			return fmt.Errorf("approval level %d requires all approvers but has none: %w", i, ErrNotValid)
		}
	}
	return nil
}

// ApprovalVote is an append only vote of an approver on a chain level.
type ApprovalVote struct {
	ID         string
	ApprovalID string
	Level      int
	Approver   string
	Verdict    Verdict
	Reason     string
	CreatedAt  time.Time
}

// TaskApproval is a human gate on a step or on the whole plan.
type TaskApproval struct {
	ID                string
	TaskID            string
	PlanID            string
	StepIndex         int
	Action            ActionType
	ActionDescription string
	Risk              RiskLevel
	Status            ApprovalStatus
	Chain             ApprovalChain
	CurrentLevel      int
	DecisionReason    string
	DecidedBy         string
	DecidedAt         *time.Time
	ExpiresAt         time.Time
	DefaultAction     DefaultAction
	Token             string
	CreatedAt         time.Time
}

// Resolved returns true if the approval reached a terminal status.
func (a TaskApproval) Resolved() bool { return a.Status != ApprovalStatusPending }

// Granted returns true if the gated action can proceed.
func (a TaskApproval) Granted() bool {
	return a.Status == ApprovalStatusApproved ||
		(a.Status == ApprovalStatusExpired && a.DefaultAction == DefaultActionApprove)
}

// Level returns the current chain level.
func (a TaskApproval) Level() ApprovalLevel {
	if a.CurrentLevel < 0 || a.CurrentLevel >= len(a.Chain.Levels) {
		return ApprovalLevel{}
	}
	return a.Chain.Levels[a.CurrentLevel]
}
