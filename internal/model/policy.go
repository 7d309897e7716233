package model

import (
	"fmt"
	"time"
)

// DenyRule denies actions, or actions whose parameters match a pattern.
type DenyRule struct {
	Name string
	// Actions the rule applies to, all when empty.
	Actions []ActionType
	// Param restricts Pattern to one parameter, all parameters when empty.
	Param string
	// Pattern is a regular expression, the action itself is denied when empty.
	Pattern  string
	Message  string
	Severity ConstraintSeverity
}

// RateLimitRule limits how often an action type can be dispatched.
type RateLimitRule struct {
	Name string
	// Action limited, all actions when empty.
	Action ActionType
	Max    int
	Window time.Duration
	Burst  int
}

// ScopeRule allows or denies a domain, wildcard subdomains ("*.example.com") are supported.
type ScopeRule struct {
	Domain string
	Allow  bool
}

// ScopePolicy restricts the domains external actions can reach. First matching rule wins,
// domains matching no rule are allowed unless DefaultDeny is set.
type ScopePolicy struct {
	DefaultDeny bool
	Rules       []ScopeRule
}

// ResourceLimits caps action parameters. Zero means unlimited.
type ResourceLimits struct {
	MaxRecords      int
	MaxAmount       float64
	MaxScriptLength int
}

// SafetyPolicy is the configuration of the safety engine.
type SafetyPolicy struct {
	DenyList   []DenyRule
	RateLimits []RateLimitRule
	Scope      ScopePolicy
	Resources  ResourceLimits
	// MaxAffectedRecords escalates actions whose simulation affects more records. Zero disables it.
	MaxAffectedRecords int
}

// ApprovalPolicy configures the human gates.
type ApprovalPolicy struct {
	// Chains per minimum risk level, the most severe one not above the step risk is used.
	Chains          map[RiskLevel]ApprovalChain
	DefaultTimeout  time.Duration
	DefaultAction   DefaultAction
	DecisionTimeout time.Duration
}

// ChainFor returns the approval chain for a risk.
func (p ApprovalPolicy) ChainFor(r RiskLevel) (ApprovalChain, bool) {
	for _, lvl := range []RiskLevel{RiskLevelCritical, RiskLevelHigh, RiskLevelMedium, RiskLevelLow} {
		if !r.AtLeast(lvl) {
			continue
		}
		if c, ok := p.Chains[lvl]; ok {
			return c, true
		}
	}
	return ApprovalChain{}, false
}

// Policy is the operator policy document.
type Policy struct {
	Safety        SafetyPolicy
	RiskOverrides map[ActionType]RiskLevel
	Approval      ApprovalPolicy
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		Safety: SafetyPolicy{
			MaxAffectedRecords: 100,
		},
		Approval: ApprovalPolicy{
			DefaultTimeout:  24 * time.Hour,
			DefaultAction:   DefaultActionReject,
			DecisionTimeout: 24 * time.Hour,
		},
	}
}

// ActionRisk returns the policy table risk of an action type.
func (p Policy) ActionRisk(t ActionType) (RiskLevel, error) {
	if r, ok := p.RiskOverrides[t]; ok {
		return r, nil
	}
	spec, ok := LookupAction(t)
	if !ok {
		return "", fmt.Errorf("unknown action type %q: %w", t, ErrNotValid)
	}
	return spec.Risk, nil
}
