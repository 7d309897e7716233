package io

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/autotask/internal/model"
)

// PolicyYAMLRepository loads the operator policy from YAML files.
type PolicyYAMLRepository struct {
	fs fs.FS
}

// NewPolicyYAMLRepository creates a new YAML policy repository.
func NewPolicyYAMLRepository(filesystem fs.FS) *PolicyYAMLRepository {
	return &PolicyYAMLRepository{fs: filesystem}
}

// GetPolicy loads a policy from a YAML file and returns a validated domain model.
// Unset fields keep the values of model.DefaultPolicy.
func (r *PolicyYAMLRepository) GetPolicy(ctx context.Context, path string) (model.Policy, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.Policy{}, fmt.Errorf("reading policy file: %w", err)
	}

	if ctx.Err() != nil {
		return model.Policy{}, ctx.Err()
	}

	var doc PolicyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return model.Policy{}, fmt.Errorf("parsing YAML: %w", err)
	}

	p, err := doc.toModel()
	if err != nil {
		return model.Policy{}, fmt.Errorf("invalid policy: %w", err)
	}

	return p, nil
}

// PolicyDocument represents the YAML structure of the policy file.
type PolicyDocument struct {
	Safety        SafetyConfig      `yaml:"safety"`
	RiskOverrides map[string]string `yaml:"riskOverrides"`
	Approval      ApprovalConfig    `yaml:"approval"`
}

// SafetyConfig represents the YAML structure of the safety constraints.
type SafetyConfig struct {
	MaxAffectedRecords *int              `yaml:"maxAffectedRecords"`
	DenyList           []DenyRuleConfig  `yaml:"denyList"`
	RateLimits         []RateLimitConfig `yaml:"rateLimits"`
	Scope              ScopeConfig       `yaml:"scope"`
	Resources          ResourcesConfig   `yaml:"resources"`
}

// DenyRuleConfig represents a deny list rule.
type DenyRuleConfig struct {
	Name     string   `yaml:"name"`
	Actions  []string `yaml:"actions"`
	Param    string   `yaml:"param"`
	Pattern  string   `yaml:"pattern"`
	Message  string   `yaml:"message"`
	Severity string   `yaml:"severity"`
}

// RateLimitConfig represents a rate limit rule.
type RateLimitConfig struct {
	Name   string `yaml:"name"`
	Action string `yaml:"action"`
	Max    int    `yaml:"max"`
	Window string `yaml:"window"`
	Burst  int    `yaml:"burst"`
}

// ScopeConfig represents the domain scope rules.
type ScopeConfig struct {
	DefaultDeny bool `yaml:"defaultDeny"`
	Rules       []struct {
		Domain string `yaml:"domain"`
		Allow  bool   `yaml:"allow"`
	} `yaml:"rules"`
}

// ResourcesConfig represents the YAML structure for resource limits.
type ResourcesConfig struct {
	MaxRecords      int     `yaml:"maxRecords"`
	MaxAmount       float64 `yaml:"maxAmount"`
	MaxScriptLength int     `yaml:"maxScriptLength"`
}

// ApprovalConfig represents the human gates configuration.
type ApprovalConfig struct {
	DefaultTimeout  string                 `yaml:"defaultTimeout"`
	DefaultAction   string                 `yaml:"defaultAction"`
	DecisionTimeout string                 `yaml:"decisionTimeout"`
	Chains          map[string]ChainConfig `yaml:"chains"`
}

// ChainConfig represents an approval chain.
type ChainConfig struct {
	StopOnReject bool          `yaml:"stopOnReject"`
	Levels       []LevelConfig `yaml:"levels"`
}

// LevelConfig represents an approval chain level.
type LevelConfig struct {
	Approvers  []string `yaml:"approvers"`
	RequireAll bool     `yaml:"requireAll"`
	Timeout    string   `yaml:"timeout"`
}

func (d PolicyDocument) toModel() (model.Policy, error) {
	p := model.DefaultPolicy()

	if d.Safety.MaxAffectedRecords != nil {
		if *d.Safety.MaxAffectedRecords < 0 {
			return p, fmt.Errorf("maxAffectedRecords can't be negative")
		}
		p.Safety.MaxAffectedRecords = *d.Safety.MaxAffectedRecords
	}

	for _, r := range d.Safety.DenyList {
		if r.Name == "" {
			return p, fmt.Errorf("deny rule name is required")
		}
		actions, err := parseActions(r.Actions)
		if err != nil {
			return p, fmt.Errorf("deny rule %q: %w", r.Name, err)
		}
		sev, err := parseSeverity(r.Severity)
		if err != nil {
			return p, fmt.Errorf("deny rule %q: %w", r.Name, err)
		}
		p.Safety.DenyList = append(p.Safety.DenyList, model.DenyRule{
			Name:     r.Name,
			Actions:  actions,
			Param:    r.Param,
			Pattern:  r.Pattern,
			Message:  r.Message,
			Severity: sev,
		})
	}

	for _, r := range d.Safety.RateLimits {
		if r.Name == "" {
			return p, fmt.Errorf("rate limit name is required")
		}
		var action model.ActionType
		if r.Action != "" {
			actions, err := parseActions([]string{r.Action})
			if err != nil {
				return p, fmt.Errorf("rate limit %q: %w", r.Name, err)
			}
			action = actions[0]
		}
		window, err := parseDuration(r.Window, 0)
		if err != nil {
			return p, fmt.Errorf("rate limit %q: %w", r.Name, err)
		}
		if r.Max <= 0 || window <= 0 {
			return p, fmt.Errorf("rate limit %q needs a positive max and window", r.Name)
		}
		p.Safety.RateLimits = append(p.Safety.RateLimits, model.RateLimitRule{
			Name:   r.Name,
			Action: action,
			Max:    r.Max,
			Window: window,
			Burst:  r.Burst,
		})
	}

	p.Safety.Scope.DefaultDeny = d.Safety.Scope.DefaultDeny
	for _, r := range d.Safety.Scope.Rules {
		if r.Domain == "" {
			return p, fmt.Errorf("scope rule domain is required")
		}
		p.Safety.Scope.Rules = append(p.Safety.Scope.Rules, model.ScopeRule{Domain: r.Domain, Allow: r.Allow})
	}

	if d.Safety.Resources.MaxRecords < 0 || d.Safety.Resources.MaxAmount < 0 || d.Safety.Resources.MaxScriptLength < 0 {
		return p, fmt.Errorf("resource limits can't be negative")
	}
	p.Safety.Resources = model.ResourceLimits(d.Safety.Resources)

	if len(d.RiskOverrides) > 0 {
		p.RiskOverrides = map[model.ActionType]model.RiskLevel{}
	}
	for a, r := range d.RiskOverrides {
		actions, err := parseActions([]string{a})
		if err != nil {
			return p, fmt.Errorf("risk override: %w", err)
		}
		risk, err := model.ParseRiskLevel(r)
		if err != nil {
			return p, fmt.Errorf("risk override %q: %w", a, err)
		}
		p.RiskOverrides[actions[0]] = risk
	}

	var err error
	p.Approval.DefaultTimeout, err = parseDuration(d.Approval.DefaultTimeout, p.Approval.DefaultTimeout)
	if err != nil {
		return p, fmt.Errorf("approval default timeout: %w", err)
	}
	p.Approval.DecisionTimeout, err = parseDuration(d.Approval.DecisionTimeout, p.Approval.DecisionTimeout)
	if err != nil {
		return p, fmt.Errorf("approval decision timeout: %w", err)
	}
	switch model.DefaultAction(d.Approval.DefaultAction) {
	case "":
	case model.DefaultActionApprove, model.DefaultActionReject:
		p.Approval.DefaultAction = model.DefaultAction(d.Approval.DefaultAction)
	default:
		return p, fmt.Errorf("unknown approval default action %q", d.Approval.DefaultAction)
	}

	if len(d.Approval.Chains) > 0 {
		p.Approval.Chains = map[model.RiskLevel]model.ApprovalChain{}
	}
	for r, c := range d.Approval.Chains {
		risk, err := model.ParseRiskLevel(r)
		if err != nil {
			return p, fmt.Errorf("approval chain: %w", err)
		}
		chain := model.ApprovalChain{StopOnReject: c.StopOnReject}
		for i, l := range c.Levels {
			timeout, err := parseDuration(l.Timeout, 0)
			if err != nil {
				return p, fmt.Errorf("approval chain %q level %d: %w", r, i, err)
			}
			chain.Levels = append(chain.Levels, model.ApprovalLevel{Approvers: l.Approvers, RequireAll: l.RequireAll, Timeout: timeout})
		}
		if err := chain.Validate(); err != nil {
			return p, fmt.Errorf("approval chain %q: %w", r, err)
		}
		p.Approval.Chains[risk] = chain
	}

	return p, nil
}

func parseActions(ss []string) ([]model.ActionType, error) {
	var actions []model.ActionType
	for _, s := range ss {
		a := model.ActionType(s)
		if _, ok := model.LookupAction(a); !ok {
			return nil, fmt.Errorf("unknown action type %q", s)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func parseSeverity(s string) (model.ConstraintSeverity, error) {
	switch model.ConstraintSeverity(s) {
	case "":
		return model.ConstraintSeverityError, nil
	case model.ConstraintSeverityError, model.ConstraintSeverityWarning:
		return model.ConstraintSeverity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q can't be negative", s)
	}
	return d, nil
}
