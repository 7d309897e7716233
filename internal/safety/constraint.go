package safety

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/slok/autotask/internal/model"
)

// constraint is a static check run before the simulation.
type constraint interface {
	Name() string
	Type() model.ConstraintType
	Severity() model.ConstraintSeverity
	// Check returns an empty message when the action passes. Checks never consume anything.
	Check(a model.Action, now time.Time) (violation string)
}

type denyConstraint struct {
	rule    model.DenyRule
	re      *regexp.Regexp
	actions map[model.ActionType]bool
}

func newDenyConstraint(rule model.DenyRule) (*denyConstraint, error) {
	c := &denyConstraint{rule: rule, actions: map[model.ActionType]bool{}}
	for _, a := range rule.Actions {
		c.actions[a] = true
	}
	if rule.Pattern != "" {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("deny rule %q has an invalid pattern: %w", rule.Name, err)
		}
		c.re = re
	}
	return c, nil
}

func (c *denyConstraint) Name() string               { return c.rule.Name }
func (c *denyConstraint) Type() model.ConstraintType { return model.ConstraintTypeDenyList }
func (c *denyConstraint) Severity() model.ConstraintSeverity {
	if c.rule.Severity == "" {
		return model.ConstraintSeverityError
	}
	return c.rule.Severity
}

func (c *denyConstraint) Check(a model.Action, _ time.Time) string {
	if len(c.actions) > 0 && !c.actions[a.Type] {
		return ""
	}

	msg := c.rule.Message
	if c.re == nil {
		if msg == "" {
			msg = fmt.Sprintf("action %s is denied", a.Type)
		}
		return msg
	}

	keys := make([]string, 0, len(a.Params))
	for k := range a.Params {
		if c.rule.Param == "" || c.rule.Param == k {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if c.re.MatchString(a.Params[k]) {
			if msg == "" {
				msg = fmt.Sprintf("parameter %s matches denied pattern %q", k, c.rule.Pattern)
			}
			return msg
		}
	}

	return ""
}

type rateConstraint struct {
	rule    model.RateLimitRule
	limiter *rate.Limiter
}

func newRateConstraint(rule model.RateLimitRule) (*rateConstraint, error) {
	if rule.Max <= 0 || rule.Window <= 0 {
		return nil, fmt.Errorf("rate limit %q needs a positive max and window", rule.Name)
	}
	burst := rule.Burst
	if burst == 0 {
		burst = rule.Max
	}
	perSecond := float64(rule.Max) / rule.Window.Seconds()

	return &rateConstraint{rule: rule, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}, nil
}

func (c *rateConstraint) Name() string                       { return c.rule.Name }
func (c *rateConstraint) Type() model.ConstraintType         { return model.ConstraintTypeRateLimit }
func (c *rateConstraint) Severity() model.ConstraintSeverity { return model.ConstraintSeverityError }

func (c *rateConstraint) applies(a model.Action) bool {
	return c.rule.Action == "" || c.rule.Action == a.Type
}

// Check only peeks the limiter, tokens are taken by reserve once the action is admitted.
func (c *rateConstraint) Check(a model.Action, now time.Time) string {
	if !c.applies(a) || c.limiter.TokensAt(now) >= 1 {
		return ""
	}
	return c.violation()
}

// reserve takes a token at now. The reservation can be cancelled at the same now
// to give the token back.
func (c *rateConstraint) reserve(now time.Time) (*rate.Reservation, bool) {
	r := c.limiter.ReserveN(now, 1)
	if !r.OK() {
		return nil, false
	}
	if r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return nil, false
	}
	return r, true
}

func (c *rateConstraint) violation() string {
	return fmt.Sprintf("rate limit exceeded: max %d per %s", c.rule.Max, c.rule.Window)
}

type scopeConstraint struct {
	matcher *scopeMatcher
}

func (c *scopeConstraint) Name() string                       { return "scope" }
func (c *scopeConstraint) Type() model.ConstraintType         { return model.ConstraintTypeScope }
func (c *scopeConstraint) Severity() model.ConstraintSeverity { return model.ConstraintSeverityError }

func (c *scopeConstraint) Check(a model.Action, _ time.Time) string {
	for _, d := range actionDomains(a) {
		if !c.matcher.allowDomain(d) {
			return fmt.Sprintf("domain %q is out of scope", d)
		}
	}
	return ""
}

type resourceConstraint struct {
	limits model.ResourceLimits
}

func (c *resourceConstraint) Name() string               { return "resource-limits" }
func (c *resourceConstraint) Type() model.ConstraintType { return model.ConstraintTypeResourceLimit }
func (c *resourceConstraint) Severity() model.ConstraintSeverity {
	return model.ConstraintSeverityError
}

func (c *resourceConstraint) Check(a model.Action, _ time.Time) string {
	if c.limits.MaxRecords > 0 {
		for _, k := range []string{"count", "limit"} {
			v, ok := a.Params[k]
			if !ok {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Sprintf("parameter %s is not a number", k)
			}
			if n < 0 {
				return fmt.Sprintf("parameter %s=%d can't be negative", k, n)
			}
			if n > c.limits.MaxRecords {
				return fmt.Sprintf("parameter %s=%d exceeds the max of %d records", k, n, c.limits.MaxRecords)
			}
		}
	}

	if v, ok := a.Params["amount"]; ok && c.limits.MaxAmount > 0 {
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return "parameter amount is not a number"
		}
		if n < 0 {
			return fmt.Sprintf("amount %.2f can't be negative", n)
		}
		if n > c.limits.MaxAmount {
			return fmt.Sprintf("amount %.2f exceeds the max of %.2f", n, c.limits.MaxAmount)
		}
	}

	if s, ok := a.Params["script"]; ok && c.limits.MaxScriptLength > 0 && len(s) > c.limits.MaxScriptLength {
		return fmt.Sprintf("script length %d exceeds the max of %d", len(s), c.limits.MaxScriptLength)
	}

	return ""
}

// buildConstraints returns the static constraints, rate limits last, and the rate
// limits on their own so admission can take their tokens.
func buildConstraints(p model.SafetyPolicy) ([]constraint, []*rateConstraint, error) {
	var cs []constraint
	for _, r := range p.DenyList {
		c, err := newDenyConstraint(r)
		if err != nil {
			return nil, nil, err
		}
		cs = append(cs, c)
	}
	if len(p.Scope.Rules) > 0 || p.Scope.DefaultDeny {
		cs = append(cs, &scopeConstraint{matcher: newScopeMatcher(p.Scope)})
	}
	cs = append(cs, &resourceConstraint{limits: p.Resources})

	var rcs []*rateConstraint
	for _, r := range p.RateLimits {
		c, err := newRateConstraint(r)
		if err != nil {
			return nil, nil, err
		}
		cs = append(cs, c)
		rcs = append(rcs, c)
	}

	return cs, rcs, nil
}
