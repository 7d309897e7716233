package safety

import (
	"net/url"
	"strings"

	"github.com/slok/autotask/internal/model"
)

// scopeMatcher evaluates domain scope rules, first matching rule wins.
type scopeMatcher struct {
	defaultDeny bool
	rules       []model.ScopeRule
}

func newScopeMatcher(p model.ScopePolicy) *scopeMatcher {
	return &scopeMatcher{defaultDeny: p.DefaultDeny, rules: p.Rules}
}

// allowDomain returns true if the domain is in scope.
func (m *scopeMatcher) allowDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))

	for _, r := range m.rules {
		if matchDomain(r.Domain, domain) {
			return r.Allow
		}
	}

	return !m.defaultDeny
}

// matchDomain supports exact match and wildcard prefix ("*.example.com").
// A wildcard matches any subdomain but not the base domain itself.
func matchDomain(pattern, domain string) bool {
	pattern = strings.ToLower(pattern)

	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(domain, pattern[1:])
	}

	return pattern == domain
}

// actionDomains returns the external domains an action reaches.
func actionDomains(a model.Action) []string {
	var domains []string
	switch a.Type {
	case model.ActionHTTPRequest:
		u, err := url.Parse(a.Params["url"])
		if err != nil || u.Hostname() == "" {
			// Unparsable URLs are checked as is so they never match an allow rule by accident.
			return []string{a.Params["url"]}
		}
		domains = append(domains, u.Hostname())
	case model.ActionSendEmail:
		for _, to := range strings.Split(a.Params["to"], ",") {
			to = strings.TrimSpace(to)
			if i := strings.LastIndex(to, "@"); i >= 0 {
				domains = append(domains, to[i+1:])
			} else if to != "" {
				domains = append(domains, to)
			}
		}
	}
	return domains
}
