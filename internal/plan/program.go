package plan

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/autotask/internal/model"
)

const programVersion = "autotask/v1"

type programDoc struct {
	Version    string        `yaml:"version"`
	Plan       string        `yaml:"plan"`
	Intent     string        `yaml:"intent"`
	IntentType string        `yaml:"intentType"`
	Steps      []programStep `yaml:"steps"`
}

type programStep struct {
	Index       int               `yaml:"index"`
	Name        string            `yaml:"name,omitempty"`
	Action      string            `yaml:"action"`
	Risk        string            `yaml:"risk"`
	Params      map[string]string `yaml:"params,omitempty"`
	Retryable   bool              `yaml:"retryable"`
	MaxAttempts int               `yaml:"maxAttempts,omitempty"`
	Decision    *programDecision  `yaml:"decision,omitempty"`
}

type programDecision struct {
	Question string                 `yaml:"question"`
	Options  []model.DecisionOption `yaml:"options"`
	Timeout  string                 `yaml:"timeout,omitempty"`
	Fallback string                 `yaml:"fallback,omitempty"`
}

// RenderProgram renders the plan into the program document handed to the runtime.
func RenderProgram(p model.ExecutionPlan) (string, error) {
	doc := programDoc{
		Version:    programVersion,
		Plan:       p.ID,
		Intent:     p.Intent,
		IntentType: string(p.IntentType),
	}
	for _, s := range p.Steps {
		ps := programStep{
			Index:       s.Index,
			Name:        s.Name,
			Action:      string(s.Action),
			Risk:        string(s.Risk),
			Params:      s.Params,
			Retryable:   s.Retryable,
			MaxAttempts: s.MaxAttempts,
		}
		if d := s.Decision; d != nil {
			ps.Decision = &programDecision{Question: d.Question, Options: d.Options, Fallback: d.Fallback}
			if d.Timeout > 0 {
				ps.Decision.Timeout = d.Timeout.String()
			}
		}
		doc.Steps = append(doc.Steps, ps)
	}

	var b bytes.Buffer
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("could not render program: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("could not render program: %w", err)
	}

	return b.String(), nil
}

// ParseProgram compiles a program document back into validated steps.
func ParseProgram(program string) ([]model.Step, error) {
	dec := yaml.NewDecoder(bytes.NewBufferString(program))
	dec.KnownFields(true)

	var doc programDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("could not parse program: %w", err)
	}
	if doc.Version != programVersion {
		return nil, fmt.Errorf("unsupported program version %q", doc.Version)
	}
	if len(doc.Steps) == 0 {
		return nil, fmt.Errorf("program has no steps")
	}

	steps := make([]model.Step, 0, len(doc.Steps))
	for i, ps := range doc.Steps {
		s := model.Step{
			Index:       ps.Index,
			Name:        ps.Name,
			Action:      model.ActionType(ps.Action),
			Risk:        model.RiskLevel(ps.Risk),
			Params:      ps.Params,
			Retryable:   ps.Retryable,
			MaxAttempts: ps.MaxAttempts,
		}
		if s.Params == nil {
			s.Params = map[string]string{}
		}
		if pd := ps.Decision; pd != nil {
			s.Decision = &model.DecisionSpec{Question: pd.Question, Options: pd.Options, Fallback: pd.Fallback}
			if pd.Timeout != "" {
				t, err := time.ParseDuration(pd.Timeout)
				if err != nil {
					return nil, fmt.Errorf("step %d: invalid decision timeout: %w", i, err)
				}
				s.Decision.Timeout = t
			}
		}
		if s.Index != i {
			return nil, fmt.Errorf("step %d has index %d: %w", i, s.Index, model.ErrNotValid)
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}

	return steps, nil
}
