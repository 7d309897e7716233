package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/slok/autotask/internal/llm"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
)

// LLMProposerConfig is the configuration of the language model backed proposer.
type LLMProposerConfig struct {
	Model  llm.Client
	Logger log.Logger
}

func (c *LLMProposerConfig) defaults() error {
	if c.Model == nil {
		return fmt.Errorf("model is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "plan.LLMProposer"})
	return nil
}

// LLMProposer asks a language model for the plan steps.
type LLMProposer struct {
	model  llm.Client
	logger log.Logger
}

// NewLLMProposer returns a new language model proposer.
func NewLLMProposer(cfg LLMProposerConfig) (*LLMProposer, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &LLMProposer{model: cfg.Model, logger: cfg.Logger}, nil
}

type proposal struct {
	Steps []struct {
		Name        string         `json:"name"`
		Action      string         `json:"action"`
		Params      map[string]any `json:"params"`
		Risk        string         `json:"risk"`
		Retryable   *bool          `json:"retryable"`
		MaxAttempts int            `json:"max_attempts"`
		Decision    *struct {
			Question string                 `json:"question"`
			Options  []model.DecisionOption `json:"options"`
			Timeout  string                 `json:"timeout"`
			Fallback string                 `json:"fallback"`
		} `json:"decision"`
	} `json:"steps"`
}

// Propose satisfies Proposer.
func (p *LLMProposer) Propose(ctx context.Context, req ProposeRequest) ([]ProposedStep, error) {
	out, err := p.model.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: proposerSystemPrompt()},
			{Role: llm.RoleUser, Content: proposerUserPrompt(req)},
		},
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	raw, err := llm.ExtractJSON(out)
	if err != nil {
		return nil, err
	}

	var prop proposal
	if err := json.Unmarshal([]byte(raw), &prop); err != nil {
		return nil, fmt.Errorf("could not parse model plan: %w", err)
	}

	steps := make([]ProposedStep, 0, len(prop.Steps))
	for i, s := range prop.Steps {
		ps := ProposedStep{
			Name:        s.Name,
			Action:      model.ActionType(strings.ToLower(strings.TrimSpace(s.Action))),
			Params:      map[string]string{},
			Retryable:   s.Retryable,
			MaxAttempts: s.MaxAttempts,
		}
		for k, v := range s.Params {
			ps.Params[k] = paramString(v)
		}
		if s.Risk != "" {
			r, err := model.ParseRiskLevel(s.Risk)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			ps.Risk = r
		}
		if s.Decision != nil {
			d := &model.DecisionSpec{Question: s.Decision.Question, Options: s.Decision.Options, Fallback: s.Decision.Fallback}
			if s.Decision.Timeout != "" {
				d.Timeout, err = time.ParseDuration(s.Decision.Timeout)
				if err != nil {
					return nil, fmt.Errorf("step %d: invalid decision timeout: %w", i, err)
				}
			}
			ps.Decision = d
		}
		steps = append(steps, ps)
	}

	p.logger.Debugf("Model proposed %d steps", len(steps))
	return steps, nil
}

func paramString(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case float64, bool:
		return fmt.Sprint(tv)
	default:
		data, err := json.Marshal(tv)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func proposerSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You decompose an automation request into ordered atomic steps.\n\nACTIONS (name, risk, required params):\n")
	for _, t := range model.ActionTypes() {
		spec, _ := model.LookupAction(t)
		fmt.Fprintf(&sb, "- %s (%s): %s", t, spec.Risk, spec.Description)
		if len(spec.RequiredParams) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(spec.RequiredParams, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(`
Use only the actions above. ask_decision steps need a "decision" with a question and at least two options.

Answer with a single JSON object and nothing else:
{
  "steps": [
    {
      "name": "short step name",
      "action": "action_name",
      "params": {"key": "value"},
      "risk": "low|medium|high|critical",
      "decision": {"question": "...", "options": [{"id": "a", "label": "..."}], "timeout": "1h", "fallback": ""}
    }
  ]
}`)
	return sb.String()
}

func proposerUserPrompt(req ProposeRequest) string {
	c := req.Classification
	var sb strings.Builder
	fmt.Fprintf(&sb, "INTENT TYPE: %s\nREQUEST: %s\n", c.IntentType, c.OriginalText)
	if c.SuggestedName != "" {
		fmt.Fprintf(&sb, "NAME: %s\n", c.SuggestedName)
	}
	writeSorted(&sb, "ENTITIES", c.Entities)
	writeSorted(&sb, "CONTEXT", req.Context)
	return sb.String()
}

func writeSorted(sb *strings.Builder, title string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(sb, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(sb, "- %s: %s\n", k, m[k])
	}
}
