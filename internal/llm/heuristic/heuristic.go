// Package heuristic is an offline keyword model that answers intent classification
// prompts without a remote language model.
package heuristic

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/slok/autotask/internal/llm"
	"github.com/slok/autotask/internal/model"
)

type rule struct {
	intent     model.IntentType
	confidence float64
	keywords   []string
}

// Rules are evaluated in order, the first match wins and later matches become alternatives.
var rules = []rule{
	{model.IntentTypeAppCreate, 0.75, []string{"create app", "build app", "make app", "crm", "management system", "inventory", "booking"}},
	{model.IntentTypeTool, 0.70, []string{"when i say", "create command", "shortcut"}},
	{model.IntentTypeMonitor, 0.70, []string{"alert when", "notify if", "notify me if", "watch for", "monitor"}},
	{model.IntentTypeSchedule, 0.70, []string{"every day", "every week", "daily", "weekly", "monthly", "at 9", "at 8"}},
	{model.IntentTypeTodo, 0.70, []string{"remind", "call ", "tomorrow", "don't forget"}},
	{model.IntentTypeAction, 0.65, []string{"send email", "send an email", "delete", "update all", "export", "deploy", "transfer"}},
	{model.IntentTypeGoal, 0.60, []string{"increase", "improve", "achieve", "grow by"}},
}

var (
	emailRe     = regexp.MustCompile(`[\w.+-]+@[\w-]+(\.[\w-]+)+`)
	timeRe      = regexp.MustCompile(`\bat (\d{1,2}(:\d{2})?\s*(am|pm)?)`)
	frequencyRe = regexp.MustCompile(`\b(daily|weekly|monthly|every day|every week|every month)\b`)
	urlRe       = regexp.MustCompile(`https?://[^\s"']+`)
	wordRe      = regexp.MustCompile(`[a-z0-9]+`)
)

// Answer is the JSON document the model returns.
type Answer struct {
	IntentType            string            `json:"intent_type"`
	Confidence            float64           `json:"confidence"`
	Entities              map[string]string `json:"entities,omitempty"`
	SuggestedName         string            `json:"suggested_name,omitempty"`
	RequiresClarification bool              `json:"requires_clarification"`
	ClarificationQuestion string            `json:"clarification_question,omitempty"`
	Alternatives          []AnswerAlt       `json:"alternatives,omitempty"`
}

// AnswerAlt is an alternative interpretation.
type AnswerAlt struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Client is a llm.Client that classifies the last user message with keyword rules.
type Client struct{}

// NewClient returns a new heuristic client.
func NewClient() Client { return Client{} }

// Complete satisfies llm.Client.
func (Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ans := Classify(req.UserText())
	data, err := json.Marshal(ans)
	if err != nil {
		return "", fmt.Errorf("could not marshal answer: %w", err)
	}

	return string(data), nil
}

// Classify classifies text with the keyword rules.
func Classify(text string) Answer {
	lower := strings.ToLower(text)

	ans := Answer{IntentType: string(model.IntentTypeUnknown), Confidence: 0.3}
	matched := false
	for _, r := range rules {
		if !containsAny(lower, r.keywords) {
			continue
		}
		if !matched {
			ans.IntentType = string(r.intent)
			ans.Confidence = r.confidence
			matched = true
			continue
		}
		ans.Alternatives = append(ans.Alternatives, AnswerAlt{Type: string(r.intent), Confidence: 0.3})
	}

	if !matched {
		ans.RequiresClarification = true
		ans.ClarificationQuestion = "Could you please clarify what you'd like me to do?"
		return ans
	}

	ans.Entities = entities(text, lower)
	ans.SuggestedName = suggestedName(lower)
	return ans
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func entities(text, lower string) map[string]string {
	ents := map[string]string{}
	if m := emailRe.FindString(text); m != "" {
		ents["recipient"] = m
	}
	if m := urlRe.FindString(text); m != "" {
		ents["url"] = m
	}
	if m := timeRe.FindStringSubmatch(lower); m != nil {
		ents["time"] = strings.TrimSpace(m[1])
	}
	if m := frequencyRe.FindString(lower); m != "" {
		ents["frequency"] = m
	}
	return ents
}

func suggestedName(lower string) string {
	words := wordRe.FindAllString(lower, -1)
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, "-")
}
