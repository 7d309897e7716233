package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/autotask/internal/model"
)

// TemplateProposer proposes a fixed step template per intent type, filled with
// the classification entities. It never calls a model.
type TemplateProposer struct{}

// NewTemplateProposer returns a new template proposer.
func NewTemplateProposer() TemplateProposer { return TemplateProposer{} }

var cronByFrequency = map[string]string{
	"hourly":  "0 * * * *",
	"daily":   "0 9 * * *",
	"weekly":  "0 9 * * 1",
	"monthly": "0 9 1 * *",
}

// Propose satisfies Proposer.
func (TemplateProposer) Propose(ctx context.Context, req ProposeRequest) ([]ProposedStep, error) {
	c := req.Classification
	ent := c.Entities
	name := c.SuggestedName
	if name == "" {
		name = strings.ToLower(string(c.IntentType))
	}
	text := c.OriginalText

	switch c.IntentType {
	case model.IntentTypeAppCreate:
		return []ProposedStep{
			{Name: "gather requirements", Action: model.ActionReadData, Params: map[string]string{"source": "requirements", "query": text}},
			{Name: "create app", Action: model.ActionCreateApp, Params: map[string]string{"name": name, "description": text}},
			{Name: "notify", Action: model.ActionNotifyUser, Params: map[string]string{"message": fmt.Sprintf("App %s created", name)}},
		}, nil

	case model.IntentTypeTodo:
		steps := []ProposedStep{
			{Name: "create todo", Action: model.ActionCreateRecord, Params: map[string]string{"table": "todos", "title": text}},
		}
		if at := ent["time"]; at != "" {
			steps = append(steps, ProposedStep{Name: "remind", Action: model.ActionSetReminder, Params: map[string]string{"message": text, "at": at}})
		}
		return steps, nil

	case model.IntentTypeMonitor:
		cond := firstNonEmpty(ent["condition"], text)
		return []ProposedStep{
			{Name: "watch condition", Action: model.ActionMonitorCondition, Params: map[string]string{"condition": cond}},
			{Name: "alert", Action: model.ActionNotifyUser, Params: map[string]string{"message": fmt.Sprintf("Condition met: %s", cond)}},
		}, nil

	case model.IntentTypeAction:
		var act ProposedStep
		switch {
		case ent["recipient"] != "":
			act = ProposedStep{Name: "send email", Action: model.ActionSendEmail, Params: map[string]string{
				"to": ent["recipient"], "subject": firstNonEmpty(ent["subject"], name), "body": text,
			}}
		case ent["url"] != "":
			act = ProposedStep{Name: "call endpoint", Action: model.ActionHTTPRequest, Params: map[string]string{"url": ent["url"], "method": "POST"}}
		default:
			act = ProposedStep{Name: "record action", Action: model.ActionCreateRecord, Params: map[string]string{"table": "actions", "title": text}}
		}
		return []ProposedStep{
			{Name: "load context", Action: model.ActionReadData, Params: map[string]string{"source": firstNonEmpty(ent["target"], "context")}},
			act,
			{Name: "notify", Action: model.ActionNotifyUser, Params: map[string]string{"message": fmt.Sprintf("Done: %s", text)}},
		}, nil

	case model.IntentTypeSchedule:
		cron, ok := cronByFrequency[strings.ToLower(ent["frequency"])]
		if !ok {
			cron = cronByFrequency["daily"]
		}
		return []ProposedStep{
			{Name: "schedule job", Action: model.ActionScheduleJob, Params: map[string]string{"cron": cron, "job": name, "description": text}},
			{Name: "notify", Action: model.ActionNotifyUser, Params: map[string]string{"message": fmt.Sprintf("Scheduled %s (%s)", name, cron)}},
		}, nil

	case model.IntentTypeGoal:
		return []ProposedStep{
			{Name: "measure baseline", Action: model.ActionReadData, Params: map[string]string{"source": "metrics", "query": text}},
			{Name: "choose approach", Action: model.ActionAskDecision, Decision: &model.DecisionSpec{
				Question: fmt.Sprintf("How should I pursue %q?", text),
				Options: []model.DecisionOption{
					{ID: "track", Label: "Track progress weekly"},
					{ID: "plan", Label: "Draft an action plan"},
				},
				Fallback: "track",
			}},
			{Name: "record goal", Action: model.ActionCreateRecord, Params: map[string]string{"table": "goals", "title": text}},
		}, nil

	case model.IntentTypeTool:
		return []ProposedStep{
			{Name: "create tool", Action: model.ActionCreateTool, Params: map[string]string{"name": name, "trigger": text}},
			{Name: "notify", Action: model.ActionNotifyUser, Params: map[string]string{"message": fmt.Sprintf("Tool %s ready", name)}},
		}, nil
	}

	return nil, fmt.Errorf("no template for intent type %s", c.IntentType)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
