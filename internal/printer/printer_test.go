package printer_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/printer"
)

var t0 = time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)

func taskDetailFixture() printer.TaskDetail {
	started := t0.Add(time.Minute)
	return printer.TaskDetail{
		Task: model.AutoTask{
			ID:          "01J0TASK",
			Title:       "Improve sales",
			Intent:      "improve my sales",
			Status:      model.TaskStatusWaitingApproval,
			Mode:        model.ExecutionModeSupervised,
			Priority:    model.TaskPriorityNormal,
			PlanID:      "01J0PLAN",
			CurrentStep: 1,
			TotalSteps:  3,
			Progress:    1.0 / 3,
			CreatedAt:   t0,
			StartedAt:   &started,
			StepResults: []model.StepResult{
				{StepIndex: 0, Action: model.ActionReadData, Status: model.StepStatusSucceeded, Attempts: 1},
			},
		},
		Plan: &model.ExecutionPlan{
			ID:     "01J0PLAN",
			Status: model.PlanStatusExecuting,
			Risk:   model.RiskLevelMedium,
			Steps: []model.Step{
				{Index: 0, Name: "Read sales", Action: model.ActionReadData, Risk: model.RiskLevelLow},
				{Index: 1, Name: "Pick approach", Action: model.ActionAskDecision, Risk: model.RiskLevelLow},
				{Index: 2, Name: "Record plan", Action: model.ActionCreateRecord, Risk: model.RiskLevelMedium},
			},
		},
		PendingDecision: &model.TaskDecision{
			ID:        "01J0DEC",
			TaskID:    "01J0TASK",
			StepIndex: 1,
			Question:  "How do you want to proceed?",
			Options:   []model.DecisionOption{{ID: "track", Label: "Track"}, {ID: "plan", Label: "Plan"}},
			Status:    model.DecisionStatusPending,
			Fallback:  "track",
			ExpiresAt: t0.Add(24 * time.Hour),
		},
	}
}

func approvalFixture() model.TaskApproval {
	return model.TaskApproval{
		ID:                "01J0APR",
		TaskID:            "01J0TASK",
		StepIndex:         model.PlanGateStep,
		Action:            model.ActionCreateRecord,
		ActionDescription: "execute plan",
		Risk:              model.RiskLevelMedium,
		Status:            model.ApprovalStatusPending,
		Chain:             model.ApprovalChain{Levels: []model.ApprovalLevel{{}, {}}},
		ExpiresAt:         t0.Add(time.Hour),
	}
}

func TestTablePrinterPrintTaskDetail(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintTaskDetail(taskDetailFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ID:         01J0TASK")
	assert.Contains(t, out, "Status:     waiting_approval")
	assert.Contains(t, out, "Progress:   1/3 (33%)")
	assert.Contains(t, out, "Started:    2026-01-30 10:01:00 UTC")
	assert.Contains(t, out, "Plan 01J0PLAN (executing, medium risk)")
	assert.Regexp(t, `0\s+Read sales\s+read_data\s+low\s+succeeded`, out)
	assert.Regexp(t, `1\s+Pick approach\s+ask_decision\s+low\s+current`, out)
	assert.Regexp(t, `2\s+Record plan\s+create_record\s+medium\s+-`, out)
	assert.Contains(t, out, "Waiting on decision 01J0DEC: How do you want to proceed?")
	assert.NotContains(t, out, "Finished:")
}

func TestTablePrinterPrintTaskList(t *testing.T) {
	tests := map[string]struct {
		tasks  []model.AutoTask
		expOut []string
	}{
		"No tasks should print nothing.": {
			tasks: nil,
		},

		"Tasks should be printed with a header.": {
			tasks: []model.AutoTask{
				{ID: "t1", Title: "Call mom", Status: model.TaskStatusCompleted, Mode: model.ExecutionModeSupervised, CurrentStep: 1, TotalSteps: 1, Progress: 1, CreatedAt: t0},
				{ID: "t2", Title: strings.Repeat("a", 60), Status: model.TaskStatusReady, Mode: model.ExecutionModeManual, TotalSteps: 2, CreatedAt: t0},
			},
			expOut: []string{
				"ID", "TITLE", "STATUS", "PROGRESS",
				"Call mom", "completed", "1/1 (100%)",
				strings.Repeat("a", 37) + "...", "ready", "0/2 (0%)",
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			p := printer.NewTablePrinter(&buf)

			err := p.PrintTaskList(test.tasks)
			require.NoError(t, err)

			if len(test.expOut) == 0 {
				assert.Empty(t, buf.String())
				return
			}
			for _, exp := range test.expOut {
				assert.Contains(t, buf.String(), exp)
			}
		})
	}
}

func TestTablePrinterPrintPending(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	dec := *taskDetailFixture().PendingDecision
	err := p.PrintPending([]model.TaskApproval{approvalFixture()}, []model.TaskDecision{dec})
	require.NoError(t, err)

	out := buf.String()
	assert.Regexp(t, `approval\s+01J0APR\s+01J0TASK\s+plan\s+execute plan \(medium risk, level 1/2\)`, out)
	assert.Regexp(t, `decision\s+01J0DEC\s+01J0TASK\s+1\s+How do you want to proceed\? \[track\|plan\]`, out)
}

func TestTablePrinterPrintClassification(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintClassification(model.IntentClassification{
		ID:                    "c1",
		IntentType:            model.IntentTypeUnknown,
		Confidence:            0.2,
		Entities:              map[string]string{"when": "tomorrow", "who": "mom"},
		Alternatives:          []model.IntentAlternative{{Type: model.IntentTypeTodo, Confidence: 0.15}},
		RequiresClarification: true,
		ClarificationQuestion: "What do you want me to do?",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Intent:      UNKNOWN")
	assert.Contains(t, out, "Confidence:  0.20")
	assert.Contains(t, out, "Entities:    when=tomorrow, who=mom")
	assert.Contains(t, out, "Alternative: TODO (0.15)")
	assert.Contains(t, out, "Question:    What do you want me to do?")
}

func TestTablePrinterPrintAudit(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintAudit([]model.SafetyAuditEntry{
		{
			StepIndex: 0,
			Action:    model.ActionReadData,
			Outcome:   model.SafetyOutcomeAllowed,
			Risk:      model.RiskAssessment{Level: model.RiskLevelLow, Score: 10},
			CreatedAt: t0,
		},
		{
			StepIndex: 2,
			Action:    model.ActionTransferFunds,
			Outcome:   model.SafetyOutcomeBlocked,
			DryRun:    true,
			Risk:      model.RiskAssessment{Level: model.RiskLevelCritical, Score: 95},
			ConstraintChecks: []model.ConstraintCheck{
				{Name: "budget", Passed: true},
				{Name: "forbidden-actions", Passed: false, Message: "action is forbidden"},
			},
			CreatedAt: t0,
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Regexp(t, `0\s+read_data\s+allowed\s+low \(10\)`, out)
	assert.Regexp(t, `2\s+transfer_funds\s+blocked \(dry run\)\s+critical \(95\)\s+forbidden-actions: action is forbidden`, out)
}

func TestJSONPrinterPrintTaskDetail(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintTaskDetail(taskDetailFixture())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "01J0TASK", got["id"])
	assert.Equal(t, "waiting_approval", got["status"])
	assert.Equal(t, float64(3), got["total_steps"])
	assert.Nil(t, got["completed_at"])

	plan := got["plan"].(map[string]any)
	assert.Equal(t, "medium", plan["risk"])
	assert.Len(t, plan["steps"], 3)
	assert.Len(t, got["step_results"], 1)

	dec := got["pending_decision"].(map[string]any)
	assert.Equal(t, "decision", dec["kind"])
	assert.Equal(t, "track", dec["fallback"])
	assert.NotContains(t, got, "pending_approval")
}

func TestJSONPrinterPrintPending(t *testing.T) {
	tests := map[string]struct {
		approvals []model.TaskApproval
		decisions []model.TaskDecision
		expOut    string
	}{
		"No pending gates should print empty lists.": {
			expOut: `{
  "approvals": [],
  "decisions": []
}
`,
		},

		"Pending approvals should print the chain level.": {
			approvals: []model.TaskApproval{approvalFixture()},
			expOut: `{
  "approvals": [
    {
      "id": "01J0APR",
      "kind": "approval",
      "task_id": "01J0TASK",
      "step_index": -1,
      "action": "create_record",
      "action_description": "execute plan",
      "risk": "medium",
      "status": "pending",
      "level": 1,
      "levels": 2,
      "expires_at": "2026-01-30T11:00:00Z"
    }
  ],
  "decisions": []
}
`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			p := printer.NewJSONPrinter(&buf)

			err := p.PrintPending(test.approvals, test.decisions)
			require.NoError(t, err)
			assert.Equal(t, test.expOut, buf.String())
		})
	}
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}

func TestJSONPrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"message": "ok"}`, buf.String())
}
