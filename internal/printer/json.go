package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/autotask/internal/model"
)

// JSONPrinter prints autotask information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// taskItem represents a task in the list output (subset of fields).
type taskItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	Mode        string    `json:"mode"`
	Priority    string    `json:"priority"`
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	Progress    float64   `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
}

// taskOutput represents the full task status output.
type taskOutput struct {
	taskItem
	SessionID       string             `json:"session_id,omitempty"`
	Intent          string             `json:"intent"`
	Interrupt       string             `json:"interrupt,omitempty"`
	Error           string             `json:"error,omitempty"`
	StartedAt       *time.Time         `json:"started_at"`
	CompletedAt     *time.Time         `json:"completed_at"`
	Plan            *planOutput        `json:"plan,omitempty"`
	Steps           []stepResultOutput `json:"step_results"`
	PendingApproval *approvalOutput    `json:"pending_approval,omitempty"`
	PendingDecision *decisionOutput    `json:"pending_decision,omitempty"`
}

type planOutput struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Risk   string       `json:"risk"`
	Steps  []stepOutput `json:"steps"`
}

type stepOutput struct {
	Index  int               `json:"index"`
	Name   string            `json:"name"`
	Action string            `json:"action"`
	Risk   string            `json:"risk"`
	Params map[string]string `json:"params,omitempty"`
}

type stepResultOutput struct {
	StepIndex int               `json:"step_index"`
	Action    string            `json:"action"`
	Status    string            `json:"status"`
	Attempts  int               `json:"attempts"`
	Output    map[string]string `json:"output,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type classificationOutput struct {
	ID                    string            `json:"id"`
	IntentType            string            `json:"intent_type"`
	Confidence            float64           `json:"confidence"`
	SuggestedName         string            `json:"suggested_name,omitempty"`
	Entities              map[string]string `json:"entities,omitempty"`
	Alternatives          []alternativeItem `json:"alternatives,omitempty"`
	RequiresClarification bool              `json:"requires_clarification"`
	ClarificationQuestion string            `json:"clarification_question,omitempty"`
}

type alternativeItem struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type approvalOutput struct {
	ID                string     `json:"id"`
	Kind              string     `json:"kind"`
	TaskID            string     `json:"task_id"`
	StepIndex         int        `json:"step_index"`
	Action            string     `json:"action"`
	ActionDescription string     `json:"action_description"`
	Risk              string     `json:"risk"`
	Status            string     `json:"status"`
	Level             int        `json:"level"`
	Levels            int        `json:"levels"`
	DecidedBy         string     `json:"decided_by,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
	ExpiresAt         time.Time  `json:"expires_at"`
}

type decisionOutput struct {
	ID             string                 `json:"id"`
	Kind           string                 `json:"kind"`
	TaskID         string                 `json:"task_id"`
	StepIndex      int                    `json:"step_index"`
	Question       string                 `json:"question"`
	Options        []model.DecisionOption `json:"options"`
	Status         string                 `json:"status"`
	SelectedOption string                 `json:"selected_option,omitempty"`
	Fallback       string                 `json:"fallback,omitempty"`
	DecidedBy      string                 `json:"decided_by,omitempty"`
	DecidedAt      *time.Time             `json:"decided_at,omitempty"`
	ExpiresAt      time.Time              `json:"expires_at"`
}

type auditItem struct {
	ID        string                  `json:"id"`
	TaskID    string                  `json:"task_id"`
	StepIndex int                     `json:"step_index"`
	Action    string                  `json:"action"`
	Outcome   string                  `json:"outcome"`
	DryRun    bool                    `json:"dry_run"`
	Risk      model.RiskAssessment    `json:"risk"`
	Checks    []model.ConstraintCheck `json:"checks,omitempty"`
	Error     string                  `json:"error,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintTaskList prints tasks in JSON format with a subset of fields.
func (j *JSONPrinter) PrintTaskList(tasks []model.AutoTask) error {
	items := make([]taskItem, len(tasks))
	for i, t := range tasks {
		items[i] = newTaskItem(t)
	}

	return j.encode(items)
}

// PrintTaskDetail prints detailed task status in JSON format.
func (j *JSONPrinter) PrintTaskDetail(d TaskDetail) error {
	task := d.Task
	output := taskOutput{
		taskItem:    newTaskItem(task),
		SessionID:   task.SessionID,
		Intent:      task.Intent,
		Interrupt:   string(task.Interrupt),
		Error:       task.Error,
		StartedAt:   utcPtr(task.StartedAt),
		CompletedAt: utcPtr(task.CompletedAt),
		Steps:       []stepResultOutput{},
	}

	for _, sr := range task.StepResults {
		output.Steps = append(output.Steps, stepResultOutput{
			StepIndex: sr.StepIndex,
			Action:    string(sr.Action),
			Status:    string(sr.Status),
			Attempts:  sr.Attempts,
			Output:    sr.Output,
			Error:     sr.Error,
		})
	}

	if p := d.Plan; p != nil {
		po := &planOutput{ID: p.ID, Status: string(p.Status), Risk: string(p.Risk)}
		for _, s := range p.Steps {
			po.Steps = append(po.Steps, stepOutput{
				Index:  s.Index,
				Name:   s.Name,
				Action: string(s.Action),
				Risk:   string(s.Risk),
				Params: s.Params,
			})
		}
		output.Plan = po
	}

	if d.PendingApproval != nil {
		a := newApprovalOutput(*d.PendingApproval)
		output.PendingApproval = &a
	}
	if d.PendingDecision != nil {
		dec := newDecisionOutput(*d.PendingDecision)
		output.PendingDecision = &dec
	}

	return j.encode(output)
}

// PrintClassification prints an intent classification in JSON format.
func (j *JSONPrinter) PrintClassification(c model.IntentClassification) error {
	output := classificationOutput{
		ID:                    c.ID,
		IntentType:            string(c.IntentType),
		Confidence:            c.Confidence,
		SuggestedName:         c.SuggestedName,
		Entities:              c.Entities,
		RequiresClarification: c.RequiresClarification,
		ClarificationQuestion: c.ClarificationQuestion,
	}
	for _, alt := range c.Alternatives {
		output.Alternatives = append(output.Alternatives, alternativeItem{Type: string(alt.Type), Confidence: alt.Confidence})
	}

	return j.encode(output)
}

// PrintPending prints the pending gates in JSON format.
func (j *JSONPrinter) PrintPending(approvals []model.TaskApproval, decisions []model.TaskDecision) error {
	output := struct {
		Approvals []approvalOutput `json:"approvals"`
		Decisions []decisionOutput `json:"decisions"`
	}{
		Approvals: make([]approvalOutput, 0, len(approvals)),
		Decisions: make([]decisionOutput, 0, len(decisions)),
	}
	for _, a := range approvals {
		output.Approvals = append(output.Approvals, newApprovalOutput(a))
	}
	for _, d := range decisions {
		output.Decisions = append(output.Decisions, newDecisionOutput(d))
	}

	return j.encode(output)
}

// PrintApproval prints an approval in JSON format.
func (j *JSONPrinter) PrintApproval(a model.TaskApproval) error {
	return j.encode(newApprovalOutput(a))
}

// PrintDecision prints a decision in JSON format.
func (j *JSONPrinter) PrintDecision(d model.TaskDecision) error {
	return j.encode(newDecisionOutput(d))
}

// PrintAudit prints safety audit entries in JSON format.
func (j *JSONPrinter) PrintAudit(entries []model.SafetyAuditEntry) error {
	items := make([]auditItem, len(entries))
	for i, e := range entries {
		items[i] = auditItem{
			ID:        e.ID,
			TaskID:    e.TaskID,
			StepIndex: e.StepIndex,
			Action:    string(e.Action),
			Outcome:   string(e.Outcome),
			DryRun:    e.DryRun,
			Risk:      e.Risk,
			Checks:    e.ConstraintChecks,
			Error:     e.Error,
			CreatedAt: e.CreatedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTaskItem(t model.AutoTask) taskItem {
	return taskItem{
		ID:          t.ID,
		Title:       t.Title,
		Status:      string(t.Status),
		Mode:        string(t.Mode),
		Priority:    string(t.Priority),
		CurrentStep: t.CurrentStep,
		TotalSteps:  t.TotalSteps,
		Progress:    t.Progress,
		CreatedAt:   t.CreatedAt.UTC(),
	}
}

func newApprovalOutput(a model.TaskApproval) approvalOutput {
	return approvalOutput{
		ID:                a.ID,
		Kind:              "approval",
		TaskID:            a.TaskID,
		StepIndex:         a.StepIndex,
		Action:            string(a.Action),
		ActionDescription: a.ActionDescription,
		Risk:              string(a.Risk),
		Status:            string(a.Status),
		Level:             a.CurrentLevel + 1,
		Levels:            len(a.Chain.Levels),
		DecidedBy:         a.DecidedBy,
		Reason:            a.DecisionReason,
		DecidedAt:         utcPtr(a.DecidedAt),
		ExpiresAt:         a.ExpiresAt.UTC(),
	}
}

func newDecisionOutput(d model.TaskDecision) decisionOutput {
	return decisionOutput{
		ID:             d.ID,
		Kind:           "decision",
		TaskID:         d.TaskID,
		StepIndex:      d.StepIndex,
		Question:       d.Question,
		Options:        d.Options,
		Status:         string(d.Status),
		SelectedOption: d.SelectedOption,
		Fallback:       d.Fallback,
		DecidedBy:      d.DecidedBy,
		DecidedAt:      utcPtr(d.DecidedAt),
		ExpiresAt:      d.ExpiresAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
