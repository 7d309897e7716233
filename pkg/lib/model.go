package lib

import (
	"errors"
	"time"

	"github.com/slok/autotask/internal/model"
)

var (
	// ErrNotFound is returned when a task, approval, decision or classification does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource with the same ID already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned on invalid input or an operation not allowed in the
	// current state (e.g. resuming a task that isn't paused).
	ErrNotValid = errors.New("not valid")
	// ErrConflict is returned when the task changed concurrently, the operation can be retried.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyResolved is returned when voting or answering a gate that was already resolved.
	ErrAlreadyResolved = errors.New("already resolved")
)

// TaskStatus is the lifecycle state of a task.
//
//	pending -> ready -> running -> completed
//	                       |  \-> waiting_approval -> running
//	                       |  \-> paused -> running
//	                       \-> failed | cancelled
type TaskStatus string

const (
	TaskStatusPending         TaskStatus = "pending"
	TaskStatusReady           TaskStatus = "ready"
	TaskStatusRunning         TaskStatus = "running"
	TaskStatusPaused          TaskStatus = "paused"
	TaskStatusWaitingApproval TaskStatus = "waiting_approval"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusFailed          TaskStatus = "failed"
	TaskStatusCancelled       TaskStatus = "cancelled"
)

// ExecutionMode sets how much human involvement a task needs.
type ExecutionMode string

const (
	// ExecutionModeAutonomous only asks approval for critical risk steps.
	ExecutionModeAutonomous ExecutionMode = "autonomous"
	// ExecutionModeSupervised asks approval for high and critical risk steps.
	ExecutionModeSupervised ExecutionMode = "supervised"
	// ExecutionModeManual asks approval for every step.
	ExecutionModeManual ExecutionMode = "manual"
)

// TaskPriority is the priority of a task.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityNormal TaskPriority = "normal"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// RiskLevel is the risk of a step or plan.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Verdict is an approver vote.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictSkip    Verdict = "skip"
)

// Task is an autonomous task.
type Task struct {
	ID        string
	SessionID string
	Title     string
	Intent    string
	Status    TaskStatus
	Mode      ExecutionMode
	Priority  TaskPriority
	PlanID    string
	// CurrentStep is the index of the next step to run.
	CurrentStep int
	TotalSteps  int
	// Progress goes from 0 to 1.
	Progress    float64
	StepResults []StepResult
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// StepResult is the outcome of a plan step.
type StepResult struct {
	StepIndex  int
	Action     string
	Status     string
	Output     map[string]string
	Error      string
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Plan is the compiled execution plan of a task.
type Plan struct {
	ID         string
	IntentType string
	Confidence float64
	Status     string
	Risk       RiskLevel
	Steps      []Step
	// Program is the compiled program source.
	Program    string
	ApprovedBy string
	CreatedAt  time.Time
}

// Step is a single plan step.
type Step struct {
	Index  int
	Name   string
	Action string
	Params map[string]string
	Risk   RiskLevel
	// Question is set on decision steps.
	Question string
	Options  []DecisionOption
}

// DecisionOption is a choice of a decision.
type DecisionOption struct {
	ID    string
	Label string
}

// TaskDetail is a task with its plan and the gate it's waiting on, if any.
type TaskDetail struct {
	Task            Task
	Plan            *Plan
	PendingApproval *Approval
	PendingDecision *Decision
}

// Approval is a human approval gate of a step, or of the whole plan when StepIndex is -1.
type Approval struct {
	ID          string
	TaskID      string
	StepIndex   int
	Action      string
	Description string
	Risk        RiskLevel
	Status      string
	// Level is the 1 based approval chain level waiting for votes.
	Level     int
	Levels    int
	Reason    string
	DecidedBy string
	DecidedAt *time.Time
	ExpiresAt time.Time
	Token     string
	CreatedAt time.Time
}

// Decision is a question for a human with a closed set of options.
type Decision struct {
	ID             string
	TaskID         string
	StepIndex      int
	Question       string
	Options        []DecisionOption
	Status         string
	SelectedOption string
	Reason         string
	DecidedBy      string
	DecidedAt      *time.Time
	ExpiresAt      time.Time
	Fallback       string
	Token          string
	CreatedAt      time.Time
}

// Classification is the interpretation of a natural language request.
type Classification struct {
	ID                    string
	Text                  string
	IntentType            string
	Confidence            float64
	Entities              map[string]string
	SuggestedName         string
	Alternatives          []Alternative
	RequiresClarification bool
	ClarificationQuestion string
	CreatedAt             time.Time
}

// Alternative is another possible intent of a classification.
type Alternative struct {
	IntentType string
	Confidence float64
}

// AuditEntry is the record of a safety evaluation.
type AuditEntry struct {
	ID        string
	TaskID    string
	PlanID    string
	StepIndex int
	Action    string
	// Outcome is one of allowed, blocked, warning or error.
	Outcome     string
	Risk        RiskLevel
	RiskScore   int
	RiskFactors []string
	Checks      []ConstraintCheck
	DryRun      bool
	Error       string
	CreatedAt   time.Time
}

// ConstraintCheck is the result of a safety constraint.
type ConstraintCheck struct {
	Name     string
	Passed   bool
	Severity string
	Message  string
}

// CheckStatus is the status of a preflight check.
type CheckStatus string

const (
	CheckStatusOK      CheckStatus = "ok"
	CheckStatusWarning CheckStatus = "warning"
	CheckStatusError   CheckStatus = "error"
)

// CheckResult is a preflight check result.
type CheckResult struct {
	ID      string
	Message string
	Status  CheckStatus
}

// --- Conversion helpers ---

func fromInternalTask(t model.AutoTask) Task {
	task := Task{
		ID:          t.ID,
		SessionID:   t.SessionID,
		Title:       t.Title,
		Intent:      t.Intent,
		Status:      TaskStatus(t.Status),
		Mode:        ExecutionMode(t.Mode),
		Priority:    TaskPriority(t.Priority),
		PlanID:      t.PlanID,
		CurrentStep: t.CurrentStep,
		TotalSteps:  t.TotalSteps,
		Progress:    t.Progress,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}

	for _, sr := range t.StepResults {
		task.StepResults = append(task.StepResults, StepResult{
			StepIndex:  sr.StepIndex,
			Action:     string(sr.Action),
			Status:     string(sr.Status),
			Output:     sr.Output,
			Error:      sr.Error,
			Attempts:   sr.Attempts,
			StartedAt:  sr.StartedAt,
			FinishedAt: sr.FinishedAt,
		})
	}

	return task
}

func fromInternalTaskList(ts []model.AutoTask) []Task {
	result := make([]Task, len(ts))
	for i, t := range ts {
		result[i] = fromInternalTask(t)
	}
	return result
}

func fromInternalPlan(p *model.ExecutionPlan) *Plan {
	if p == nil {
		return nil
	}

	plan := &Plan{
		ID:         p.ID,
		IntentType: string(p.IntentType),
		Confidence: p.Confidence,
		Status:     string(p.Status),
		Risk:       RiskLevel(p.Risk),
		Program:    p.Program,
		ApprovedBy: p.ApprovedBy,
		CreatedAt:  p.CreatedAt,
	}
	for _, s := range p.Steps {
		step := Step{
			Index:  s.Index,
			Name:   s.Name,
			Action: string(s.Action),
			Params: s.Params,
			Risk:   RiskLevel(s.Risk),
		}
		if s.Decision != nil {
			step.Question = s.Decision.Question
			step.Options = fromInternalOptions(s.Decision.Options)
		}
		plan.Steps = append(plan.Steps, step)
	}

	return plan
}

func fromInternalOptions(opts []model.DecisionOption) []DecisionOption {
	result := make([]DecisionOption, len(opts))
	for i, o := range opts {
		result[i] = DecisionOption{ID: o.ID, Label: o.Label}
	}
	return result
}

func fromInternalApproval(a model.TaskApproval) Approval {
	return Approval{
		ID:          a.ID,
		TaskID:      a.TaskID,
		StepIndex:   a.StepIndex,
		Action:      string(a.Action),
		Description: a.ActionDescription,
		Risk:        RiskLevel(a.Risk),
		Status:      string(a.Status),
		Level:       a.CurrentLevel + 1,
		Levels:      len(a.Chain.Levels),
		Reason:      a.DecisionReason,
		DecidedBy:   a.DecidedBy,
		DecidedAt:   a.DecidedAt,
		ExpiresAt:   a.ExpiresAt,
		Token:       a.Token,
		CreatedAt:   a.CreatedAt,
	}
}

func fromInternalApprovalPtr(a *model.TaskApproval) *Approval {
	if a == nil {
		return nil
	}
	res := fromInternalApproval(*a)
	return &res
}

func fromInternalDecision(d model.TaskDecision) Decision {
	return Decision{
		ID:             d.ID,
		TaskID:         d.TaskID,
		StepIndex:      d.StepIndex,
		Question:       d.Question,
		Options:        fromInternalOptions(d.Options),
		Status:         string(d.Status),
		SelectedOption: d.SelectedOption,
		Reason:         d.DecisionReason,
		DecidedBy:      d.DecidedBy,
		DecidedAt:      d.DecidedAt,
		ExpiresAt:      d.ExpiresAt,
		Fallback:       d.Fallback,
		Token:          d.Token,
		CreatedAt:      d.CreatedAt,
	}
}

func fromInternalDecisionPtr(d *model.TaskDecision) *Decision {
	if d == nil {
		return nil
	}
	res := fromInternalDecision(*d)
	return &res
}

func fromInternalClassification(c model.IntentClassification) Classification {
	cl := Classification{
		ID:                    c.ID,
		Text:                  c.OriginalText,
		IntentType:            string(c.IntentType),
		Confidence:            c.Confidence,
		Entities:              c.Entities,
		SuggestedName:         c.SuggestedName,
		RequiresClarification: c.RequiresClarification,
		ClarificationQuestion: c.ClarificationQuestion,
		CreatedAt:             c.CreatedAt,
	}
	for _, a := range c.Alternatives {
		cl.Alternatives = append(cl.Alternatives, Alternative{IntentType: string(a.Type), Confidence: a.Confidence})
	}
	return cl
}

func fromInternalAuditEntries(es []model.SafetyAuditEntry) []AuditEntry {
	result := make([]AuditEntry, len(es))
	for i, e := range es {
		entry := AuditEntry{
			ID:          e.ID,
			TaskID:      e.TaskID,
			PlanID:      e.PlanID,
			StepIndex:   e.StepIndex,
			Action:      string(e.Action),
			Outcome:     string(e.Outcome),
			Risk:        RiskLevel(e.Risk.Level),
			RiskScore:   e.Risk.Score,
			RiskFactors: e.Risk.Factors,
			DryRun:      e.DryRun,
			Error:       e.Error,
			CreatedAt:   e.CreatedAt,
		}
		for _, c := range e.ConstraintChecks {
			entry.Checks = append(entry.Checks, ConstraintCheck{
				Name:     c.Name,
				Passed:   c.Passed,
				Severity: string(c.Severity),
				Message:  c.Message,
			})
		}
		result[i] = entry
	}
	return result
}

func fromInternalCheckResults(rs []model.CheckResult) []CheckResult {
	result := make([]CheckResult, len(rs))
	for i, r := range rs {
		result[i] = CheckResult{
			ID:      r.ID,
			Message: r.Message,
			Status:  CheckStatus(r.Status),
		}
	}
	return result
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case isInternalError(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case isInternalError(err, model.ErrAlreadyExists):
		return joinErrors(err, ErrAlreadyExists)
	case isInternalError(err, model.ErrAlreadyResolved):
		return joinErrors(err, ErrAlreadyResolved)
	case isInternalError(err, model.ErrConflict):
		return joinErrors(err, ErrConflict)
	case isInternalError(err, model.ErrNotValid), isInternalError(err, model.ErrCompilation):
		return joinErrors(err, ErrNotValid)
	default:
		return err
	}
}

func isInternalError(err, target error) bool {
	for {
		if err == target {
			return true
		}
		unwrapped := unwrapSingle(err)
		if unwrapped == nil {
			return false
		}
		err = unwrapped
	}
}

func unwrapSingle(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
