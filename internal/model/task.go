package model

import (
	"fmt"
	"time"
)

// TaskStatus is the state of an autonomous task.
type TaskStatus string

const (
	// TaskStatusPending is the creation state, there is no plan yet.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusReady means a valid plan is attached.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusRunning means the orchestrator is advancing the steps.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusPaused is an operator requested suspension.
	TaskStatusPaused TaskStatus = "paused"
	// TaskStatusWaitingApproval is a suspension waiting for a human approval or decision.
	TaskStatusWaitingApproval TaskStatus = "waiting_approval"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusFailed          TaskStatus = "failed"
	TaskStatusCancelled       TaskStatus = "cancelled"
)

// TaskStatuses are all the task statuses.
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusReady,
	TaskStatusRunning,
	TaskStatusPaused,
	TaskStatusWaitingApproval,
	TaskStatusCompleted,
	TaskStatusFailed,
	TaskStatusCancelled,
}

// Terminal returns true if the status can't change anymore.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Valid returns true if the status is known.
func (s TaskStatus) Valid() bool {
	for _, st := range TaskStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// TaskPriority is the priority of a task.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityNormal TaskPriority = "normal"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// TaskInterrupt is an operator request applied at the next step boundary.
type TaskInterrupt string

const (
	TaskInterruptNone   TaskInterrupt = ""
	TaskInterruptPause  TaskInterrupt = "pause"
	TaskInterruptCancel TaskInterrupt = "cancel"
)

// StepStatus is the result of a step that left the running micro state.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusBlocked   StepStatus = "blocked"
	StepStatusRejected  StepStatus = "rejected"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusAnswered  StepStatus = "answered"
	StepStatusTimeout   StepStatus = "timeout"
)

// StepResult is the append only record of a finished step.
type StepResult struct {
	ID         string
	TaskID     string
	StepIndex  int
	Action     ActionType
	Status     StepStatus
	Output     map[string]string
	Error      string
	Attempts   int
	AuditID    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// AutoTask is the unit of work and the root of the execution state machine.
type AutoTask struct {
	ID          string
	SessionID   string
	Title       string
	Intent      string
	Status      TaskStatus
	Mode        ExecutionMode
	Priority    TaskPriority
	PlanID      string
	CurrentStep int
	TotalSteps  int
	Progress    float64
	StepResults []StepResult
	Error       string
	Interrupt   TaskInterrupt
	// RequirePlanApproval opens a gate on the whole plan before the first step.
	RequirePlanApproval bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	StartedAt           *time.Time
	CompletedAt         *time.Time
}

// Validate validates the task.
func (t AutoTask) Validate() error {
	if t.Intent == "" {
		return fmt.Errorf("intent is required: %w", ErrNotValid)
	}
	if !t.Mode.Valid() {
		return fmt.Errorf("invalid execution mode %q: %w", t.Mode, ErrNotValid)
	}
	if t.CurrentStep < 0 || t.CurrentStep > t.TotalSteps {
		return fmt.Errorf("current step %d out of range [0,%d]: %w", t.CurrentStep, t.TotalSteps, ErrNotValid)
	}
	return nil
}

// SetCurrentStep moves the step cursor and recomputes the progress.
func (t *AutoTask) SetCurrentStep(step int) {
	t.CurrentStep = step
	t.Progress = ComputeProgress(step, t.TotalSteps)
}

// ComputeProgress returns current/total, 0 when there are no steps.
func ComputeProgress(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(current) / float64(total)
}
