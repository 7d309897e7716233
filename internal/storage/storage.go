package storage

import (
	"context"
	"time"

	"github.com/slok/autotask/internal/model"
)

// TaskExpectation is the stored state a conditional task update expects.
type TaskExpectation struct {
	Status      model.TaskStatus
	CurrentStep int
	// Interrupt makes operator requests on running tasks conflict with the runner writes.
	Interrupt model.TaskInterrupt
}

// TaskListOpts filters the task listing.
type TaskListOpts struct {
	Status    *model.TaskStatus
	SessionID string
}

// TaskRepository persists tasks and their append only step results.
type TaskRepository interface {
	CreateTask(ctx context.Context, t model.AutoTask) error
	GetTask(ctx context.Context, id string) (*model.AutoTask, error)
	ListTasks(ctx context.Context, opts TaskListOpts) ([]model.AutoTask, error)
	// UpdateTask stores the task only if the stored status, current step and interrupt match
	// the expectation, the step results are appended in the same transaction.
	// Returns model.ErrConflict when the expectation doesn't match.
	UpdateTask(ctx context.Context, t model.AutoTask, expect TaskExpectation, results ...model.StepResult) error
}

// PlanRepository persists execution plans.
type PlanRepository interface {
	CreatePlan(ctx context.Context, p model.ExecutionPlan) error
	GetPlan(ctx context.Context, id string) (*model.ExecutionPlan, error)
	// UpdatePlanStatus changes the status only if the stored one is from.
	UpdatePlanStatus(ctx context.Context, id string, from, to model.PlanStatus) error
}

// ApprovalListOpts filters the approval listing.
type ApprovalListOpts struct {
	TaskID        string
	Status        *model.ApprovalStatus
	ExpiredBefore *time.Time
}

// ApprovalExpectation is the stored state a conditional approval update expects.
type ApprovalExpectation struct {
	Status model.ApprovalStatus
	Level  int
}

// VoteExpectation is the stored state a vote was decided on.
type VoteExpectation struct {
	ApprovalExpectation
	// Votes is the number of votes the current level had.
	Votes int
}

// ApprovalRepository persists approval gates and their votes.
type ApprovalRepository interface {
	CreateApproval(ctx context.Context, a model.TaskApproval) error
	GetApproval(ctx context.Context, id string) (*model.TaskApproval, error)
	GetApprovalByToken(ctx context.Context, token string) (*model.TaskApproval, error)
	// GetStepApproval returns the latest approval of a task step.
	GetStepApproval(ctx context.Context, taskID string, stepIndex int) (*model.TaskApproval, error)
	ListApprovals(ctx context.Context, opts ApprovalListOpts) ([]model.TaskApproval, error)
	// UpdateApproval stores the approval only if status and chain level match.
	UpdateApproval(ctx context.Context, a model.TaskApproval, expect ApprovalExpectation) error
	// RecordApprovalVote stores the vote and the approval it leads to in one transaction,
	// only if the approval matches the expectation. An approver can only vote once per level.
	RecordApprovalVote(ctx context.Context, v model.ApprovalVote, a model.TaskApproval, expect VoteExpectation) error
	ListApprovalVotes(ctx context.Context, approvalID string) ([]model.ApprovalVote, error)
}

// DecisionListOpts filters the decision listing.
type DecisionListOpts struct {
	TaskID        string
	Status        *model.DecisionStatus
	ExpiredBefore *time.Time
}

// DecisionRepository persists open questions.
type DecisionRepository interface {
	CreateDecision(ctx context.Context, d model.TaskDecision) error
	GetDecision(ctx context.Context, id string) (*model.TaskDecision, error)
	GetDecisionByToken(ctx context.Context, token string) (*model.TaskDecision, error)
	// GetStepDecision returns the latest decision of a task step.
	GetStepDecision(ctx context.Context, taskID string, stepIndex int) (*model.TaskDecision, error)
	ListDecisions(ctx context.Context, opts DecisionListOpts) ([]model.TaskDecision, error)
	// UpdateDecision stores the decision only if the stored status is expectStatus.
	UpdateDecision(ctx context.Context, d model.TaskDecision, expectStatus model.DecisionStatus) error
}

// AuditListOpts filters the audit listing.
type AuditListOpts struct {
	TaskID string
	PlanID string
}

// AuditRepository is the append only safety audit trail.
type AuditRepository interface {
	AppendAuditEntry(ctx context.Context, e model.SafetyAuditEntry) error
	ListAuditEntries(ctx context.Context, opts AuditListOpts) ([]model.SafetyAuditEntry, error)
}

// ClassificationRepository stores intent classifications.
type ClassificationRepository interface {
	CreateClassification(ctx context.Context, c model.IntentClassification) error
	GetClassification(ctx context.Context, id string) (*model.IntentClassification, error)
	// SetClassificationFeedback annotates a classification, feedback can only be set once.
	SetClassificationFeedback(ctx context.Context, id string, wasCorrect bool, corrected *model.IntentType) error
}

// Repository is the full durable store.
type Repository interface {
	TaskRepository
	PlanRepository
	ApprovalRepository
	DecisionRepository
	AuditRepository
	ClassificationRepository
}

//go:generate mockery --case underscore --output storagemock --outpkg storagemock --name Repository --structname MockRepository
