package printer

import "github.com/slok/autotask/internal/model"

// TaskDetail is a task with its plan and what it's waiting on.
type TaskDetail struct {
	Task            model.AutoTask
	Plan            *model.ExecutionPlan
	PendingApproval *model.TaskApproval
	PendingDecision *model.TaskDecision
}

// Printer knows how to print autotask information in different formats.
type Printer interface {
	PrintTaskList(tasks []model.AutoTask) error
	PrintTaskDetail(d TaskDetail) error
	PrintClassification(c model.IntentClassification) error
	PrintPending(approvals []model.TaskApproval, decisions []model.TaskDecision) error
	PrintApproval(a model.TaskApproval) error
	PrintDecision(d model.TaskDecision) error
	PrintAudit(entries []model.SafetyAuditEntry) error
	PrintMessage(msg string) error
}

var (
	_ Printer = &TablePrinter{}
	_ Printer = &JSONPrinter{}
)
