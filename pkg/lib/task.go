package lib

import (
	"context"
	"fmt"

	"github.com/slok/autotask/internal/app/cancel"
	"github.com/slok/autotask/internal/app/create"
	"github.com/slok/autotask/internal/app/list"
	"github.com/slok/autotask/internal/app/pause"
	"github.com/slok/autotask/internal/app/resume"
	"github.com/slok/autotask/internal/app/status"
	"github.com/slok/autotask/internal/model"
)

// CreateTaskOpts configures task creation.
//
// Text is required. Everything else is optional.
type CreateTaskOpts struct {
	// Text is the natural language request (required).
	Text string
	// SessionID groups the tasks of a conversation.
	SessionID string
	// Title defaults to the name suggested by the classifier.
	Title string
	// Mode defaults to [ExecutionModeSupervised].
	Mode ExecutionMode
	// Priority defaults to [TaskPriorityNormal].
	Priority TaskPriority
	// Context is extra conversation context used to classify and plan.
	Context map[string]string
	// RequirePlanApproval asks for an approval of the whole plan before the first step.
	RequirePlanApproval bool
	// Start runs the task right away until it needs a human or finishes.
	Start bool
}

// CreateTaskResult is the result of [Client.CreateTask].
type CreateTaskResult struct {
	Classification Classification
	// Task and Plan are nil when the request needs clarification.
	Task *Task
	Plan *Plan
}

// NeedsClarification returns true when nothing was created and the request must be rephrased,
// Classification.ClarificationQuestion has the question to ask.
func (r CreateTaskResult) NeedsClarification() bool { return r.Task == nil }

// CreateTask classifies the request, compiles its plan and creates the task.
func (c *Client) CreateTask(ctx context.Context, opts CreateTaskOpts) (*CreateTaskResult, error) {
	svc, err := create.NewService(create.ServiceConfig{
		Classifier:   c.sys.Classifier,
		Compiler:     c.sys.Compiler,
		Orchestrator: c.sys.Orchestrator,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, create.Request{
		Text:                opts.Text,
		SessionID:           opts.SessionID,
		Title:               opts.Title,
		Mode:                model.ExecutionMode(opts.Mode),
		Priority:            model.TaskPriority(opts.Priority),
		Context:             opts.Context,
		RequirePlanApproval: opts.RequirePlanApproval,
		Start:               opts.Start,
	})
	if err != nil {
		return nil, mapError(err)
	}

	result := &CreateTaskResult{
		Classification: fromInternalClassification(*res.Classification),
		Plan:           fromInternalPlan(res.Plan),
	}
	if res.Task != nil {
		t := fromInternalTask(*res.Task)
		result.Task = &t
	}

	return result, nil
}

// ListTasksOpts filters the task list. Pass nil to [Client.ListTasks] to list all.
type ListTasksOpts struct {
	Status    *TaskStatus
	SessionID string
	// Active hides the finished tasks.
	Active bool
}

// ListTasks returns the tasks, the newest first.
func (c *Client) ListTasks(ctx context.Context, opts *ListTasksOpts) ([]Task, error) {
	svc, err := list.NewService(list.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	req := list.Request{}
	if opts != nil {
		req.SessionID = opts.SessionID
		req.Active = opts.Active
		if opts.Status != nil {
			s := model.TaskStatus(*opts.Status)
			req.StatusFilter = &s
		}
	}

	tasks, err := svc.Run(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalTaskList(tasks), nil
}

// GetTask returns a task with its plan and the approval or decision it's waiting on.
//
// Returns [ErrNotFound] if the task does not exist.
func (c *Client) GetTask(ctx context.Context, taskID string) (*TaskDetail, error) {
	svc, err := status.NewService(status.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	st, err := svc.Run(ctx, status.Request{TaskID: taskID})
	if err != nil {
		return nil, mapError(err)
	}

	return &TaskDetail{
		Task:            fromInternalTask(st.Task),
		Plan:            fromInternalPlan(st.Plan),
		PendingApproval: fromInternalApprovalPtr(st.PendingApproval),
		PendingDecision: fromInternalDecisionPtr(st.PendingDecision),
	}, nil
}

// CancelTask cancels a task. Suspended tasks are cancelled right away, running
// tasks stop at the next step boundary.
//
// Returns [ErrNotValid] if the task already finished.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*Task, error) {
	svc, err := cancel.NewService(cancel.ServiceConfig{
		Orchestrator: c.sys.Orchestrator,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Run(ctx, cancel.Request{TaskID: taskID})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalTask(*task)
	return &result, nil
}

// PauseTask pauses a task, running tasks pause at the next step boundary.
func (c *Client) PauseTask(ctx context.Context, taskID string) (*Task, error) {
	svc, err := pause.NewService(pause.ServiceConfig{
		Orchestrator: c.sys.Orchestrator,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Run(ctx, pause.Request{TaskID: taskID})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalTask(*task)
	return &result, nil
}

// ResumeTask resumes a paused task and runs it until it needs a human or finishes.
//
// Returns [ErrNotValid] if the task is not paused.
func (c *Client) ResumeTask(ctx context.Context, taskID string) (*Task, error) {
	svc, err := resume.NewService(resume.ServiceConfig{
		Orchestrator: c.sys.Orchestrator,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Run(ctx, resume.Request{TaskID: taskID})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalTask(*task)
	return &result, nil
}
