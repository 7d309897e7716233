package create

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/autotask/internal/intent"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/orchestrator"
	"github.com/slok/autotask/internal/plan"
)

// Classifier classifies the user text.
type Classifier interface {
	Classify(ctx context.Context, req intent.ClassifyRequest) (*model.IntentClassification, error)
}

// Compiler compiles a classification into a plan.
type Compiler interface {
	Compile(ctx context.Context, req plan.CompileRequest) (*model.ExecutionPlan, error)
}

// Orchestrator owns the task lifecycle.
type Orchestrator interface {
	Create(ctx context.Context, req orchestrator.CreateRequest) (*model.AutoTask, error)
	AttachPlan(ctx context.Context, taskID string, p model.ExecutionPlan) (*model.AutoTask, error)
	Start(ctx context.Context, taskID string) (*model.AutoTask, error)
	Run(ctx context.Context, taskID string) (*model.AutoTask, error)
	Fail(ctx context.Context, taskID string, cause string) (*model.AutoTask, error)
}

var _ Orchestrator = &orchestrator.Orchestrator{}

// ServiceConfig is the configuration for the create service.
type ServiceConfig struct {
	Classifier   Classifier
	Compiler     Compiler
	Orchestrator Orchestrator
	Logger       log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Classifier == nil {
		return fmt.Errorf("classifier is required")
	}
	if c.Compiler == nil {
		return fmt.Errorf("compiler is required")
	}
	if c.Orchestrator == nil {
		return fmt.Errorf("orchestrator is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Create"})
	return nil
}

// Service turns a user request into a planned task.
type Service struct {
	classifier Classifier
	compiler   Compiler
	orch       Orchestrator
	logger     log.Logger
}

// NewService creates a new create service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		classifier: cfg.Classifier,
		compiler:   cfg.Compiler,
		orch:       cfg.Orchestrator,
		logger:     cfg.Logger,
	}, nil
}

// Request represents the create request parameters.
type Request struct {
	Text      string
	SessionID string
	Title     string
	Mode      model.ExecutionMode
	Priority  model.TaskPriority
	// Context is extra conversational context for the classifier and the compiler.
	Context             map[string]string
	RequirePlanApproval bool
	// Start starts the task and runs it in this process until it suspends or finishes.
	Start bool
}

// Result is the outcome of a create request. Task and Plan are nil when the
// request needs clarification.
type Result struct {
	Classification *model.IntentClassification
	Task           *model.AutoTask
	Plan           *model.ExecutionPlan
}

// NeedsClarification returns true when nothing was created and the user must rephrase.
func (r Result) NeedsClarification() bool { return r.Task == nil }

// Run classifies the text, creates the task and attaches its compiled plan.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text is required: %w", model.ErrNotValid)
	}

	// 1. Classify.
	cl, err := s.classifier.Classify(ctx, intent.ClassifyRequest{
		Text:      req.Text,
		SessionID: req.SessionID,
		Context:   req.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("could not classify request: %w", err)
	}
	res := &Result{Classification: cl}
	if !cl.Automatable() {
		s.logger.Infof("Request needs clarification: %s", cl.ClarificationQuestion)
		return res, nil
	}

	// 2. Create the task.
	title := req.Title
	if title == "" {
		title = cl.SuggestedName
	}
	task, err := s.orch.Create(ctx, orchestrator.CreateRequest{
		SessionID:           req.SessionID,
		Title:               title,
		Intent:              req.Text,
		Mode:                req.Mode,
		Priority:            req.Priority,
		RequirePlanApproval: req.RequirePlanApproval,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create task: %w", err)
	}
	logger := s.logger.WithValues(log.Kv{"task": task.ID})

	// 3. Compile, a failed compilation fails the task with the cause.
	p, err := s.compiler.Compile(ctx, plan.CompileRequest{
		TaskID:         task.ID,
		Classification: *cl,
		Context:        req.Context,
	})
	if err != nil {
		if _, ferr := s.orch.Fail(ctx, task.ID, err.Error()); ferr != nil {
			logger.Errorf("Could not fail task after compilation error: %s", ferr)
		}
		return nil, fmt.Errorf("could not compile plan: %w", err)
	}

	// 4. Attach.
	task, err = s.orch.AttachPlan(ctx, task.ID, *p)
	if err != nil {
		return nil, fmt.Errorf("could not attach plan: %w", err)
	}
	res.Task = task
	res.Plan = p
	logger.Infof("Task planned with %d steps (%s risk)", len(p.Steps), p.Risk)

	if !req.Start {
		return res, nil
	}

	// 5. Start and run.
	if _, err := s.orch.Start(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("could not start task: %w", err)
	}
	task, err = s.orch.Run(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("could not run task: %w", err)
	}
	res.Task = task

	return res, nil
}
