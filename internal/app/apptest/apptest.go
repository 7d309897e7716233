// Package apptest builds a complete in-memory autotask stack for the application
// service tests: memory storage, the heuristic model, the template proposer, the
// fake runtime and the real safety, gate and orchestrator components.
package apptest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/gate"
	"github.com/slok/autotask/internal/intent"
	"github.com/slok/autotask/internal/llm/heuristic"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/notify"
	"github.com/slok/autotask/internal/orchestrator"
	"github.com/slok/autotask/internal/plan"
	"github.com/slok/autotask/internal/runtime/fake"
	"github.com/slok/autotask/internal/safety"
	"github.com/slok/autotask/internal/storage/memory"
)

// T0 is the initial time of the stack clock.
var T0 = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

// Stack is a wired in-memory autotask.
type Stack struct {
	Repo         *memory.Repository
	Runtime      *fake.Runtime
	Safety       *safety.Engine
	Gateway      *gate.Gateway
	Classifier   *intent.Classifier
	Compiler     *plan.Compiler
	Orchestrator *orchestrator.Orchestrator

	mu      sync.Mutex
	now     time.Time
	prompts []notify.Prompt
}

// NewStack returns a new stack with the default policy.
func NewStack(t *testing.T) *Stack {
	t.Helper()

	s := &Stack{now: T0}
	policy := model.DefaultPolicy()

	var err error
	s.Repo, err = memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	s.Runtime, err = fake.NewRuntime(fake.RuntimeConfig{})
	require.NoError(t, err)

	s.Safety, err = safety.NewEngine(safety.EngineConfig{
		Runtime:    s.Runtime,
		Repository: s.Repo,
		Policy:     policy.Safety,
		TimeNow:    s.Now,
	})
	require.NoError(t, err)

	s.Gateway, err = gate.NewGateway(gate.GatewayConfig{
		Repository: s.Repo,
		Notifier: notify.NotifierFunc(func(_ context.Context, p notify.Prompt) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.prompts = append(s.prompts, p)
			return nil
		}),
		Policy:  policy.Approval,
		TimeNow: s.Now,
	})
	require.NoError(t, err)

	s.Classifier, err = intent.NewClassifier(intent.ClassifierConfig{
		Model:      heuristic.NewClient(),
		Repository: s.Repo,
		TimeNow:    s.Now,
	})
	require.NoError(t, err)

	s.Compiler, err = plan.NewCompiler(plan.CompilerConfig{
		Proposer:  plan.NewTemplateProposer(),
		Simulator: s.Safety,
		Policy:    policy,
		TimeNow:   s.Now,
	})
	require.NoError(t, err)

	s.Orchestrator, err = orchestrator.NewOrchestrator(orchestrator.OrchestratorConfig{
		Repository: s.Repo,
		Safety:     s.Safety,
		Gateway:    s.Gateway,
		Runtime:    s.Runtime,
		Sleep:      func(context.Context, time.Duration) error { return nil },
		TimeNow:    s.Now,
	})
	require.NoError(t, err)

	return s
}

// Now returns the stack clock.
func (s *Stack) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the stack clock.
func (s *Stack) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

// Prompts returns the notified prompts.
func (s *Stack) Prompts() []notify.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Prompt{}, s.prompts...)
}

// PlanTask creates a ready task with the compiled plan of the text.
func (s *Stack) PlanTask(t *testing.T, text string, mode model.ExecutionMode) *model.AutoTask {
	t.Helper()
	ctx := context.TODO()

	cl, err := s.Classifier.Classify(ctx, intent.ClassifyRequest{Text: text})
	require.NoError(t, err)
	require.True(t, cl.Automatable(), "text %q is not automatable", text)

	task, err := s.Orchestrator.Create(ctx, orchestrator.CreateRequest{Intent: text, Mode: mode})
	require.NoError(t, err)
	p, err := s.Compiler.Compile(ctx, plan.CompileRequest{TaskID: task.ID, Classification: *cl})
	require.NoError(t, err)
	task, err = s.Orchestrator.AttachPlan(ctx, task.ID, *p)
	require.NoError(t, err)

	return task
}

// StartTask plans, starts and runs a task for the text until it suspends or finishes.
func (s *Stack) StartTask(t *testing.T, text string, mode model.ExecutionMode) *model.AutoTask {
	t.Helper()
	ctx := context.TODO()

	task := s.PlanTask(t, text, mode)
	_, err := s.Orchestrator.Start(ctx, task.ID)
	require.NoError(t, err)
	task, err = s.Orchestrator.Run(ctx, task.ID)
	require.NoError(t, err)

	return task
}
