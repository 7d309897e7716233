package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
// All the returned objects are copies.
type Repository struct {
	tasks           map[string]model.AutoTask
	stepResults     map[string][]model.StepResult
	plans           map[string]model.ExecutionPlan
	approvals       map[string]model.TaskApproval
	approvalOrder   []string
	votes           map[string][]model.ApprovalVote
	decisions       map[string]model.TaskDecision
	decisionOrder   []string
	audit           []model.SafetyAuditEntry
	classifications map[string]model.IntentClassification
	mu              sync.RWMutex
	logger          log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		tasks:           map[string]model.AutoTask{},
		stepResults:     map[string][]model.StepResult{},
		plans:           map[string]model.ExecutionPlan{},
		approvals:       map[string]model.TaskApproval{},
		votes:           map[string][]model.ApprovalVote{},
		decisions:       map[string]model.TaskDecision{},
		classifications: map[string]model.IntentClassification{},
		logger:          cfg.Logger,
	}, nil
}

// CreateTask creates a new task.
func (r *Repository) CreateTask(ctx context.Context, t model.AutoTask) error {
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrAlreadyExists)
	}
	t.StepResults = nil
	r.tasks[t.ID] = t

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task with its step results.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.AutoTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	t.StepResults = append([]model.StepResult{}, r.stepResults[id]...)

	return &t, nil
}

// ListTasks lists tasks, newest first.
func (r *Repository) ListTasks(ctx context.Context, opts storage.TaskListOpts) ([]model.AutoTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := []model.AutoTask{}
	for _, t := range r.tasks {
		if opts.Status != nil && t.Status != *opts.Status {
			continue
		}
		if opts.SessionID != "" && t.SessionID != opts.SessionID {
			continue
		}
		t.StepResults = []model.StepResult{}
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// UpdateTask conditionally updates the task and appends the step results.
func (r *Repository) UpdateTask(ctx context.Context, t model.AutoTask, expect storage.TaskExpectation, results ...model.StepResult) error {
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tasks[t.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
	}
	if stored.Status != expect.Status || stored.CurrentStep != expect.CurrentStep || stored.Interrupt != expect.Interrupt {
		return fmt.Errorf("task %s is not %s at step %d: %w", t.ID, expect.Status, expect.CurrentStep, model.ErrConflict)
	}

	existing := r.stepResults[t.ID]
	recorded := map[int]bool{}
	for _, sr := range existing {
		recorded[sr.StepIndex] = true
	}
	for _, sr := range results {
		if recorded[sr.StepIndex] {
			return fmt.Errorf("step %d result already recorded: %w", sr.StepIndex, model.ErrConflict)
		}
		recorded[sr.StepIndex] = true
	}

	for _, sr := range results {
		if sr.ID == "" {
			sr.ID = ulid.Make().String()
		}
		sr.TaskID = t.ID
		existing = append(existing, sr)
	}
	sort.SliceStable(existing, func(i, j int) bool { return existing[i].StepIndex < existing[j].StepIndex })
	r.stepResults[t.ID] = existing

	t.StepResults = nil
	t.CreatedAt = stored.CreatedAt
	t.SessionID = stored.SessionID
	t.Intent = stored.Intent
	r.tasks[t.ID] = t

	r.logger.Debugf("Updated task %s: %s -> %s", t.ID, expect.Status, t.Status)
	return nil
}

// CreatePlan stores a compiled plan.
func (r *Repository) CreatePlan(ctx context.Context, p model.ExecutionPlan) error {
	if p.TaskID == "" {
		return fmt.Errorf("plan task id is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plans[p.ID]; ok {
		return fmt.Errorf("plan %s: %w", p.ID, model.ErrAlreadyExists)
	}
	for _, existing := range r.plans {
		if existing.TaskID == p.TaskID {
			return fmt.Errorf("plan for task %s: %w", p.TaskID, model.ErrAlreadyExists)
		}
	}
	r.plans[p.ID] = p

	return nil
}

// GetPlan retrieves a plan by ID.
func (r *Repository) GetPlan(ctx context.Context, id string) (*model.ExecutionPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, model.ErrNotFound)
	}
	p.Steps = append([]model.Step{}, p.Steps...)

	return &p, nil
}

// UpdatePlanStatus changes the plan status if the stored status is from.
func (r *Repository) UpdatePlanStatus(ctx context.Context, id string, from, to model.PlanStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[id]
	if !ok {
		return fmt.Errorf("plan %s: %w", id, model.ErrNotFound)
	}
	if p.Status != from {
		return fmt.Errorf("plan %s is not %s: %w", id, from, model.ErrConflict)
	}
	p.Status = to
	r.plans[id] = p

	return nil
}
