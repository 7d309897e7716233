// Package storagetest has the behavior suite every storage.Repository implementation must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// TaskFixture returns a valid pending task.
func TaskFixture(id string) model.AutoTask {
	return model.AutoTask{
		ID:         id,
		Title:      "Task " + id,
		Intent:     "do something with " + id,
		Status:     model.TaskStatusPending,
		Mode:       model.ExecutionModeSupervised,
		Priority:   model.TaskPriorityNormal,
		TotalSteps: 3,
		CreatedAt:  t0,
		UpdatedAt:  t0,
	}
}

// ApprovalFixture returns a pending approval for a task step.
func ApprovalFixture(id, taskID string, step int) model.TaskApproval {
	return model.TaskApproval{
		ID:                id,
		TaskID:            taskID,
		StepIndex:         step,
		Action:            model.ActionDeleteRecord,
		ActionDescription: "Delete a record",
		Risk:              model.RiskLevelHigh,
		Status:            model.ApprovalStatusPending,
		Chain: model.ApprovalChain{
			Levels: []model.ApprovalLevel{{Approvers: []string{"alice", "bob"}, RequireAll: true, Timeout: time.Hour}},
		},
		ExpiresAt:     t0.Add(time.Hour),
		DefaultAction: model.DefaultActionReject,
		Token:         "token-" + id,
		CreatedAt:     t0,
	}
}

// DecisionFixture returns a pending decision for a task step.
func DecisionFixture(id, taskID string, step int) model.TaskDecision {
	return model.TaskDecision{
		ID:        id,
		TaskID:    taskID,
		StepIndex: step,
		Question:  "Which account?",
		Options:   []model.DecisionOption{{ID: "personal", Label: "Personal"}, {ID: "work", Label: "Work"}},
		Status:    model.DecisionStatusPending,
		Timeout:   30 * time.Minute,
		ExpiresAt: t0.Add(30 * time.Minute),
		Token:     "token-" + id,
		CreatedAt: t0,
	}
}

// RunRepositoryTests runs the repository behavior suite, newRepo must return an empty repository.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	t.Run("Tasks", func(t *testing.T) { testTasks(t, newRepo) })
	t.Run("Plans", func(t *testing.T) { testPlans(t, newRepo) })
	t.Run("Approvals", func(t *testing.T) { testApprovals(t, newRepo) })
	t.Run("Decisions", func(t *testing.T) { testDecisions(t, newRepo) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newRepo) })
	t.Run("Classifications", func(t *testing.T) { testClassifications(t, newRepo) })
}

func testTasks(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	tests := map[string]struct {
		run func(ctx context.Context, t *testing.T, repo storage.Repository)
	}{
		"Creating and getting a task should return the same task.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				task := TaskFixture("t1")
				require.NoError(t, repo.CreateTask(ctx, task))

				got, err := repo.GetTask(ctx, "t1")
				require.NoError(t, err)
				assert.Equal(t, task.Intent, got.Intent)
				assert.Equal(t, model.TaskStatusPending, got.Status)
				assert.Equal(t, model.ExecutionModeSupervised, got.Mode)
				assert.Equal(t, 3, got.TotalSteps)
				assert.True(t, task.CreatedAt.Equal(got.CreatedAt))
				assert.Empty(t, got.StepResults)
			},
		},
		"Creating a task twice should fail.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				require.NoError(t, repo.CreateTask(ctx, TaskFixture("t1")))
				err := repo.CreateTask(ctx, TaskFixture("t1"))
				assert.ErrorIs(t, err, model.ErrAlreadyExists)
			},
		},
		"Getting a missing task should fail with not found.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				_, err := repo.GetTask(ctx, "missing")
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},
		"Updating a task with the expected state should store it with the step results.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				task := TaskFixture("t1")
				task.Status = model.TaskStatusRunning
				require.NoError(t, repo.CreateTask(ctx, task))

				task.SetCurrentStep(1)
				err := repo.UpdateTask(ctx, task, storage.TaskExpectation{Status: model.TaskStatusRunning, CurrentStep: 0}, model.StepResult{
					StepIndex:  0,
					Action:     model.ActionReadData,
					Status:     model.StepStatusSucceeded,
					Output:     map[string]string{"rows": "3"},
					Attempts:   1,
					StartedAt:  t0,
					FinishedAt: t0,
				})
				require.NoError(t, err)

				got, err := repo.GetTask(ctx, "t1")
				require.NoError(t, err)
				assert.Equal(t, 1, got.CurrentStep)
				assert.InDelta(t, 1.0/3.0, got.Progress, 0.0001)
				require.Len(t, got.StepResults, 1)
				assert.Equal(t, model.StepStatusSucceeded, got.StepResults[0].Status)
				assert.Equal(t, "3", got.StepResults[0].Output["rows"])
				assert.NotEmpty(t, got.StepResults[0].ID)
			},
		},
		"Updating a task with a stale expectation should conflict and change nothing.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				task := TaskFixture("t1")
				task.Status = model.TaskStatusRunning
				require.NoError(t, repo.CreateTask(ctx, task))

				next := task
				next.Status = model.TaskStatusCompleted
				err := repo.UpdateTask(ctx, next, storage.TaskExpectation{Status: model.TaskStatusPaused, CurrentStep: 0})
				assert.ErrorIs(t, err, model.ErrConflict)

				err = repo.UpdateTask(ctx, next, storage.TaskExpectation{Status: model.TaskStatusRunning, CurrentStep: 2})
				assert.ErrorIs(t, err, model.ErrConflict)

				got, err := repo.GetTask(ctx, "t1")
				require.NoError(t, err)
				assert.Equal(t, model.TaskStatusRunning, got.Status)
			},
		},
		"Updating a task without seeing its interrupt should conflict.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				task := TaskFixture("t1")
				task.Status = model.TaskStatusRunning
				require.NoError(t, repo.CreateTask(ctx, task))

				paused := task
				paused.Interrupt = model.TaskInterruptPause
				require.NoError(t, repo.UpdateTask(ctx, paused, storage.TaskExpectation{Status: model.TaskStatusRunning}))

				task.SetCurrentStep(1)
				err := repo.UpdateTask(ctx, task, storage.TaskExpectation{Status: model.TaskStatusRunning})
				assert.ErrorIs(t, err, model.ErrConflict)

				err = repo.UpdateTask(ctx, task, storage.TaskExpectation{Status: model.TaskStatusRunning, Interrupt: model.TaskInterruptPause})
				assert.NoError(t, err)
			},
		},
		"Updating a missing task should fail with not found.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				err := repo.UpdateTask(ctx, TaskFixture("t1"), storage.TaskExpectation{Status: model.TaskStatusPending})
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},
		"Recording a step result twice should conflict.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				task := TaskFixture("t1")
				task.Status = model.TaskStatusRunning
				require.NoError(t, repo.CreateTask(ctx, task))

				sr := model.StepResult{StepIndex: 0, Action: model.ActionReadData, Status: model.StepStatusSucceeded, StartedAt: t0, FinishedAt: t0}
				task.SetCurrentStep(1)
				require.NoError(t, repo.UpdateTask(ctx, task, storage.TaskExpectation{Status: model.TaskStatusRunning, CurrentStep: 0}, sr))

				err := repo.UpdateTask(ctx, task, storage.TaskExpectation{Status: model.TaskStatusRunning, CurrentStep: 1}, sr)
				assert.ErrorIs(t, err, model.ErrConflict)
			},
		},
		"Listing tasks should filter by status.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				t1 := TaskFixture("t1")
				t2 := TaskFixture("t2")
				t2.Status = model.TaskStatusRunning
				t2.CreatedAt = t0.Add(time.Minute)
				require.NoError(t, repo.CreateTask(ctx, t1))
				require.NoError(t, repo.CreateTask(ctx, t2))

				all, err := repo.ListTasks(ctx, storage.TaskListOpts{})
				require.NoError(t, err)
				require.Len(t, all, 2)
				assert.Equal(t, "t2", all[0].ID)

				running := model.TaskStatusRunning
				filtered, err := repo.ListTasks(ctx, storage.TaskListOpts{Status: &running})
				require.NoError(t, err)
				require.Len(t, filtered, 1)
				assert.Equal(t, "t2", filtered[0].ID)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test.run(context.Background(), t, newRepo(t))
		})
	}
}

func testPlans(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	plan := model.ExecutionPlan{
		ID:         "p1",
		TaskID:     "t1",
		Intent:     "clean the crm",
		IntentType: model.IntentTypeTool,
		Confidence: 0.9,
		Status:     model.PlanStatusPending,
		Steps: []model.Step{
			{Index: 0, Action: model.ActionReadData, Params: map[string]string{"source": "crm"}, Risk: model.RiskLevelLow},
			{Index: 1, Action: model.ActionAskDecision, Risk: model.RiskLevelLow, Decision: &model.DecisionSpec{
				Question: "Which?",
				Options:  []model.DecisionOption{{ID: "a"}, {ID: "b"}},
				Fallback: "a",
			}},
		},
		Context:    map[string]string{"user": "alice"},
		Program:    "program",
		Simulation: &model.SimulationResult{Success: true, AffectedRecords: 2},
		Risk:       model.RiskLevelLow,
		CreatedAt:  t0,
		UpdatedAt:  t0,
	}

	tests := map[string]struct {
		run func(ctx context.Context, t *testing.T, repo storage.Repository)
	}{
		"Creating and getting a plan should return the same plan.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				require.NoError(t, repo.CreatePlan(ctx, plan))

				got, err := repo.GetPlan(ctx, "p1")
				require.NoError(t, err)
				assert.Equal(t, plan.Steps, got.Steps)
				assert.Equal(t, plan.Context, got.Context)
				assert.Equal(t, plan.Simulation, got.Simulation)
				assert.Equal(t, model.PlanStatusPending, got.Status)
			},
		},
		"A task can only have one plan.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				require.NoError(t, repo.CreatePlan(ctx, plan))
				other := plan
				other.ID = "p2"
				err := repo.CreatePlan(ctx, other)
				assert.ErrorIs(t, err, model.ErrAlreadyExists)
			},
		},
		"Plan status changes should be conditional.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				require.NoError(t, repo.CreatePlan(ctx, plan))
				require.NoError(t, repo.UpdatePlanStatus(ctx, "p1", model.PlanStatusPending, model.PlanStatusApproved))

				err := repo.UpdatePlanStatus(ctx, "p1", model.PlanStatusPending, model.PlanStatusRejected)
				assert.ErrorIs(t, err, model.ErrConflict)

				err = repo.UpdatePlanStatus(ctx, "missing", model.PlanStatusPending, model.PlanStatusRejected)
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			require.NoError(t, repo.CreateTask(ctx, TaskFixture("t1")))
			test.run(ctx, t, repo)
		})
	}
}

func testApprovals(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	pending := model.ApprovalStatusPending

	tests := map[string]struct {
		run func(ctx context.Context, t *testing.T, repo storage.Repository)
	}{
		"Creating and getting an approval by id, token and step should work.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				a := ApprovalFixture("a1", "t1", 1)
				require.NoError(t, repo.CreateApproval(ctx, a))

				got, err := repo.GetApproval(ctx, "a1")
				require.NoError(t, err)
				assert.Equal(t, a.Chain, got.Chain)
				assert.True(t, a.ExpiresAt.Equal(got.ExpiresAt))

				got, err = repo.GetApprovalByToken(ctx, a.Token)
				require.NoError(t, err)
				assert.Equal(t, "a1", got.ID)

				got, err = repo.GetStepApproval(ctx, "t1", 1)
				require.NoError(t, err)
				assert.Equal(t, "a1", got.ID)

				_, err = repo.GetStepApproval(ctx, "t1", 2)
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},
		"A task can only have one pending approval.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				require.NoError(t, repo.CreateApproval(ctx, ApprovalFixture("a1", "t1", 1)))
				err := repo.CreateApproval(ctx, ApprovalFixture("a2", "t1", 2))
				assert.ErrorIs(t, err, model.ErrAlreadyExists)
			},
		},
		"Resolving an approval twice should have a single winner.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				a := ApprovalFixture("a1", "t1", 1)
				require.NoError(t, repo.CreateApproval(ctx, a))

				approved := a
				approved.Status = model.ApprovalStatusApproved
				approved.DecidedBy = "alice"
				decidedAt := t0.Add(time.Minute)
				approved.DecidedAt = &decidedAt
				require.NoError(t, repo.UpdateApproval(ctx, approved, storage.ApprovalExpectation{Status: model.ApprovalStatusPending}))

				expired := a
				expired.Status = model.ApprovalStatusExpired
				err := repo.UpdateApproval(ctx, expired, storage.ApprovalExpectation{Status: model.ApprovalStatusPending})
				assert.ErrorIs(t, err, model.ErrConflict)

				got, err := repo.GetApproval(ctx, "a1")
				require.NoError(t, err)
				assert.Equal(t, model.ApprovalStatusApproved, got.Status)
				assert.Equal(t, "alice", got.DecidedBy)
				require.NotNil(t, got.DecidedAt)
				assert.True(t, decidedAt.Equal(*got.DecidedAt))
			},
		},
		"Advancing a chain level should be conditional on the level.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				a := ApprovalFixture("a1", "t1", 1)
				require.NoError(t, repo.CreateApproval(ctx, a))

				next := a
				next.CurrentLevel = 1
				require.NoError(t, repo.UpdateApproval(ctx, next, storage.ApprovalExpectation{Status: model.ApprovalStatusPending, Level: 0}))
				err := repo.UpdateApproval(ctx, next, storage.ApprovalExpectation{Status: model.ApprovalStatusPending, Level: 0})
				assert.ErrorIs(t, err, model.ErrConflict)
			},
		},
		"Listing approvals should filter by status and expiry.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				require.NoError(t, repo.CreateTask(ctx, TaskFixture("t2")))
				a1 := ApprovalFixture("a1", "t1", 1)
				a1.ExpiresAt = t0.Add(-time.Minute)
				a2 := ApprovalFixture("a2", "t2", 1)
				require.NoError(t, repo.CreateApproval(ctx, a1))
				require.NoError(t, repo.CreateApproval(ctx, a2))

				all, err := repo.ListApprovals(ctx, storage.ApprovalListOpts{Status: &pending})
				require.NoError(t, err)
				assert.Len(t, all, 2)

				expired, err := repo.ListApprovals(ctx, storage.ApprovalListOpts{Status: &pending, ExpiredBefore: &t0})
				require.NoError(t, err)
				require.Len(t, expired, 1)
				assert.Equal(t, "a1", expired[0].ID)

				byTask, err := repo.ListApprovals(ctx, storage.ApprovalListOpts{TaskID: "t2"})
				require.NoError(t, err)
				require.Len(t, byTask, 1)
				assert.Equal(t, "a2", byTask[0].ID)
			},
		},
		"An approver can only vote once per level.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				a := ApprovalFixture("a1", "t1", 1)
				require.NoError(t, repo.CreateApproval(ctx, a))
				vote := model.ApprovalVote{ApprovalID: "a1", Level: 0, Approver: "alice", Verdict: model.VerdictApprove, CreatedAt: t0}
				expect := storage.VoteExpectation{ApprovalExpectation: storage.ApprovalExpectation{Status: model.ApprovalStatusPending}}
				require.NoError(t, repo.RecordApprovalVote(ctx, vote, a, expect))
				expect.Votes = 1
				assert.ErrorIs(t, repo.RecordApprovalVote(ctx, vote, a, expect), model.ErrAlreadyExists)

				vote.Approver = "bob"
				require.NoError(t, repo.RecordApprovalVote(ctx, vote, a, expect))

				votes, err := repo.ListApprovalVotes(ctx, "a1")
				require.NoError(t, err)
				require.Len(t, votes, 2)
				assert.Equal(t, "alice", votes[0].Approver)
				assert.Equal(t, "bob", votes[1].Approver)
			},
		},
		"A vote should store the approval it decides.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				a := ApprovalFixture("a1", "t1", 1)
				require.NoError(t, repo.CreateApproval(ctx, a))

				approved := a
				approved.Status = model.ApprovalStatusApproved
				approved.DecidedBy = "alice"
				vote := model.ApprovalVote{ApprovalID: "a1", Level: 0, Approver: "alice", Verdict: model.VerdictApprove, CreatedAt: t0}
				expect := storage.VoteExpectation{ApprovalExpectation: storage.ApprovalExpectation{Status: model.ApprovalStatusPending}}
				require.NoError(t, repo.RecordApprovalVote(ctx, vote, approved, expect))

				got, err := repo.GetApproval(ctx, "a1")
				require.NoError(t, err)
				assert.Equal(t, model.ApprovalStatusApproved, got.Status)
				assert.Equal(t, "alice", got.DecidedBy)
			},
		},
		"A vote on an approval that changed should not be stored.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				a := ApprovalFixture("a1", "t1", 1)
				require.NoError(t, repo.CreateApproval(ctx, a))

				expired := a
				expired.Status = model.ApprovalStatusExpired
				require.NoError(t, repo.UpdateApproval(ctx, expired, storage.ApprovalExpectation{Status: model.ApprovalStatusPending}))

				approved := a
				approved.Status = model.ApprovalStatusApproved
				vote := model.ApprovalVote{ApprovalID: "a1", Level: 0, Approver: "alice", Verdict: model.VerdictApprove, CreatedAt: t0}
				expect := storage.VoteExpectation{ApprovalExpectation: storage.ApprovalExpectation{Status: model.ApprovalStatusPending}}
				err := repo.RecordApprovalVote(ctx, vote, approved, expect)
				assert.ErrorIs(t, err, model.ErrConflict)

				got, err := repo.GetApproval(ctx, "a1")
				require.NoError(t, err)
				assert.Equal(t, model.ApprovalStatusExpired, got.Status)
				votes, err := repo.ListApprovalVotes(ctx, "a1")
				require.NoError(t, err)
				assert.Empty(t, votes)
			},
		},
		"A vote decided without seeing another vote of the level should not be stored.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				a := ApprovalFixture("a1", "t1", 1)
				require.NoError(t, repo.CreateApproval(ctx, a))
				expect := storage.VoteExpectation{ApprovalExpectation: storage.ApprovalExpectation{Status: model.ApprovalStatusPending}}
				alice := model.ApprovalVote{ApprovalID: "a1", Level: 0, Approver: "alice", Verdict: model.VerdictApprove, CreatedAt: t0}
				require.NoError(t, repo.RecordApprovalVote(ctx, alice, a, expect))

				bob := alice
				bob.Approver = "bob"
				err := repo.RecordApprovalVote(ctx, bob, a, expect)
				assert.ErrorIs(t, err, model.ErrConflict)

				votes, err := repo.ListApprovalVotes(ctx, "a1")
				require.NoError(t, err)
				require.Len(t, votes, 1)
				assert.Equal(t, "alice", votes[0].Approver)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			require.NoError(t, repo.CreateTask(ctx, TaskFixture("t1")))
			test.run(ctx, t, repo)
		})
	}
}

func testDecisions(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	tests := map[string]struct {
		run func(ctx context.Context, t *testing.T, repo storage.Repository)
	}{
		"Creating and getting a decision should work.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				d := DecisionFixture("d1", "t1", 0)
				require.NoError(t, repo.CreateDecision(ctx, d))

				got, err := repo.GetDecision(ctx, "d1")
				require.NoError(t, err)
				assert.Equal(t, d.Options, got.Options)
				assert.Equal(t, 30*time.Minute, got.Timeout)

				got, err = repo.GetDecisionByToken(ctx, d.Token)
				require.NoError(t, err)
				assert.Equal(t, "d1", got.ID)

				got, err = repo.GetStepDecision(ctx, "t1", 0)
				require.NoError(t, err)
				assert.Equal(t, "d1", got.ID)
			},
		},
		"A task can only have one pending decision.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				require.NoError(t, repo.CreateDecision(ctx, DecisionFixture("d1", "t1", 0)))
				err := repo.CreateDecision(ctx, DecisionFixture("d2", "t1", 1))
				assert.ErrorIs(t, err, model.ErrAlreadyExists)
			},
		},
		"Answering a decision racing a timeout should have a single winner.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				d := DecisionFixture("d1", "t1", 0)
				require.NoError(t, repo.CreateDecision(ctx, d))

				timedOut := d
				timedOut.Status = model.DecisionStatusTimeout
				require.NoError(t, repo.UpdateDecision(ctx, timedOut, model.DecisionStatusPending))

				answered := d
				answered.Status = model.DecisionStatusAnswered
				answered.SelectedOption = "work"
				err := repo.UpdateDecision(ctx, answered, model.DecisionStatusPending)
				assert.ErrorIs(t, err, model.ErrConflict)

				got, err := repo.GetDecision(ctx, "d1")
				require.NoError(t, err)
				assert.Equal(t, model.DecisionStatusTimeout, got.Status)
				assert.Empty(t, got.SelectedOption)
			},
		},
		"Listing decisions should filter by expiry.": {
			run: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				d := DecisionFixture("d1", "t1", 0)
				require.NoError(t, repo.CreateDecision(ctx, d))

				before := t0
				expired, err := repo.ListDecisions(ctx, storage.DecisionListOpts{ExpiredBefore: &before})
				require.NoError(t, err)
				assert.Empty(t, expired)

				after := t0.Add(time.Hour)
				expired, err = repo.ListDecisions(ctx, storage.DecisionListOpts{ExpiredBefore: &after})
				require.NoError(t, err)
				assert.Len(t, expired, 1)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			require.NoError(t, repo.CreateTask(ctx, TaskFixture("t1")))
			test.run(ctx, t, repo)
		})
	}
}

func testAudit(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	ctx := context.Background()
	repo := newRepo(t)

	entries := []model.SafetyAuditEntry{
		{ID: "e1", TaskID: "t1", StepIndex: 0, Action: model.ActionReadData, Outcome: model.SafetyOutcomeAllowed, Risk: model.RiskAssessment{Level: model.RiskLevelLow}, CreatedAt: t0},
		{ID: "e2", TaskID: "t1", StepIndex: 1, Action: model.ActionDeploy, Outcome: model.SafetyOutcomeBlocked, Risk: model.RiskAssessment{Level: model.RiskLevelCritical},
			ConstraintChecks: []model.ConstraintCheck{{Name: "deny-deploy", Type: model.ConstraintTypeDenyList, Message: "denied"}}, CreatedAt: t0},
		{ID: "e3", TaskID: "t2", StepIndex: 0, Action: model.ActionReadData, Outcome: model.SafetyOutcomeAllowed, DryRun: true, Simulation: &model.SimulationResult{Success: true}, CreatedAt: t0},
	}
	for _, e := range entries {
		require.NoError(t, repo.AppendAuditEntry(ctx, e))
	}
	assert.ErrorIs(t, repo.AppendAuditEntry(ctx, entries[0]), model.ErrAlreadyExists)

	got, err := repo.ListAuditEntries(ctx, storage.AuditListOpts{TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, "e2", got[1].ID)
	assert.Equal(t, model.SafetyOutcomeBlocked, got[1].Outcome)
	assert.Equal(t, entries[1].ConstraintChecks, got[1].ConstraintChecks)

	got, err = repo.ListAuditEntries(ctx, storage.AuditListOpts{TaskID: "t2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].DryRun)
	assert.NotNil(t, got[0].Simulation)
}

func testClassifications(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	ctx := context.Background()
	repo := newRepo(t)

	c := model.IntentClassification{
		ID:            "c1",
		OriginalText:  "remind me to call mom",
		IntentType:    model.IntentTypeTodo,
		Confidence:    0.8,
		Entities:      map[string]string{"who": "mom"},
		SuggestedName: "call-mom",
		CreatedAt:     t0,
	}
	require.NoError(t, repo.CreateClassification(ctx, c))

	got, err := repo.GetClassification(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c.Entities, got.Entities)
	assert.Nil(t, got.WasCorrect)

	corrected := model.IntentTypeSchedule
	require.NoError(t, repo.SetClassificationFeedback(ctx, "c1", false, &corrected))
	assert.ErrorIs(t, repo.SetClassificationFeedback(ctx, "c1", true, nil), model.ErrConflict)
	assert.ErrorIs(t, repo.SetClassificationFeedback(ctx, "missing", true, nil), model.ErrNotFound)

	got, err = repo.GetClassification(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got.WasCorrect)
	assert.False(t, *got.WasCorrect)
	require.NotNil(t, got.CorrectedType)
	assert.Equal(t, model.IntentTypeSchedule, *got.CorrectedType)
}
