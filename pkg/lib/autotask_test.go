package lib_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/pkg/lib"
)

// newTestClient creates a client with a temp SQLite DB for test isolation.
func newTestClient(t *testing.T) *lib.Client {
	t.Helper()

	client, err := lib.New(context.Background(), lib.Config{
		DBPath:  filepath.Join(t.TempDir(), "test.db"),
		Runtime: lib.RuntimeFake,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestNew(t *testing.T) {
	tests := map[string]struct {
		cfg    func(t *testing.T) lib.Config
		expErr error
	}{
		"Defaults should work.": {
			cfg: func(t *testing.T) lib.Config {
				return lib.Config{DBPath: filepath.Join(t.TempDir(), "test.db")}
			},
		},

		"An unknown runtime should fail.": {
			cfg: func(t *testing.T) lib.Config {
				return lib.Config{DBPath: filepath.Join(t.TempDir(), "test.db"), Runtime: "k8s"}
			},
			expErr: lib.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			client, err := lib.New(context.Background(), test.cfg(t))
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, client.Close())
		})
	}
}

func TestCreateTask(t *testing.T) {
	tests := map[string]struct {
		opts     lib.CreateTaskOpts
		expErr   error
		validate func(t *testing.T, res *lib.CreateTaskResult)
	}{
		"An empty request should fail.": {
			opts:   lib.CreateTaskOpts{Text: " "},
			expErr: lib.ErrNotValid,
		},

		"An unclear request should ask for clarification.": {
			opts: lib.CreateTaskOpts{Text: "hello there"},
			validate: func(t *testing.T, res *lib.CreateTaskResult) {
				assert.True(t, res.NeedsClarification())
				assert.Nil(t, res.Plan)
				assert.NotEmpty(t, res.Classification.ClarificationQuestion)
			},
		},

		"A clear request should create a ready task with its plan.": {
			opts: lib.CreateTaskOpts{Text: "remind me to call mom tomorrow", SessionID: "s1", Title: "Call mom"},
			validate: func(t *testing.T, res *lib.CreateTaskResult) {
				require.False(t, res.NeedsClarification())
				assert.Equal(t, "TODO", res.Classification.IntentType)
				assert.Equal(t, lib.TaskStatusReady, res.Task.Status)
				assert.Equal(t, "Call mom", res.Task.Title)
				assert.Equal(t, lib.ExecutionModeSupervised, res.Task.Mode)
				require.NotNil(t, res.Plan)
				assert.Equal(t, res.Plan.ID, res.Task.PlanID)
				assert.Len(t, res.Plan.Steps, res.Task.TotalSteps)
			},
		},

		"Starting a low risk task should run it to completion.": {
			opts: lib.CreateTaskOpts{Text: "remind me to call mom tomorrow", Start: true},
			validate: func(t *testing.T, res *lib.CreateTaskResult) {
				assert.Equal(t, lib.TaskStatusCompleted, res.Task.Status)
				assert.Equal(t, 1.0, res.Task.Progress)
				for _, sr := range res.Task.StepResults {
					assert.Equal(t, "succeeded", sr.Status)
				}
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t)

			res, err := client.CreateTask(context.Background(), test.opts)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)
			test.validate(t, res)
		})
	}
}

func TestListAndGetTasks(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.CreateTask(ctx, lib.CreateTaskOpts{Text: "remind me to call mom tomorrow", SessionID: "s1", Start: true})
	require.NoError(t, err)
	res, err := client.CreateTask(ctx, lib.CreateTaskOpts{Text: "remind me to buy milk tomorrow", SessionID: "s2"})
	require.NoError(t, err)

	all, err := client.ListTasks(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := client.ListTasks(ctx, &lib.ListTasksOpts{Active: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, res.Task.ID, active[0].ID)

	s1, err := client.ListTasks(ctx, &lib.ListTasksOpts{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, s1, 1)
	assert.Equal(t, lib.TaskStatusCompleted, s1[0].Status)

	detail, err := client.GetTask(ctx, res.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Task.ID, detail.Task.ID)
	require.NotNil(t, detail.Plan)
	assert.Nil(t, detail.PendingApproval)
	assert.Nil(t, detail.PendingDecision)

	_, err = client.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, lib.ErrNotFound)
}

func TestCancelTask(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	res, err := client.CreateTask(ctx, lib.CreateTaskOpts{Text: "remind me to call mom tomorrow"})
	require.NoError(t, err)

	task, err := client.CancelTask(ctx, res.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, lib.TaskStatusCancelled, task.Status)

	_, err = client.CancelTask(ctx, res.Task.ID)
	assert.ErrorIs(t, err, lib.ErrNotValid)

	_, err = client.ResumeTask(ctx, res.Task.ID)
	assert.ErrorIs(t, err, lib.ErrNotValid)
}

func TestApprove(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	res, err := client.CreateTask(ctx, lib.CreateTaskOpts{
		Text:  "remind me to call mom tomorrow",
		Mode:  lib.ExecutionModeManual,
		Start: true,
	})
	require.NoError(t, err)
	require.Equal(t, lib.TaskStatusWaitingApproval, res.Task.Status)

	pending, err := client.ListPending(ctx, res.Task.ID)
	require.NoError(t, err)
	require.Len(t, pending.Approvals, 1)
	assert.Empty(t, pending.Decisions)
	a := pending.Approvals[0]
	assert.Equal(t, 0, a.StepIndex)
	assert.Equal(t, "pending", a.Status)

	got, err := client.Approve(ctx, lib.ApproveOpts{ApprovalID: a.ID, Approver: "alice", Reason: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "approved", got.Approval.Status)
	assert.Equal(t, "alice", got.Approval.DecidedBy)
	require.NotNil(t, got.Task)
	require.NotEmpty(t, got.Task.StepResults)
	assert.Equal(t, "succeeded", got.Task.StepResults[0].Status)

	_, err = client.Approve(ctx, lib.ApproveOpts{ApprovalID: a.ID, Approver: "alice"})
	assert.ErrorIs(t, err, lib.ErrAlreadyResolved)

	_, err = client.Approve(ctx, lib.ApproveOpts{Approver: "alice"})
	assert.ErrorIs(t, err, lib.ErrNotValid)
}

func TestDecide(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	res, err := client.CreateTask(ctx, lib.CreateTaskOpts{
		Text:  "increase sales by 10%",
		Mode:  lib.ExecutionModeAutonomous,
		Start: true,
	})
	require.NoError(t, err)
	require.False(t, res.NeedsClarification())

	detail, err := client.GetTask(ctx, res.Task.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.PendingDecision)
	d := detail.PendingDecision
	require.Len(t, d.Options, 2)

	_, err = client.Decide(ctx, lib.DecideOpts{DecisionID: d.ID, Option: "nope", By: "alice"})
	assert.ErrorIs(t, err, lib.ErrNotValid)

	got, err := client.Decide(ctx, lib.DecideOpts{DecisionID: d.ID, Option: "plan", By: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "answered", got.Decision.Status)
	assert.Equal(t, "plan", got.Decision.SelectedOption)
	require.NotNil(t, got.Task)

	_, err = client.Decide(ctx, lib.DecideOpts{DecisionID: d.ID, Option: "track", By: "alice"})
	assert.ErrorIs(t, err, lib.ErrAlreadyResolved)
}

func TestClassifyAndFeedback(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	cl, err := client.Classify(ctx, "remind me to call mom tomorrow", nil)
	require.NoError(t, err)
	assert.Equal(t, "TODO", cl.IntentType)
	assert.NotEmpty(t, cl.ID)

	require.NoError(t, client.Feedback(ctx, cl.ID, lib.FeedbackOpts{WasCorrect: true}))

	err = client.Feedback(ctx, cl.ID, lib.FeedbackOpts{WasCorrect: true})
	assert.ErrorIs(t, err, lib.ErrConflict)

	err = client.Feedback(ctx, "missing", lib.FeedbackOpts{CorrectedType: "GOAL"})
	assert.ErrorIs(t, err, lib.ErrNotFound)

	_, err = client.Classify(ctx, "", nil)
	assert.ErrorIs(t, err, lib.ErrNotValid)
}

func TestAudit(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	res, err := client.CreateTask(ctx, lib.CreateTaskOpts{Text: "remind me to call mom tomorrow", Start: true})
	require.NoError(t, err)

	entries, err := client.Audit(ctx, lib.AuditOpts{TaskID: res.Task.ID})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, res.Task.ID, e.TaskID)
		assert.Equal(t, "allowed", e.Outcome)
	}

	blocked, err := client.Audit(ctx, lib.AuditOpts{TaskID: res.Task.ID, Outcome: "blocked"})
	require.NoError(t, err)
	assert.Empty(t, blocked)

	_, err = client.Audit(ctx, lib.AuditOpts{})
	assert.ErrorIs(t, err, lib.ErrNotValid)
}

func TestSweep(t *testing.T) {
	client := newTestClient(t)

	res, err := client.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lib.SweepResult{}, *res)
}

func TestDoctor(t *testing.T) {
	client := newTestClient(t)

	results, err := client.Doctor(context.Background())
	require.NoError(t, err)

	got := map[string]lib.CheckStatus{}
	for _, r := range results {
		got[r.ID] = r.Status
	}
	assert.Equal(t, lib.CheckStatusOK, got["db_reachable"])
	assert.Equal(t, lib.CheckStatusOK, got["db_schema"])
	assert.Equal(t, lib.CheckStatusWarning, got["language_model"])
	assert.Equal(t, lib.CheckStatusWarning, got["runtime"])
}
