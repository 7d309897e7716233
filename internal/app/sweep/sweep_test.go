package sweep_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/app/apptest"
	"github.com/slok/autotask/internal/app/sweep"
	"github.com/slok/autotask/internal/gate"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/orchestrator"
)

func TestNewService(t *testing.T) {
	stack := apptest.NewStack(t)

	_, err := sweep.NewService(sweep.ServiceConfig{Reconciler: stack.Orchestrator})
	assert.ErrorContains(t, err, "gateway is required")

	_, err = sweep.NewService(sweep.ServiceConfig{Gateway: stack.Gateway})
	assert.ErrorContains(t, err, "reconciler is required")
}

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		setup     func(t *testing.T, stack *apptest.Stack) string
		advance   time.Duration
		expRes    sweep.Result
		expStatus model.TaskStatus
		expError  string
	}{
		"Nothing to do should be a noop.": {
			setup: func(t *testing.T, stack *apptest.Stack) string {
				return stack.StartTask(t, "remind me to call mom tomorrow", model.ExecutionModeManual).ID
			},
			advance:   time.Hour,
			expStatus: model.TaskStatusWaitingApproval,
		},

		"An expired approval should fail its task.": {
			setup: func(t *testing.T, stack *apptest.Stack) string {
				return stack.StartTask(t, "remind me to call mom tomorrow", model.ExecutionModeManual).ID
			},
			advance: 25 * time.Hour,
			expRes: sweep.Result{
				Swept:      gate.SweepResult{Approvals: 1},
				Reconciled: orchestrator.ReconcileResult{Resumed: 1},
			},
			expStatus: model.TaskStatusFailed,
			expError:  "approval timed out",
		},

		"An expired decision with fallback should continue its task.": {
			setup: func(t *testing.T, stack *apptest.Stack) string {
				return stack.StartTask(t, "improve my sales", model.ExecutionModeSupervised).ID
			},
			advance: 25 * time.Hour,
			expRes: sweep.Result{
				Swept:      gate.SweepResult{Decisions: 1},
				Reconciled: orchestrator.ReconcileResult{Resumed: 1},
			},
			expStatus: model.TaskStatusCompleted,
		},

		"A running task whose driver holds the lease should be left alone.": {
			setup: func(t *testing.T, stack *apptest.Stack) string {
				task := stack.PlanTask(t, "remind me to call mom tomorrow", model.ExecutionModeSupervised)
				_, err := stack.Orchestrator.Start(context.TODO(), task.ID)
				require.NoError(t, err)
				return task.ID
			},
			advance:   time.Minute,
			expStatus: model.TaskStatusRunning,
		},

		"A running task whose lease expired should be run.": {
			setup: func(t *testing.T, stack *apptest.Stack) string {
				task := stack.PlanTask(t, "remind me to call mom tomorrow", model.ExecutionModeSupervised)
				_, err := stack.Orchestrator.Start(context.TODO(), task.ID)
				require.NoError(t, err)
				return task.ID
			},
			advance: 3 * time.Minute,
			expRes: sweep.Result{
				Reconciled: orchestrator.ReconcileResult{Rerun: 1},
			},
			expStatus: model.TaskStatusCompleted,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.TODO()
			stack := apptest.NewStack(t)
			id := test.setup(t, stack)
			stack.Advance(test.advance)

			svc, err := sweep.NewService(sweep.ServiceConfig{
				Gateway:    stack.Gateway,
				Reconciler: stack.Orchestrator,
				TimeNow:    stack.Now,
			})
			require.NoError(t, err)

			res, err := svc.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, test.expRes, *res)

			task, err := stack.Repo.GetTask(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, test.expStatus, task.Status)
			assert.Contains(t, task.Error, test.expError)

			// A second pass has nothing left to do.
			res, err = svc.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, sweep.Result{}, *res)
		})
	}
}
