package resume_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/app/apptest"
	"github.com/slok/autotask/internal/app/resume"
	"github.com/slok/autotask/internal/model"
)

const todo = "remind me to call mom tomorrow"

// pausedTask returns a supervised task paused at the step boundary before its first step.
func pausedTask(t *testing.T, stack *apptest.Stack) string {
	t.Helper()
	ctx := context.TODO()

	task := stack.PlanTask(t, todo, model.ExecutionModeSupervised)
	_, err := stack.Orchestrator.Start(ctx, task.ID)
	require.NoError(t, err)
	_, err = stack.Orchestrator.Pause(ctx, task.ID)
	require.NoError(t, err)
	task, err = stack.Orchestrator.Run(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusPaused, task.Status)

	return task.ID
}

func TestNewService(t *testing.T) {
	_, err := resume.NewService(resume.ServiceConfig{})
	assert.ErrorContains(t, err, "orchestrator is required")

	svc, err := resume.NewService(resume.ServiceConfig{Orchestrator: apptest.NewStack(t).Orchestrator})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		setup     func(t *testing.T, stack *apptest.Stack) string
		detach    bool
		expErr    error
		expStatus model.TaskStatus
	}{
		"Missing task id should fail.": {
			setup:  func(t *testing.T, stack *apptest.Stack) string { return "" },
			expErr: model.ErrNotValid,
		},

		"A paused task should be resumed and run to completion.": {
			setup:     pausedTask,
			expStatus: model.TaskStatusCompleted,
		},

		"A detached resume should leave the task running.": {
			setup:     pausedTask,
			detach:    true,
			expStatus: model.TaskStatusRunning,
		},

		"A task paused while waiting on an approval should wait again on the same gate.": {
			setup: func(t *testing.T, stack *apptest.Stack) string {
				task := stack.StartTask(t, todo, model.ExecutionModeManual)
				_, err := stack.Orchestrator.Pause(context.TODO(), task.ID)
				require.NoError(t, err)
				return task.ID
			},
			expStatus: model.TaskStatusWaitingApproval,
		},

		"A pause requested on a running task should be withdrawn.": {
			setup: func(t *testing.T, stack *apptest.Stack) string {
				task := stack.PlanTask(t, todo, model.ExecutionModeSupervised)
				_, err := stack.Orchestrator.Start(context.TODO(), task.ID)
				require.NoError(t, err)
				_, err = stack.Orchestrator.Pause(context.TODO(), task.ID)
				require.NoError(t, err)
				return task.ID
			},
			expStatus: model.TaskStatusCompleted,
		},

		"A ready task can't be resumed.": {
			setup: func(t *testing.T, stack *apptest.Stack) string {
				return stack.PlanTask(t, todo, model.ExecutionModeSupervised).ID
			},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			stack := apptest.NewStack(t)
			id := test.setup(t, stack)

			svc, err := resume.NewService(resume.ServiceConfig{Orchestrator: stack.Orchestrator})
			require.NoError(t, err)

			task, err := svc.Run(context.TODO(), resume.Request{TaskID: id, Detach: test.detach})
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expStatus, task.Status)
			assert.Equal(t, model.TaskInterruptNone, task.Interrupt)
		})
	}
}
