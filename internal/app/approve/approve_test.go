package approve_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/app/approve"
	"github.com/slok/autotask/internal/app/apptest"
	"github.com/slok/autotask/internal/model"
)

const todo = "remind me to call mom tomorrow"

func TestNewService(t *testing.T) {
	_, err := approve.NewService(approve.ServiceConfig{})
	assert.ErrorContains(t, err, "gateway is required")

	svc, err := approve.NewService(approve.ServiceConfig{Gateway: apptest.NewStack(t).Gateway})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		noResumer bool
		req       func(a model.TaskApproval) approve.Request
		expErr    error
		expStatus model.ApprovalStatus
		validate  func(t *testing.T, stack *apptest.Stack, res *approve.Result)
	}{
		"Missing reference should fail.": {
			req: func(a model.TaskApproval) approve.Request {
				return approve.Request{Approver: "ops", Verdict: model.VerdictApprove}
			},
			expErr: model.ErrNotValid,
		},

		"An invalid verdict should fail.": {
			req: func(a model.TaskApproval) approve.Request {
				return approve.Request{ApprovalID: a.ID, Approver: "ops", Verdict: "maybe"}
			},
			expErr: model.ErrNotValid,
		},

		"Approving should resume the task and run it to completion.": {
			req: func(a model.TaskApproval) approve.Request {
				return approve.Request{ApprovalID: a.ID, Approver: "ops", Verdict: model.VerdictApprove, Reason: "looks fine"}
			},
			expStatus: model.ApprovalStatusApproved,
			validate: func(t *testing.T, stack *apptest.Stack, res *approve.Result) {
				assert.Equal(t, "ops", res.Approval.DecidedBy)
				assert.Equal(t, "looks fine", res.Approval.DecisionReason)
				require.NotNil(t, res.Task)
				assert.Equal(t, model.TaskStatusCompleted, res.Task.Status)
			},
		},

		"Approving by token should work.": {
			req: func(a model.TaskApproval) approve.Request {
				return approve.Request{Token: a.Token, Approver: "ops", Verdict: model.VerdictApprove}
			},
			expStatus: model.ApprovalStatusApproved,
			validate: func(t *testing.T, stack *apptest.Stack, res *approve.Result) {
				require.NotNil(t, res.Task)
				assert.Equal(t, model.TaskStatusCompleted, res.Task.Status)
			},
		},

		"Rejecting should fail the task.": {
			req: func(a model.TaskApproval) approve.Request {
				return approve.Request{ApprovalID: a.ID, Approver: "ops", Verdict: model.VerdictReject, Reason: "no"}
			},
			expStatus: model.ApprovalStatusRejected,
			validate: func(t *testing.T, stack *apptest.Stack, res *approve.Result) {
				require.NotNil(t, res.Task)
				assert.Equal(t, model.TaskStatusFailed, res.Task.Status)
				assert.Contains(t, res.Task.Error, "was rejected")
			},
		},

		"Without resumer the task should stay waiting.": {
			noResumer: true,
			req: func(a model.TaskApproval) approve.Request {
				return approve.Request{ApprovalID: a.ID, Approver: "ops", Verdict: model.VerdictApprove}
			},
			expStatus: model.ApprovalStatusApproved,
			validate: func(t *testing.T, stack *apptest.Stack, res *approve.Result) {
				assert.Nil(t, res.Task)

				task, err := stack.Repo.GetTask(context.TODO(), res.Approval.TaskID)
				require.NoError(t, err)
				assert.Equal(t, model.TaskStatusWaitingApproval, task.Status)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			stack := apptest.NewStack(t)
			task := stack.StartTask(t, todo, model.ExecutionModeManual)
			a, err := stack.Repo.GetStepApproval(context.TODO(), task.ID, 0)
			require.NoError(t, err)

			cfg := approve.ServiceConfig{Gateway: stack.Gateway}
			if !test.noResumer {
				cfg.Resumer = stack.Orchestrator
			}
			svc, err := approve.NewService(cfg)
			require.NoError(t, err)

			res, err := svc.Run(context.TODO(), test.req(*a))
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expStatus, res.Approval.Status)

			if test.validate != nil {
				test.validate(t, stack, res)
			}
		})
	}
}

func TestServiceRunTwiceIsResolved(t *testing.T) {
	stack := apptest.NewStack(t)
	task := stack.StartTask(t, todo, model.ExecutionModeManual)
	a, err := stack.Repo.GetStepApproval(context.TODO(), task.ID, 0)
	require.NoError(t, err)

	svc, err := approve.NewService(approve.ServiceConfig{Gateway: stack.Gateway, Resumer: stack.Orchestrator})
	require.NoError(t, err)

	req := approve.Request{ApprovalID: a.ID, Approver: "ops", Verdict: model.VerdictApprove}
	_, err = svc.Run(context.TODO(), req)
	require.NoError(t, err)

	_, err = svc.Run(context.TODO(), req)
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)
}
