package pending_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/app/pending"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
	"github.com/slok/autotask/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	_, err := pending.NewService(pending.ServiceConfig{})
	assert.ErrorContains(t, err, "repository is required")

	svc, err := pending.NewService(pending.ServiceConfig{Repository: &storagemock.MockRepository{}})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestService_Run(t *testing.T) {
	t0 := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	pendingApproval := model.ApprovalStatusPending
	pendingDecision := model.DecisionStatusPending

	tests := map[string]struct {
		mock   func(m *storagemock.MockRepository)
		req    pending.Request
		expRes *pending.Result
		expErr bool
	}{
		"pending gates should be sorted by expiration": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListApprovals", mock.Anything, storage.ApprovalListOpts{Status: &pendingApproval}).Once().Return([]model.TaskApproval{
					{ID: "a1", ExpiresAt: t0.Add(2 * time.Hour)},
					{ID: "a2", ExpiresAt: t0.Add(time.Hour)},
				}, nil)
				m.On("ListDecisions", mock.Anything, storage.DecisionListOpts{Status: &pendingDecision}).Once().Return([]model.TaskDecision{
					{ID: "d1", ExpiresAt: t0.Add(3 * time.Hour)},
					{ID: "d2", ExpiresAt: t0},
				}, nil)
			},
			req: pending.Request{},
			expRes: &pending.Result{
				Approvals: []model.TaskApproval{{ID: "a2", ExpiresAt: t0.Add(time.Hour)}, {ID: "a1", ExpiresAt: t0.Add(2 * time.Hour)}},
				Decisions: []model.TaskDecision{{ID: "d2", ExpiresAt: t0}, {ID: "d1", ExpiresAt: t0.Add(3 * time.Hour)}},
			},
		},
		"task filter should be passed to the repository": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListApprovals", mock.Anything, storage.ApprovalListOpts{TaskID: "t1", Status: &pendingApproval}).Once().Return([]model.TaskApproval{}, nil)
				m.On("ListDecisions", mock.Anything, storage.DecisionListOpts{TaskID: "t1", Status: &pendingDecision}).Once().Return([]model.TaskDecision{}, nil)
			},
			req:    pending.Request{TaskID: "t1"},
			expRes: &pending.Result{Approvals: []model.TaskApproval{}, Decisions: []model.TaskDecision{}},
		},
		"repository error should propagate": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListApprovals", mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("database error"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m := &storagemock.MockRepository{}
			test.mock(m)

			svc, err := pending.NewService(pending.ServiceConfig{Repository: m, Logger: log.Noop})
			require.NoError(t, err)

			res, err := svc.Run(context.Background(), test.req)
			if test.expErr {
				assert.Error(t, err)
			} else if assert.NoError(t, err) {
				assert.Equal(t, test.expRes, res)
			}

			m.AssertExpectations(t)
		})
	}
}
