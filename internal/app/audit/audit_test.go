package audit_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/app/audit"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
	"github.com/slok/autotask/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	_, err := audit.NewService(audit.ServiceConfig{})
	assert.ErrorContains(t, err, "repository is required")

	svc, err := audit.NewService(audit.ServiceConfig{Repository: &storagemock.MockRepository{}})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestService_Run(t *testing.T) {
	entries := []model.SafetyAuditEntry{
		{ID: "e1", TaskID: "t1", StepIndex: 0, Outcome: model.SafetyOutcomeAllowed},
		{ID: "e2", TaskID: "t1", StepIndex: 1, Outcome: model.SafetyOutcomeBlocked},
		{ID: "e3", TaskID: "t1", StepIndex: 1, Outcome: model.SafetyOutcomeAllowed},
	}

	tests := map[string]struct {
		mock   func(m *storagemock.MockRepository)
		req    audit.Request
		expRes []model.SafetyAuditEntry
		expErr bool
	}{
		"task entries should be returned": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListAuditEntries", mock.Anything, storage.AuditListOpts{TaskID: "t1"}).Once().Return(entries, nil)
			},
			req:    audit.Request{TaskID: "t1"},
			expRes: entries,
		},
		"outcome filter should be applied": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListAuditEntries", mock.Anything, storage.AuditListOpts{PlanID: "p1"}).Once().Return(entries, nil)
			},
			req:    audit.Request{PlanID: "p1", Outcome: model.SafetyOutcomeBlocked},
			expRes: []model.SafetyAuditEntry{entries[1]},
		},
		"missing filters should fail": {
			mock:   func(m *storagemock.MockRepository) {},
			req:    audit.Request{},
			expErr: true,
		},
		"repository error should propagate": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListAuditEntries", mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("database error"))
			},
			req:    audit.Request{TaskID: "t1"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m := &storagemock.MockRepository{}
			test.mock(m)

			svc, err := audit.NewService(audit.ServiceConfig{Repository: m, Logger: log.Noop})
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
