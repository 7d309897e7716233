package list_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/app/list"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/storage"
	"github.com/slok/autotask/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config list.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: list.ServiceConfig{
				Repository: &storagemock.MockRepository{},
				Logger:     log.Noop,
			},
			expErr: false,
		},
		"missing repository should fail": {
			config: list.ServiceConfig{
				Logger: log.Noop,
			},
			expErr: true,
		},
		"nil logger should default to noop": {
			config: list.ServiceConfig{
				Repository: &storagemock.MockRepository{},
			},
			expErr: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			svc, err := list.NewService(test.config)

			if test.expErr {
				require.Error(err)
				require.Nil(svc)
			} else {
				require.NoError(err)
				require.NotNil(svc)
			}
		})
	}
}

func TestService_Run(t *testing.T) {
	createdAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)

	running := model.TaskStatusRunning
	unknown := model.TaskStatus("sleeping")

	tests := map[string]struct {
		mock      func(m *storagemock.MockRepository)
		req       list.Request
		expResult []model.AutoTask
		expErr    bool
	}{
		"list all tasks without filter": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything, storage.TaskListOpts{}).Once().Return([]model.AutoTask{
					{ID: "id1", Title: "task-1", Status: model.TaskStatusRunning, CreatedAt: createdAt},
					{ID: "id2", Title: "task-2", Status: model.TaskStatusCompleted, CreatedAt: createdAt},
				}, nil)
			},
			req: list.Request{},
			expResult: []model.AutoTask{
				{ID: "id1", Title: "task-1", Status: model.TaskStatusRunning, CreatedAt: createdAt},
				{ID: "id2", Title: "task-2", Status: model.TaskStatusCompleted, CreatedAt: createdAt},
			},
		},
		"filters are passed to the repository": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything, storage.TaskListOpts{Status: &running, SessionID: "s1"}).Once().Return([]model.AutoTask{
					{ID: "id1", Title: "task-1", Status: model.TaskStatusRunning, SessionID: "s1", CreatedAt: createdAt},
				}, nil)
			},
			req: list.Request{StatusFilter: &running, SessionID: "s1"},
			expResult: []model.AutoTask{
				{ID: "id1", Title: "task-1", Status: model.TaskStatusRunning, SessionID: "s1", CreatedAt: createdAt},
			},
		},
		"active filter hides terminal tasks": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything, storage.TaskListOpts{}).Once().Return([]model.AutoTask{
					{ID: "id1", Status: model.TaskStatusWaitingApproval, CreatedAt: createdAt},
					{ID: "id2", Status: model.TaskStatusFailed, CreatedAt: createdAt},
					{ID: "id3", Status: model.TaskStatusCancelled, CreatedAt: createdAt},
					{ID: "id4", Status: model.TaskStatusPaused, CreatedAt: createdAt},
				}, nil)
			},
			req: list.Request{Active: true},
			expResult: []model.AutoTask{
				{ID: "id1", Status: model.TaskStatusWaitingApproval, CreatedAt: createdAt},
				{ID: "id4", Status: model.TaskStatusPaused, CreatedAt: createdAt},
			},
		},
		"empty repository returns empty list": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything, storage.TaskListOpts{}).Once().Return([]model.AutoTask{}, nil)
			},
			req:       list.Request{},
			expResult: []model.AutoTask{},
		},
		"an unknown status filter should fail": {
			mock:   func(m *storagemock.MockRepository) {},
			req:    list.Request{StatusFilter: &unknown},
			expErr: true,
		},
		"repository error should propagate": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("database error"))
			},
			req:    list.Request{},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			// Setup
			m := &storagemock.MockRepository{}
			test.mock(m)

			svc, err := list.NewService(list.ServiceConfig{
				Repository: m,
				Logger:     log.Noop,
			})
			require.NoError(err)

			// Execute
			result, err := svc.Run(context.Background(), test.req)

			// Verify
			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
				assert.Equal(test.expResult, result)
			}

			m.AssertExpectations(t)
		})
	}
}
