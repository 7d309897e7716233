package system_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/intent"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/orchestrator"
	"github.com/slok/autotask/internal/plan"
	"github.com/slok/autotask/internal/storage/memory"
	"github.com/slok/autotask/internal/system"
)

func TestNew(t *testing.T) {
	tests := map[string]struct {
		cfg    func(t *testing.T) system.Config
		expErr bool
	}{
		"Missing repository should fail.": {
			cfg:    func(t *testing.T) system.Config { return system.Config{} },
			expErr: true,
		},

		"Only a repository should use the defaults.": {
			cfg: func(t *testing.T) system.Config {
				repo, err := memory.NewRepository(memory.RepositoryConfig{})
				require.NoError(t, err)
				return system.Config{Repository: repo}
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			sys, err := system.New(test.cfg(t))
			if test.expErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, model.DefaultPolicy().Approval.DefaultTimeout, sys.Policy.Approval.DefaultTimeout)
			assert.NotNil(t, sys.Runtime)
		})
	}
}

func TestSystemRunsTask(t *testing.T) {
	ctx := context.TODO()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	sys, err := system.New(system.Config{
		Repository: repo,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	})
	require.NoError(t, err)

	cl, err := sys.Classifier.Classify(ctx, intent.ClassifyRequest{Text: "remind me to call mom tomorrow"})
	require.NoError(t, err)
	require.Equal(t, model.IntentTypeTodo, cl.IntentType)

	task, err := sys.Orchestrator.Create(ctx, orchestrator.CreateRequest{Intent: cl.OriginalText})
	require.NoError(t, err)
	p, err := sys.Compiler.Compile(ctx, plan.CompileRequest{TaskID: task.ID, Classification: *cl})
	require.NoError(t, err)
	_, err = sys.Orchestrator.AttachPlan(ctx, task.ID, *p)
	require.NoError(t, err)
	_, err = sys.Orchestrator.Start(ctx, task.ID)
	require.NoError(t, err)

	task, err = sys.Orchestrator.Run(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, task.Status)
}
