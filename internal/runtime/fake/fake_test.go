package fake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/runtime"
	"github.com/slok/autotask/internal/runtime/fake"
)

func TestRuntimeExecute(t *testing.T) {
	ctx := context.Background()
	rt, err := fake.NewRuntime(fake.RuntimeConfig{})
	require.NoError(t, err)

	action := model.Action{TaskID: "t1", StepIndex: 2, Type: model.ActionCreateRecord, Params: map[string]string{"table": "leads"}}
	key := action.IdempotencyKey()
	assert.Equal(t, "t1/2", key)

	rt.FailNext(key, 1, errors.New("temporary"))
	_, err = rt.Execute(ctx, action)
	assert.Error(t, err)
	assert.False(t, rt.Executed(key))

	res, err := rt.Execute(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, "leads-2", res.Output["id"])

	again, err := rt.Execute(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, res, again)
	assert.Equal(t, 3, rt.Calls(key))
	assert.True(t, rt.Executed(key))
}

func TestRuntimeSimulate(t *testing.T) {
	tests := map[string]struct {
		setup  func(rt *fake.Runtime)
		action model.Action
		exp    model.SimulationResult
		expErr bool
	}{
		"Read actions should not have side effects.": {
			action: model.Action{Type: model.ActionReadData},
			exp:    model.SimulationResult{Success: true, Duration: 10 * time.Millisecond},
		},
		"Write actions should report the affected records from the params.": {
			action: model.Action{Type: model.ActionBulkUpdate, Params: map[string]string{"count": "250"}},
			exp:    model.SimulationResult{Success: true, AffectedRecords: 250, SideEffects: []string{"bulk_update"}, Duration: 10 * time.Millisecond},
		},
		"Scripted simulations should be returned.": {
			setup: func(rt *fake.Runtime) {
				rt.SetSimulation(model.ActionReadData, model.SimulationResult{Success: true, SideEffects: []string{"cache_write"}})
			},
			action: model.Action{Type: model.ActionReadData},
			exp:    model.SimulationResult{Success: true, SideEffects: []string{"cache_write"}},
		},
		"Scripted simulation errors should be returned.": {
			setup: func(rt *fake.Runtime) {
				rt.SetSimulationError(model.ActionDeploy, errors.New("unreachable"))
			},
			action: model.Action{Type: model.ActionDeploy},
			expErr: true,
		},
		"Unknown actions should fail permanently.": {
			action: model.Action{Type: "launch_rocket"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			rt, err := fake.NewRuntime(fake.RuntimeConfig{})
			require.NoError(t, err)
			if test.setup != nil {
				test.setup(rt)
			}

			got, err := rt.Simulate(context.Background(), test.action)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.exp, *got)
		})
	}
}

func TestRuntimeUnknownSimulationIsPermanent(t *testing.T) {
	rt, _ := fake.NewRuntime(fake.RuntimeConfig{})
	_, err := rt.Simulate(context.Background(), model.Action{Type: "nope"})
	assert.True(t, runtime.IsPermanent(err))
}
