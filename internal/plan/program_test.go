package plan_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/plan"
)

func TestRenderProgram(t *testing.T) {
	p := model.ExecutionPlan{
		ID:         "plan-1",
		Intent:     "check stock",
		IntentType: model.IntentTypeMonitor,
		Steps: []model.Step{
			{Index: 0, Name: "watch", Action: model.ActionMonitorCondition, Params: map[string]string{"condition": "stock < 5"}, Risk: model.RiskLevelLow, Retryable: true, MaxAttempts: 3},
			{Index: 1, Name: "ask", Action: model.ActionAskDecision, Params: map[string]string{}, Risk: model.RiskLevelLow, MaxAttempts: 1, Decision: &model.DecisionSpec{
				Question: "Restock?",
				Options:  []model.DecisionOption{{ID: "yes", Label: "Yes"}, {ID: "no", Label: "No"}},
				Timeout:  time.Hour,
			}},
		},
	}

	got, err := plan.RenderProgram(p)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "version: autotask/v1\n"))
	assert.Contains(t, got, "intentType: MONITOR")
	assert.Contains(t, got, "action: monitor_condition")
	assert.Contains(t, got, "timeout: 1h0m0s")

	steps, err := plan.ParseProgram(got)
	require.NoError(t, err)
	assert.Equal(t, p.Steps, steps)
}

func TestParseProgram(t *testing.T) {
	tests := map[string]struct {
		program string
		expErr  bool
	}{
		"A valid program should parse.": {
			program: "version: autotask/v1\nsteps:\n  - index: 0\n    action: read_data\n    risk: low\n    params:\n      source: x\n",
		},

		"Invalid YAML should fail.": {
			program: "version: [",
			expErr:  true,
		},

		"An unknown version should fail.": {
			program: "version: autotask/v9\nsteps:\n  - index: 0\n    action: read_data\n    risk: low\n    params:\n      source: x\n",
			expErr:  true,
		},

		"Unknown fields should fail.": {
			program: "version: autotask/v1\nsteps:\n  - index: 0\n    action: read_data\n    risk: low\n    shell: rm -rf /\n    params:\n      source: x\n",
			expErr:  true,
		},

		"No steps should fail.": {
			program: "version: autotask/v1\nsteps: []\n",
			expErr:  true,
		},

		"Unordered indexes should fail.": {
			program: "version: autotask/v1\nsteps:\n  - index: 1\n    action: read_data\n    risk: low\n    params:\n      source: x\n",
			expErr:  true,
		},

		"An unknown action should fail.": {
			program: "version: autotask/v1\nsteps:\n  - index: 0\n    action: format_disk\n    risk: low\n",
			expErr:  true,
		},

		"A missing parameter should fail.": {
			program: "version: autotask/v1\nsteps:\n  - index: 0\n    action: read_data\n    risk: low\n",
			expErr:  true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := plan.ParseProgram(test.program)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
