package prometheus_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	autotaskprom "github.com/slok/autotask/internal/metrics/prometheus"
	"github.com/slok/autotask/internal/model"
)

func TestRecorder(t *testing.T) {
	tests := map[string]struct {
		record     func(r *autotaskprom.Recorder)
		expMetrics string
		names      []string
	}{
		"Task transitions should be counted by status.": {
			record: func(r *autotaskprom.Recorder) {
				ctx := context.Background()
				r.TaskTransition(ctx, model.TaskStatusReady, model.TaskStatusRunning)
				r.TaskTransition(ctx, model.TaskStatusReady, model.TaskStatusRunning)
				r.TaskTransition(ctx, model.TaskStatusRunning, model.TaskStatusCompleted)
			},
			names: []string{"autotask_task_transitions_total"},
			expMetrics: `
# HELP autotask_task_transitions_total Total number of task status transitions.
# TYPE autotask_task_transitions_total counter
autotask_task_transitions_total{from="ready",to="running"} 2
autotask_task_transitions_total{from="running",to="completed"} 1
`,
		},
		"Safety outcomes should be counted by action and outcome.": {
			record: func(r *autotaskprom.Recorder) {
				ctx := context.Background()
				r.SafetyOutcome(ctx, model.ActionDeploy, model.SafetyOutcomeBlocked, false)
				r.SafetyOutcome(ctx, model.ActionReadData, model.SafetyOutcomeAllowed, true)
			},
			names: []string{"autotask_safety_evaluations_total"},
			expMetrics: `
# HELP autotask_safety_evaluations_total Total number of safety evaluations by outcome.
# TYPE autotask_safety_evaluations_total counter
autotask_safety_evaluations_total{action="deploy",dry_run="false",outcome="blocked"} 1
autotask_safety_evaluations_total{action="read_data",dry_run="true",outcome="allowed"} 1
`,
		},
		"Swept gates should be counted by kind.": {
			record: func(r *autotaskprom.Recorder) {
				r.Swept(context.Background(), model.GateKindApproval, 3)
				r.Swept(context.Background(), model.GateKindDecision, 0)
			},
			names: []string{"autotask_gate_swept_total"},
			expMetrics: `
# HELP autotask_gate_swept_total Total number of gates resolved by the expiry sweep.
# TYPE autotask_gate_swept_total counter
autotask_gate_swept_total{kind="approval"} 3
autotask_gate_swept_total{kind="decision"} 0
`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			r := autotaskprom.NewRecorder(reg)
			test.record(r)

			err := testutil.GatherAndCompare(reg, strings.NewReader(test.expMetrics), test.names...)
			assert.NoError(t, err)
		})
	}
}

func TestRecorderHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := autotaskprom.NewRecorder(reg)

	r.StepDispatch(context.Background(), model.ActionSendEmail, true, 2, 300*time.Millisecond)
	r.GateResolved(context.Background(), model.GateKindApproval, "approved", time.Minute)

	n, err := testutil.GatherAndCount(reg, "autotask_step_attempts", "autotask_step_duration_seconds", "autotask_gate_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = testutil.GatherAndCount(reg, "autotask_step_dispatches_total", "autotask_gate_resolutions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
