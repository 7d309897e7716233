// Package metrics is the instrumentation port of the engine.
package metrics

import (
	"context"
	"time"

	"github.com/slok/autotask/internal/model"
)

// Recorder records engine metrics.
type Recorder interface {
	TaskTransition(ctx context.Context, from, to model.TaskStatus)
	SafetyOutcome(ctx context.Context, action model.ActionType, outcome model.SafetyOutcome, dryRun bool)
	StepDispatch(ctx context.Context, action model.ActionType, success bool, attempts int, duration time.Duration)
	GateResolved(ctx context.Context, kind model.GateKind, status string, waited time.Duration)
	Swept(ctx context.Context, kind model.GateKind, resolved int)
}

// Noop is a recorder that doesn't record anything.
const Noop = noop(0)

type noop int

var _ Recorder = Noop

func (noop) TaskTransition(context.Context, model.TaskStatus, model.TaskStatus)         {}
func (noop) SafetyOutcome(context.Context, model.ActionType, model.SafetyOutcome, bool) {}
func (noop) StepDispatch(context.Context, model.ActionType, bool, int, time.Duration)   {}
func (noop) GateResolved(context.Context, model.GateKind, string, time.Duration)        {}
func (noop) Swept(context.Context, model.GateKind, int)                                 {}
