package orchestrator

import (
	"fmt"

	"github.com/slok/autotask/internal/model"
)

// Event is something that moves a task between states.
type Event string

const (
	EventPlanAttached Event = "plan_attached"
	EventStart        Event = "start"
	EventGate         Event = "gate"
	EventGateResolved Event = "gate_resolved"
	EventPause        Event = "pause"
	EventResume       Event = "resume"
	EventComplete     Event = "complete"
	EventFail         Event = "fail"
	EventCancel       Event = "cancel"
)

var transitions = map[model.TaskStatus]map[Event]model.TaskStatus{
	model.TaskStatusPending: {
		EventPlanAttached: model.TaskStatusReady,
		EventFail:         model.TaskStatusFailed,
		EventCancel:       model.TaskStatusCancelled,
	},
	model.TaskStatusReady: {
		EventStart:  model.TaskStatusRunning,
		EventFail:   model.TaskStatusFailed,
		EventCancel: model.TaskStatusCancelled,
	},
	model.TaskStatusRunning: {
		EventGate:     model.TaskStatusWaitingApproval,
		EventPause:    model.TaskStatusPaused,
		EventComplete: model.TaskStatusCompleted,
		EventFail:     model.TaskStatusFailed,
		EventCancel:   model.TaskStatusCancelled,
	},
	model.TaskStatusWaitingApproval: {
		EventGateResolved: model.TaskStatusRunning,
		EventPause:        model.TaskStatusPaused,
		EventFail:         model.TaskStatusFailed,
		EventCancel:       model.TaskStatusCancelled,
	},
	model.TaskStatusPaused: {
		EventResume: model.TaskStatusRunning,
		EventFail:   model.TaskStatusFailed,
		EventCancel: model.TaskStatusCancelled,
	},
}

// Transition returns the state a task in from moves to on the event.
func Transition(from model.TaskStatus, ev Event) (model.TaskStatus, error) {
	if from.Terminal() {
		return "", fmt.Errorf("task is %s: %w", from, model.ErrNotValid)
	}
	to, ok := transitions[from][ev]
	if !ok {
		return "", fmt.Errorf("invalid transition from %s on %s: %w", from, ev, model.ErrNotValid)
	}
	return to, nil
}
