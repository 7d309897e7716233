// Package runtime is the port to the system that actually performs step actions.
package runtime

import (
	"context"
	"errors"

	"github.com/slok/autotask/internal/model"
)

// Result is the output of an executed action.
type Result struct {
	Output map[string]string
}

// Runtime executes and simulates actions.
//
// Execute is at-least-once: the same idempotency key (model.Action.IdempotencyKey)
// can be dispatched again after a crash, implementations should reattach to or
// return the previous execution when they can.
type Runtime interface {
	Execute(ctx context.Context, action model.Action) (*Result, error)
	Simulate(ctx context.Context, action model.Action) (*model.SimulationResult, error)
}

//go:generate mockery --case underscore --output runtimemock --outpkg runtimemock --name Runtime --structname MockRuntime

// ErrPermanent marks execution failures that must not be retried.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct{ err error }

func (e permanentError) Error() string        { return e.err.Error() }
func (e permanentError) Unwrap() error        { return e.err }
func (e permanentError) Is(target error) bool { return target == ErrPermanent }

// Permanent wraps err so IsPermanent reports true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent returns true when the error must not be retried.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }
