// Package fake is an in-memory runtime. Executions are recorded by idempotency key
// and failures and simulations can be scripted.
package fake

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/runtime"
)

// RuntimeConfig is the configuration for the fake runtime.
type RuntimeConfig struct {
	Logger log.Logger
}

func (c *RuntimeConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "runtime.Fake"})
	return nil
}

type failure struct {
	remaining int
	err       error
}

// Runtime is a fake implementation of the runtime.Runtime interface.
type Runtime struct {
	executed    map[string]runtime.Result
	calls       map[string]int
	failures    map[string]*failure
	simulations map[model.ActionType]model.SimulationResult
	simErrs     map[model.ActionType]error
	mu          sync.Mutex
	logger      log.Logger
}

// NewRuntime creates a new fake runtime.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runtime{
		executed:    map[string]runtime.Result{},
		calls:       map[string]int{},
		failures:    map[string]*failure{},
		simulations: map[model.ActionType]model.SimulationResult{},
		simErrs:     map[model.ActionType]error{},
		logger:      cfg.Logger,
	}, nil
}

// FailNext makes the next times executions of the idempotency key fail with err.
func (r *Runtime) FailNext(key string, times int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[key] = &failure{remaining: times, err: err}
}

// SetSimulation sets the simulation result returned for an action type.
func (r *Runtime) SetSimulation(t model.ActionType, res model.SimulationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.simulations[t] = res
}

// SetSimulationError makes simulations of an action type fail.
func (r *Runtime) SetSimulationError(t model.ActionType, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.simErrs[t] = err
}

// Calls returns how many times an idempotency key has been dispatched.
func (r *Runtime) Calls(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[key]
}

// Executed returns true when the idempotency key completed successfully.
func (r *Runtime) Executed(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.executed[key]
	return ok
}

// Execute satisfies runtime.Runtime.
func (r *Runtime) Execute(ctx context.Context, action model.Action) (*runtime.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := action.IdempotencyKey()
	r.calls[key]++

	if res, ok := r.executed[key]; ok {
		r.logger.Debugf("Action %s already executed, returning previous result", key)
		return &res, nil
	}

	if f, ok := r.failures[key]; ok && f.remaining > 0 {
		f.remaining--
		return nil, f.err
	}

	res := runtime.Result{Output: output(action)}
	r.executed[key] = res
	r.logger.Infof("Executed fake action %s (%s)", key, action.Type)

	return &res, nil
}

// Simulate satisfies runtime.Runtime.
func (r *Runtime) Simulate(ctx context.Context, action model.Action) (*model.SimulationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.simErrs[action.Type]; err != nil {
		return nil, err
	}
	if res, ok := r.simulations[action.Type]; ok {
		return &res, nil
	}

	spec, ok := model.LookupAction(action.Type)
	if !ok {
		return nil, runtime.Permanent(fmt.Errorf("unknown action %q: %w", action.Type, model.ErrNotValid))
	}

	res := model.SimulationResult{Success: true, Duration: 10 * time.Millisecond}
	if spec.SideEffects {
		res.AffectedRecords = affected(action.Params)
		res.SideEffects = []string{string(action.Type)}
	}

	return &res, nil
}

func affected(params map[string]string) int {
	for _, k := range []string{"count", "limit"} {
		if n, err := strconv.Atoi(params[k]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func output(action model.Action) map[string]string {
	out := map[string]string{"action": string(action.Type), "status": "ok"}
	switch action.Type {
	case model.ActionReadData:
		out["rows"] = "0"
	case model.ActionCreateRecord:
		out["id"] = fmt.Sprintf("%s-%d", action.Params["table"], action.StepIndex)
	case model.ActionHTTPRequest:
		out["status_code"] = "200"
	}
	return out
}
