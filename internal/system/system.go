// Package system wires the autotask components into a running engine. The CLI and
// the SDK build their use cases on top of it.
package system

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/autotask/internal/events"
	"github.com/slok/autotask/internal/gate"
	"github.com/slok/autotask/internal/intent"
	"github.com/slok/autotask/internal/llm"
	"github.com/slok/autotask/internal/llm/heuristic"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/metrics"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/notify"
	"github.com/slok/autotask/internal/notify/lognotify"
	"github.com/slok/autotask/internal/orchestrator"
	"github.com/slok/autotask/internal/plan"
	"github.com/slok/autotask/internal/runtime"
	"github.com/slok/autotask/internal/runtime/fake"
	"github.com/slok/autotask/internal/safety"
	"github.com/slok/autotask/internal/storage"
)

// Config is the configuration of the system.
type Config struct {
	Repository storage.Repository
	// Model is used for classification and plan proposals, when missing the
	// offline heuristic model and the plan templates are used.
	Model   llm.Client
	Runtime runtime.Runtime
	// Notifier delivers gate prompts, defaults to the logger.
	Notifier notify.Notifier
	// Publisher receives gate resolutions, defaults to discarding them.
	Publisher       events.Publisher
	Policy          *model.Policy
	ConfidenceFloor float64
	Metrics         metrics.Recorder
	// TaskLease is the running task lease of the orchestrator.
	TaskLease time.Duration
	Logger    log.Logger
	// Sleep replaces the retry wait, used by tests.
	Sleep   func(ctx context.Context, d time.Duration) error
	TimeNow func() time.Time
}

func (c *Config) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	if c.Runtime == nil {
		rt, err := fake.NewRuntime(fake.RuntimeConfig{Logger: c.Logger})
		if err != nil {
			return fmt.Errorf("could not create fake runtime: %w", err)
		}
		c.Runtime = rt
	}
	if c.Notifier == nil {
		c.Notifier = lognotify.NewNotifier(c.Logger)
	}
	if c.Publisher == nil {
		c.Publisher = events.Noop
	}
	if c.Policy == nil {
		p := model.DefaultPolicy()
		c.Policy = &p
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	return nil
}

// System holds the wired components.
type System struct {
	Repository   storage.Repository
	Runtime      runtime.Runtime
	Classifier   *intent.Classifier
	Compiler     *plan.Compiler
	Safety       *safety.Engine
	Gateway      *gate.Gateway
	Orchestrator *orchestrator.Orchestrator
	Policy       model.Policy
}

// New wires a new system.
func New(cfg Config) (*System, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var (
		lm       llm.Client = heuristic.NewClient()
		proposer plan.Proposer
	)
	if cfg.Model != nil {
		lm = cfg.Model
		p, err := plan.NewLLMProposer(plan.LLMProposerConfig{Model: cfg.Model, Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create plan proposer: %w", err)
		}
		proposer = p
	} else {
		proposer = plan.NewTemplateProposer()
	}

	safetyEngine, err := safety.NewEngine(safety.EngineConfig{
		Runtime:       cfg.Runtime,
		Repository:    cfg.Repository,
		Policy:        cfg.Policy.Safety,
		RiskOverrides: cfg.Policy.RiskOverrides,
		Metrics:       cfg.Metrics,
		Logger:        cfg.Logger,
		TimeNow:       cfg.TimeNow,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create safety engine: %w", err)
	}

	gateway, err := gate.NewGateway(gate.GatewayConfig{
		Repository: cfg.Repository,
		Notifier:   cfg.Notifier,
		Publisher:  cfg.Publisher,
		Policy:     cfg.Policy.Approval,
		Metrics:    cfg.Metrics,
		Logger:     cfg.Logger,
		TimeNow:    cfg.TimeNow,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create gateway: %w", err)
	}

	classifier, err := intent.NewClassifier(intent.ClassifierConfig{
		Model:           lm,
		Repository:      cfg.Repository,
		ConfidenceFloor: cfg.ConfidenceFloor,
		Logger:          cfg.Logger,
		TimeNow:         cfg.TimeNow,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create classifier: %w", err)
	}

	compiler, err := plan.NewCompiler(plan.CompilerConfig{
		Proposer:  proposer,
		Simulator: safetyEngine,
		Policy:    *cfg.Policy,
		Logger:    cfg.Logger,
		TimeNow:   cfg.TimeNow,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create compiler: %w", err)
	}

	orch, err := orchestrator.NewOrchestrator(orchestrator.OrchestratorConfig{
		Repository: cfg.Repository,
		Safety:     safetyEngine,
		Gateway:    gateway,
		Runtime:    cfg.Runtime,
		Sleep:      cfg.Sleep,
		Lease:      cfg.TaskLease,
		Metrics:    cfg.Metrics,
		Logger:     cfg.Logger,
		TimeNow:    cfg.TimeNow,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create orchestrator: %w", err)
	}

	return &System{
		Repository:   cfg.Repository,
		Runtime:      cfg.Runtime,
		Classifier:   classifier,
		Compiler:     compiler,
		Safety:       safetyEngine,
		Gateway:      gateway,
		Orchestrator: orch,
		Policy:       *cfg.Policy,
	}, nil
}
