package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slok/autotask/internal/app/doctor"
	"github.com/slok/autotask/internal/llm/langchain"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/notify/webhook"
	"github.com/slok/autotask/internal/runtime/docker"
	storageio "github.com/slok/autotask/internal/storage/io"
	"github.com/slok/autotask/internal/storage/sqlite"
	"github.com/slok/autotask/internal/system"
)

const (
	defaultDataDir = ".autotask"
	defaultDBFile  = "autotask.db"
)

// RuntimeType identifies where the plan actions are executed.
type RuntimeType string

const (
	// RuntimeFake simulates the actions in memory, no side effects.
	// Use this for unit testing without infrastructure dependencies.
	RuntimeFake RuntimeType = "fake"

	// RuntimeDocker runs every action in a container of the executor image.
	// Requires a reachable Docker daemon.
	RuntimeDocker RuntimeType = "docker"
)

// ModelConfig selects a remote language model for classification and planning.
type ModelConfig struct {
	// Provider is one of openai, anthropic, ollama or googleai.
	Provider string
	// Name is the model name, the provider default when empty.
	Name string
	// APIKey falls back to the provider environment variable (e.g. OPENAI_API_KEY).
	APIKey  string
	BaseURL string
}

// Config configures the SDK client.
//
// All fields are optional. An empty Config{} uses ~/.autotask/autotask.db,
// the offline keyword model, the default policy and the fake runtime.
type Config struct {
	// DBPath is the SQLite database path.
	// Default: ~/.autotask/autotask.db.
	DBPath string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger

	// PolicyPath is a YAML file with the safety rules, risk overrides and approval chains.
	// Default: the built-in policy.
	PolicyPath string

	// Model enables a remote language model. When nil the offline keyword
	// model and the built-in plan templates are used.
	Model *ModelConfig

	// Runtime selects where the actions run.
	// Default: [RuntimeFake].
	Runtime RuntimeType

	// ExecutorImage is the image of the [RuntimeDocker] runtime.
	// Default: "ghcr.io/slok/autotask-executor:latest".
	ExecutorImage string

	// WebhookURL receives the approval and decision prompts. When empty they are logged.
	WebhookURL string
}

func (c *Config) defaults() error {
	if c.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DBPath = filepath.Join(home, defaultDataDir, defaultDBFile)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	if c.Runtime == "" {
		c.Runtime = RuntimeFake
	}
	if c.Runtime != RuntimeFake && c.Runtime != RuntimeDocker {
		return fmt.Errorf("unsupported runtime type: %s: %w", c.Runtime, ErrNotValid)
	}

	if c.ExecutorImage == "" {
		c.ExecutorImage = "ghcr.io/slok/autotask-executor:latest"
	}

	return nil
}

// Client is the main SDK entry point for creating and steering tasks programmatically.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	repo          *sqlite.Repository
	sys           *system.System
	logger        log.Logger
	modelProvider string
	runtime       doctor.RuntimeChecker
	closeFn       func() error
}

// New creates a new SDK client backed by a SQLite database.
//
// The caller must call [Client.Close] when done to release the database
// connection. Typically used with defer:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, mapError(fmt.Errorf("invalid config: %w", err))
	}

	policy := model.DefaultPolicy()
	if cfg.PolicyPath != "" {
		abs, err := filepath.Abs(cfg.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("invalid policy path: %w", err)
		}
		policy, err = storageio.NewPolicyYAMLRepository(os.DirFS(filepath.Dir(abs))).GetPolicy(ctx, filepath.Base(abs))
		if err != nil {
			return nil, mapError(fmt.Errorf("could not load policy: %w", err))
		}
	}

	sysCfg := system.Config{
		Policy: &policy,
		Logger: cfg.Logger,
	}

	c := &Client{logger: cfg.Logger}

	if cfg.Model != nil {
		lm, err := langchain.NewClient(ctx, langchain.ClientConfig{
			Provider: cfg.Model.Provider,
			Model:    cfg.Model.Name,
			APIKey:   cfg.Model.APIKey,
			BaseURL:  cfg.Model.BaseURL,
			Logger:   cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create language model: %w", err)
		}
		sysCfg.Model = lm
		c.modelProvider = cfg.Model.Provider
	}

	if cfg.Runtime == RuntimeDocker {
		rt, err := docker.NewRuntime(docker.RuntimeConfig{
			Image:  cfg.ExecutorImage,
			Pull:   true,
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create docker runtime: %w", err)
		}
		sysCfg.Runtime = rt
		c.runtime = rt
	}

	if cfg.WebhookURL != "" {
		n, err := webhook.NewNotifier(webhook.NotifierConfig{URL: cfg.WebhookURL, Logger: cfg.Logger})
		if err != nil {
			return nil, mapError(fmt.Errorf("could not create webhook notifier: %w", err))
		}
		sysCfg.Notifier = n
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	sysCfg.Repository = repo

	sys, err := system.New(sysCfg)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("could not create system: %w", err)
	}

	c.repo = repo
	c.sys = sys
	c.closeFn = repo.Close

	return c, nil
}

// Close releases resources held by the client, including the database connection.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// Doctor runs preflight health checks of the database, the model, the policy
// and the runtime.
//
// Returns a slice of [CheckResult] describing each check's outcome.
func (c *Client) Doctor(ctx context.Context) ([]CheckResult, error) {
	svc, err := doctor.NewService(doctor.ServiceConfig{
		Database:      c.repo,
		Runtime:       c.runtime,
		ModelProvider: c.modelProvider,
		Policy:        c.sys.Policy,
		Logger:        c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	return fromInternalCheckResults(svc.Run(ctx)), nil
}
