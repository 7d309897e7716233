package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/autotask/internal/events"
	"github.com/slok/autotask/internal/llm"
	"github.com/slok/autotask/internal/llm/langchain"
	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/metrics"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/notify"
	"github.com/slok/autotask/internal/notify/webhook"
	"github.com/slok/autotask/internal/printer"
	"github.com/slok/autotask/internal/runtime/docker"
	storageio "github.com/slok/autotask/internal/storage/io"
	"github.com/slok/autotask/internal/storage/sqlite"
	"github.com/slok/autotask/internal/system"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// ModelHeuristic is the offline keyword model.
	ModelHeuristic = "heuristic"

	// RuntimeFake is the in-memory runtime.
	RuntimeFake = "fake"
	// RuntimeDocker runs the actions in containers.
	RuntimeDocker = "docker"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DBPath     string
	PolicyPath string

	// Engine flags.
	ModelProvider string
	ModelName     string
	ModelURL      string
	Runtime       string
	ExecutorImage string
	WebhookURL    string
	OTLPEndpoint  string
	OTLPInsecure  bool
	TaskLease     time.Duration

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDBPath := filepath.Join(homedir.HomeDir(), ".autotask", "autotask.db")
	app.Flag("db-path", "Path to the SQLite database file.").Default(defaultDBPath).StringVar(&c.DBPath)
	app.Flag("policy", "Path to the safety and approval policy YAML file.").StringVar(&c.PolicyPath)

	models := append([]string{ModelHeuristic}, langchain.Providers...)
	app.Flag("model", "Language model provider.").Default(ModelHeuristic).EnumVar(&c.ModelProvider, models...)
	app.Flag("model-name", "Language model name, the provider default when empty.").StringVar(&c.ModelName)
	app.Flag("model-url", "Language model API base URL.").StringVar(&c.ModelURL)
	app.Flag("runtime", "Action runtime.").Default(RuntimeFake).EnumVar(&c.Runtime, RuntimeFake, RuntimeDocker)
	app.Flag("executor-image", "Executor image of the docker runtime.").Default("ghcr.io/slok/autotask-executor:latest").StringVar(&c.ExecutorImage)
	app.Flag("webhook-url", "Webhook that receives the approval and decision prompts, prompts are logged when empty.").StringVar(&c.WebhookURL)
	app.Flag("otlp-endpoint", "OTLP HTTP collector endpoint (host:port), tracing is disabled when empty.").StringVar(&c.OTLPEndpoint)
	app.Flag("otlp-insecure", "Use plain HTTP with the OTLP collector.").BoolVar(&c.OTLPInsecure)
	app.Flag("task-lease", "Time without writes after which a running task is taken over by reconciliation, every process must use the same value.").Default("2m").DurationVar(&c.TaskLease)

	return c
}

// newRepository opens the SQLite store.
func (r *RootCommand) newRepository(ctx context.Context) (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: r.DBPath,
		Logger: r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	return repo, nil
}

// loadPolicy loads the policy file or returns the default policy.
func (r *RootCommand) loadPolicy(ctx context.Context) (model.Policy, error) {
	if r.PolicyPath == "" {
		return model.DefaultPolicy(), nil
	}

	abs, err := filepath.Abs(r.PolicyPath)
	if err != nil {
		return model.Policy{}, fmt.Errorf("invalid policy path: %w", err)
	}
	repo := storageio.NewPolicyYAMLRepository(os.DirFS(filepath.Dir(abs)))
	p, err := repo.GetPolicy(ctx, filepath.Base(abs))
	if err != nil {
		return model.Policy{}, fmt.Errorf("could not load policy %s: %w", r.PolicyPath, err)
	}
	return p, nil
}

// newModel returns the configured language model, nil for the heuristic one.
func (r *RootCommand) newModel(ctx context.Context) (llm.Client, error) {
	if r.ModelProvider == ModelHeuristic {
		return nil, nil
	}

	c, err := langchain.NewClient(ctx, langchain.ClientConfig{
		Provider: r.ModelProvider,
		Model:    r.ModelName,
		BaseURL:  r.ModelURL,
		Logger:   r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create language model: %w", err)
	}
	return c, nil
}

// newRuntime returns the configured runtime, nil for the in-memory one.
func (r *RootCommand) newRuntime() (*docker.Runtime, error) {
	if r.Runtime != RuntimeDocker {
		return nil, nil
	}

	rt, err := docker.NewRuntime(docker.RuntimeConfig{
		Image:  r.ExecutorImage,
		Pull:   true,
		Logger: r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create docker runtime: %w", err)
	}
	return rt, nil
}

func (r *RootCommand) newNotifier() (notify.Notifier, error) {
	if r.WebhookURL == "" {
		return nil, nil
	}

	n, err := webhook.NewNotifier(webhook.NotifierConfig{
		URL:    r.WebhookURL,
		Logger: r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create webhook notifier: %w", err)
	}
	return n, nil
}

// systemOptions are the per command settings of the wired system.
type systemOptions struct {
	Publisher events.Publisher
	Metrics   metrics.Recorder
}

// newSystem wires the engine on top of the repository with the global flags.
func (r *RootCommand) newSystem(ctx context.Context, repo *sqlite.Repository, opts systemOptions) (*system.System, error) {
	policy, err := r.loadPolicy(ctx)
	if err != nil {
		return nil, err
	}

	lm, err := r.newModel(ctx)
	if err != nil {
		return nil, err
	}

	cfg := system.Config{
		Repository: repo,
		Model:      lm,
		Publisher:  opts.Publisher,
		Policy:     &policy,
		Metrics:    opts.Metrics,
		TaskLease:  r.TaskLease,
		Logger:     r.Logger,
	}

	rt, err := r.newRuntime()
	if err != nil {
		return nil, err
	}
	if rt != nil {
		cfg.Runtime = rt
	}

	n, err := r.newNotifier()
	if err != nil {
		return nil, err
	}
	cfg.Notifier = n

	sys, err := system.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create system: %w", err)
	}
	return sys, nil
}

func newPrinter(format string, w io.Writer) printer.Printer {
	switch format {
	case "json":
		return printer.NewJSONPrinter(w)
	default: // table
		return printer.NewTablePrinter(w)
	}
}

// parseContext parses repeated key=value flags.
func parseContext(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}

	res := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid context %q, must be key=value: %w", kv, model.ErrNotValid)
		}
		res[k] = v
	}
	return res, nil
}

func statusNames() string {
	names := make([]string, 0, len(model.TaskStatuses))
	for _, s := range model.TaskStatuses {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
