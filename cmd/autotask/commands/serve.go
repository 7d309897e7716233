package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/slok/autotask/internal/app/sweep"
	"github.com/slok/autotask/internal/events"
	"github.com/slok/autotask/internal/log"
	metricsprometheus "github.com/slok/autotask/internal/metrics/prometheus"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/orchestrator"
)

// ServeCommand runs the long lived engine process: it expires the overdue gates,
// continues the tasks whose gates resolve and serves the metrics.
type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	metricsAddr   string
	sweepInterval time.Duration
	workers       int
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run the engine: gate expiry, task resumption and metrics.")
	c.Cmd.Flag("metrics-listen-address", "Address of the Prometheus metrics server, disabled when empty.").Default(":8081").StringVar(&c.metricsAddr)
	c.Cmd.Flag("sweep-interval", "Interval between gate expiry and reconciliation passes.").Default("30s").DurationVar(&c.sweepInterval)
	c.Cmd.Flag("workers", "Maximum number of tasks resumed concurrently.").Default("4").IntVar(&c.workers)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	if c.sweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	bus, err := events.NewBus(events.BusConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create event bus: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sys, err := c.rootCmd.newSystem(ctx, repo, systemOptions{
		Publisher: bus,
		Metrics:   metricsprometheus.NewRecorder(reg),
	})
	if err != nil {
		return err
	}

	sweepSvc, err := sweep.NewService(sweep.ServiceConfig{
		Gateway:    sys.Gateway,
		Reconciler: sys.Orchestrator,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	var g run.Group

	// Sweeper, the first pass recovers the tasks left behind by a previous process.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				ticker := time.NewTicker(c.sweepInterval)
				defer ticker.Stop()
				for {
					c.sweep(ctx, sweepSvc, logger)
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Resume workers.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		evs, unsubscribe := bus.SubscribeAll()

		g.Add(
			func() error {
				return c.resumeWorkers(ctx, evs, sys.Orchestrator, logger)
			},
			func(_ error) {
				unsubscribe()
				cancel()
			},
		)
	}

	// Metrics server.
	if c.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{
			Addr:              c.metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Add(
			func() error {
				logger.Infof("Metrics server listening on %s", c.metricsAddr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(ctx)
			},
		)
	}

	logger.Infof("Engine serving (sweep every %s, %d workers)", c.sweepInterval, c.workers)
	return g.Run()
}

func (c ServeCommand) sweep(ctx context.Context, svc *sweep.Service, logger log.Logger) {
	res, err := svc.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Errorf("Sweep failed: %s", err)
		}
		return
	}

	if res.Swept.Approvals+res.Swept.Decisions+res.Reconciled.Rerun+res.Reconciled.Resumed+res.Reconciled.Failed > 0 {
		logger.WithValues(log.Kv{
			"expired-approvals": res.Swept.Approvals,
			"expired-decisions": res.Swept.Decisions,
			"rerun":             res.Reconciled.Rerun,
			"resumed":           res.Reconciled.Resumed,
			"failed":            res.Reconciled.Failed,
		}).Infof("Sweep pass finished")
	}
}

// resumeWorkers continues the tasks of the resume events until the subscription closes.
func (c ServeCommand) resumeWorkers(ctx context.Context, evs <-chan model.ResumeEvent, orch *orchestrator.Orchestrator, logger log.Logger) error {
	var eg errgroup.Group
	eg.SetLimit(c.workers)

	for ev := range evs {
		eg.Go(func() error {
			logger := logger.WithValues(log.Kv{"task": ev.TaskID, "kind": ev.Kind, "gate": ev.GateID})
			task, err := orch.HandleResume(ctx, ev)
			if err != nil {
				// Reconciliation retries it on the next sweep.
				logger.Errorf("Could not resume task: %s", err)
				return nil
			}
			logger.Infof("Task resumed, now %s", task.Status)
			return nil
		})
	}

	return eg.Wait()
}
