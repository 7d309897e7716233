package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/sweep"
)

type SweepCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewSweepCommand returns the sweep command.
func NewSweepCommand(rootCmd *RootCommand, app *kingpin.Application) *SweepCommand {
	c := &SweepCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("sweep", "Expire the overdue approvals and decisions and recover the stuck tasks once.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c SweepCommand) Name() string { return c.Cmd.FullCommand() }

func (c SweepCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	sys, err := c.rootCmd.newSystem(ctx, repo, systemOptions{})
	if err != nil {
		return err
	}

	svc, err := sweep.NewService(sweep.ServiceConfig{
		Gateway:    sys.Gateway,
		Reconciler: sys.Orchestrator,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("could not sweep: %w", err)
	}

	msg := fmt.Sprintf("Expired %d approval(s) and %d decision(s), reran %d task(s), resumed %d task(s), failed %d task(s)",
		res.Swept.Approvals, res.Swept.Decisions, res.Reconciled.Rerun, res.Reconciled.Resumed, res.Reconciled.Failed)
	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintMessage(msg); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}
