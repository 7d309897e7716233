package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/cancel"
)

type CancelCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	format string
}

// NewCancelCommand returns the cancel command.
func NewCancelCommand(rootCmd *RootCommand, app *kingpin.Application) *CancelCommand {
	c := &CancelCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("cancel", "Cancel a task, running tasks stop at the next step.")
	c.Cmd.Arg("task-id", "Task ID.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c CancelCommand) Name() string { return c.Cmd.FullCommand() }

func (c CancelCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	sys, err := c.rootCmd.newSystem(ctx, repo, systemOptions{})
	if err != nil {
		return err
	}

	svc, err := cancel.NewService(cancel.ServiceConfig{
		Orchestrator: sys.Orchestrator,
		Logger:       c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Run(ctx, cancel.Request{TaskID: c.taskID})
	if err != nil {
		return fmt.Errorf("could not cancel task: %w", err)
	}

	return c.rootCmd.printTaskStatus(ctx, repo, task.ID, newPrinter(c.format, c.rootCmd.Stdout))
}
