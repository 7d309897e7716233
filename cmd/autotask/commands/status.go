package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/status"
	"github.com/slok/autotask/internal/printer"
	"github.com/slok/autotask/internal/storage"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	format string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Get the detailed status of a task.")
	c.Cmd.Arg("task-id", "Task ID.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	return c.rootCmd.printTaskStatus(ctx, repo, c.taskID, newPrinter(c.format, c.rootCmd.Stdout))
}

// printTaskStatus loads the task with its plan and pending gates and prints it.
func (r *RootCommand) printTaskStatus(ctx context.Context, repo storage.Repository, taskID string, p printer.Printer) error {
	svc, err := status.NewService(status.ServiceConfig{
		Repository: repo,
		Logger:     r.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	st, err := svc.Run(ctx, status.Request{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("could not get task status: %w", err)
	}

	err = p.PrintTaskDetail(printer.TaskDetail{
		Task:            st.Task,
		Plan:            st.Plan,
		PendingApproval: st.PendingApproval,
		PendingDecision: st.PendingDecision,
	})
	if err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}
	return nil
}
