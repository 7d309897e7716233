package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/pending"
)

type PendingCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	format string
}

// NewPendingCommand returns the pending command.
func NewPendingCommand(rootCmd *RootCommand, app *kingpin.Application) *PendingCommand {
	c := &PendingCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("pending", "List the approvals and decisions waiting on a human.")
	c.Cmd.Flag("task", "Only show the gates of this task.").StringVar(&c.taskID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c PendingCommand) Name() string { return c.Cmd.FullCommand() }

func (c PendingCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := pending.NewService(pending.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, pending.Request{TaskID: c.taskID})
	if err != nil {
		return fmt.Errorf("could not list pending gates: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintPending(res.Approvals, res.Decisions); err != nil {
		return fmt.Errorf("could not print pending gates: %w", err)
	}

	return nil
}
