package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/audit"
	"github.com/slok/autotask/internal/model"
)

type AuditCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID  string
	planID  string
	outcome string
	format  string
}

// NewAuditCommand returns the audit command.
func NewAuditCommand(rootCmd *RootCommand, app *kingpin.Application) *AuditCommand {
	c := &AuditCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("audit", "Show the safety evaluations of a task.")
	c.Cmd.Arg("task-id", "Task ID, not needed when filtering by plan.").StringVar(&c.taskID)
	c.Cmd.Flag("plan", "Plan ID.").StringVar(&c.planID)
	c.Cmd.Flag("outcome", "Only show this outcome.").EnumVar(&c.outcome,
		string(model.SafetyOutcomeAllowed), string(model.SafetyOutcomeBlocked), string(model.SafetyOutcomeWarning), string(model.SafetyOutcomeError))
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c AuditCommand) Name() string { return c.Cmd.FullCommand() }

func (c AuditCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := audit.NewService(audit.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	entries, err := svc.Run(ctx, audit.Request{
		TaskID:  c.taskID,
		PlanID:  c.planID,
		Outcome: model.SafetyOutcome(c.outcome),
	})
	if err != nil {
		return fmt.Errorf("could not get audit log: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintAudit(entries); err != nil {
		return fmt.Errorf("could not print audit log: %w", err)
	}

	return nil
}
