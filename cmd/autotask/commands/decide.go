package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/decide"
)

type DecideCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	decisionID string
	token      string
	option     string
	by         string
	reason     string
	noResume   bool
	format     string
}

// NewDecideCommand returns the decide command.
func NewDecideCommand(rootCmd *RootCommand, app *kingpin.Application) *DecideCommand {
	c := &DecideCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("decide", "Answer a pending decision.")
	c.Cmd.Arg("decision-id", "Decision ID, not needed when using a token.").StringVar(&c.decisionID)
	c.Cmd.Flag("option", "Chosen option.").Short('o').Required().StringVar(&c.option)
	c.Cmd.Flag("token", "Single use decision token from the notification.").StringVar(&c.token)
	c.Cmd.Flag("by", "Who is answering.").Default(os.Getenv("USER")).StringVar(&c.by)
	c.Cmd.Flag("reason", "Reason of the answer.").StringVar(&c.reason)
	c.Cmd.Flag("no-resume", "Don't continue the task here, leave it to the serving engine.").BoolVar(&c.noResume)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c DecideCommand) Name() string { return c.Cmd.FullCommand() }

func (c DecideCommand) Run(ctx context.Context) error {
	if c.decisionID == "" && c.token == "" {
		return fmt.Errorf("decision id or --token is required")
	}

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	sys, err := c.rootCmd.newSystem(ctx, repo, systemOptions{})
	if err != nil {
		return err
	}

	cfg := decide.ServiceConfig{
		Gateway: sys.Gateway,
		Logger:  c.rootCmd.Logger,
	}
	if !c.noResume {
		cfg.Resumer = sys.Orchestrator
	}
	svc, err := decide.NewService(cfg)
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, decide.Request{
		DecisionID: c.decisionID,
		Token:      c.token,
		Option:     c.option,
		By:         c.by,
		Reason:     c.reason,
	})
	if err != nil {
		return fmt.Errorf("could not answer decision: %w", err)
	}

	p := newPrinter(c.format, c.rootCmd.Stdout)
	if res.Task != nil {
		return c.rootCmd.printTaskStatus(ctx, repo, res.Task.ID, p)
	}
	if err := p.PrintDecision(res.Decision); err != nil {
		return fmt.Errorf("could not print decision: %w", err)
	}

	return nil
}
