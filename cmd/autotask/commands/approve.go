package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/approve"
	"github.com/slok/autotask/internal/model"
)

type ApproveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	approvalID string
	token      string
	approver   string
	verdict    string
	reason     string
	noResume   bool
	format     string
}

// NewApproveCommand returns the approve command.
func NewApproveCommand(rootCmd *RootCommand, app *kingpin.Application) *ApproveCommand {
	c := &ApproveCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("approve", "Vote on a pending approval.")
	c.Cmd.Arg("approval-id", "Approval ID, not needed when using a token.").StringVar(&c.approvalID)
	c.Cmd.Flag("token", "Single use approval token from the notification.").StringVar(&c.token)
	c.Cmd.Flag("approver", "Who is voting.").Default(os.Getenv("USER")).StringVar(&c.approver)
	c.Cmd.Flag("verdict", "Vote.").Default(string(model.VerdictApprove)).EnumVar(&c.verdict,
		string(model.VerdictApprove), string(model.VerdictReject), string(model.VerdictSkip))
	c.Cmd.Flag("reason", "Reason of the vote.").StringVar(&c.reason)
	c.Cmd.Flag("no-resume", "Don't continue the task here when the approval resolves, leave it to the serving engine.").BoolVar(&c.noResume)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ApproveCommand) Name() string { return c.Cmd.FullCommand() }

func (c ApproveCommand) Run(ctx context.Context) error {
	if c.approvalID == "" && c.token == "" {
		return fmt.Errorf("approval id or --token is required")
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

	cfg := approve.ServiceConfig{
		Gateway: sys.Gateway,
		Logger:  c.rootCmd.Logger,
	}
	if !c.noResume {
		cfg.Resumer = sys.Orchestrator
	}
	svc, err := approve.NewService(cfg)
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, approve.Request{
		ApprovalID: c.approvalID,
		Token:      c.token,
		Approver:   c.approver,
		Verdict:    model.Verdict(c.verdict),
		Reason:     c.reason,
	})
	if err != nil {
		return fmt.Errorf("could not submit approval: %w", err)
	}

	p := newPrinter(c.format, c.rootCmd.Stdout)
	if res.Task != nil {
		return c.rootCmd.printTaskStatus(ctx, repo, res.Task.ID, p)
	}
	if err := p.PrintApproval(res.Approval); err != nil {
		return fmt.Errorf("could not print approval: %w", err)
	}

	return nil
}
