package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/create"
	"github.com/slok/autotask/internal/model"
)

type CreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	text                []string
	sessionID           string
	title               string
	mode                string
	priority            string
	context             []string
	requirePlanApproval bool
	start               bool
	format              string
}

// NewCreateCommand returns the create command.
func NewCreateCommand(rootCmd *RootCommand, app *kingpin.Application) *CreateCommand {
	c := &CreateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("create", "Create a task from a natural language request.")
	c.Cmd.Arg("text", "What you want done.").Required().StringsVar(&c.text)
	c.Cmd.Flag("session", "Conversation session ID.").StringVar(&c.sessionID)
	c.Cmd.Flag("title", "Task title, the suggested name when empty.").StringVar(&c.title)
	c.Cmd.Flag("mode", "Execution mode.").Default(string(model.ExecutionModeSupervised)).EnumVar(&c.mode,
		string(model.ExecutionModeAutonomous), string(model.ExecutionModeSupervised), string(model.ExecutionModeManual))
	c.Cmd.Flag("priority", "Task priority.").Default(string(model.TaskPriorityNormal)).EnumVar(&c.priority,
		string(model.TaskPriorityLow), string(model.TaskPriorityNormal), string(model.TaskPriorityHigh), string(model.TaskPriorityUrgent))
	c.Cmd.Flag("context", "Conversation context as key=value (repeatable).").Short('c').StringsVar(&c.context)
	c.Cmd.Flag("require-plan-approval", "Ask for an approval of the whole plan before the first step.").BoolVar(&c.requirePlanApproval)
	c.Cmd.Flag("start", "Start the task and run it until it needs a human or finishes.").BoolVar(&c.start)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c CreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c CreateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	taskCtx, err := parseContext(c.context)
	if err != nil {
		return err
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

	svc, err := create.NewService(create.ServiceConfig{
		Classifier:   sys.Classifier,
		Compiler:     sys.Compiler,
		Orchestrator: sys.Orchestrator,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, create.Request{
		Text:                strings.Join(c.text, " "),
		SessionID:           c.sessionID,
		Title:               c.title,
		Mode:                model.ExecutionMode(c.mode),
		Priority:            model.TaskPriority(c.priority),
		Context:             taskCtx,
		RequirePlanApproval: c.requirePlanApproval,
		Start:               c.start,
	})
	if err != nil {
		return fmt.Errorf("could not create task: %w", err)
	}

	p := newPrinter(c.format, c.rootCmd.Stdout)
	if res.NeedsClarification() {
		if err := p.PrintClassification(*res.Classification); err != nil {
			return fmt.Errorf("could not print classification: %w", err)
		}
		return nil
	}

	// Reload so the output includes what the task is waiting on.
	return c.rootCmd.printTaskStatus(ctx, repo, res.Task.ID, p)
}
