package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/classify"
)

type ClassifyCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	text      []string
	sessionID string
	context   []string
	format    string
}

// NewClassifyCommand returns the classify command.
func NewClassifyCommand(rootCmd *RootCommand, app *kingpin.Application) *ClassifyCommand {
	c := &ClassifyCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("classify", "Classify the intent of a request without creating a task.")
	c.Cmd.Arg("text", "Request text.").Required().StringsVar(&c.text)
	c.Cmd.Flag("session", "Conversation session ID.").StringVar(&c.sessionID)
	c.Cmd.Flag("context", "Conversation context as key=value (repeatable).").Short('c').StringsVar(&c.context)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ClassifyCommand) Name() string { return c.Cmd.FullCommand() }

func (c ClassifyCommand) Run(ctx context.Context) error {
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

	svc, err := classify.NewService(classify.ServiceConfig{
		Classifier: sys.Classifier,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	cl, err := svc.Run(ctx, classify.Request{
		Text:      strings.Join(c.text, " "),
		SessionID: c.sessionID,
		Context:   taskCtx,
	})
	if err != nil {
		return fmt.Errorf("could not classify: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintClassification(*cl); err != nil {
		return fmt.Errorf("could not print classification: %w", err)
	}

	return nil
}
