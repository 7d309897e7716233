package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/feedback"
)

type FeedbackCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	classificationID string
	wrong            bool
	correctedType    string
	format           string
}

// NewFeedbackCommand returns the feedback command.
func NewFeedbackCommand(rootCmd *RootCommand, app *kingpin.Application) *FeedbackCommand {
	c := &FeedbackCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("feedback", "Tell if a classification was right.")
	c.Cmd.Arg("classification-id", "Classification ID.").Required().StringVar(&c.classificationID)
	c.Cmd.Flag("wrong", "The classification was wrong.").BoolVar(&c.wrong)
	c.Cmd.Flag("corrected-type", "The right intent type, implies --wrong.").StringVar(&c.correctedType)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c FeedbackCommand) Name() string { return c.Cmd.FullCommand() }

func (c FeedbackCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	sys, err := c.rootCmd.newSystem(ctx, repo, systemOptions{})
	if err != nil {
		return err
	}

	svc, err := feedback.NewService(feedback.ServiceConfig{
		Classifier: sys.Classifier,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	err = svc.Run(ctx, feedback.Request{
		ClassificationID: c.classificationID,
		WasCorrect:       !c.wrong && c.correctedType == "",
		CorrectedType:    c.correctedType,
	})
	if err != nil {
		return fmt.Errorf("could not record feedback: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintMessage(fmt.Sprintf("Feedback recorded for %s", c.classificationID)); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}
