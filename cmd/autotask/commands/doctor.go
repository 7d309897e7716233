package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/autotask/internal/app/doctor"
	"github.com/slok/autotask/internal/model"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("doctor", "Run preflight checks of the configured engine.")

	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	out := c.rootCmd.Stdout

	var db doctor.Database
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		db = unavailableDatabase{err: err}
	} else {
		defer repo.Close()
		db = repo
	}

	policy, err := c.rootCmd.loadPolicy(ctx)
	if err != nil {
		return err
	}

	cfg := doctor.ServiceConfig{
		Database: db,
		Policy:   policy,
		Logger:   logger,
	}
	if c.rootCmd.ModelProvider != ModelHeuristic {
		cfg.ModelProvider = c.rootCmd.ModelProvider
	}
	rt, err := c.rootCmd.newRuntime()
	if err != nil {
		return err
	}
	if rt != nil {
		cfg.Runtime = rt
	}

	svc, err := doctor.NewService(cfg)
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}
	results := svc.Run(ctx)

	fmt.Fprintf(out, "\nChecking autotask (db %s, model %s, runtime %s)...\n", c.rootCmd.DBPath, c.rootCmd.ModelProvider, c.rootCmd.Runtime)
	for _, r := range results {
		fmt.Fprintf(out, "  %s %-20s %s\n", getStatusIcon(r.Status), r.ID, r.Message)
	}

	// Summary
	_, totalWarnings, totalErrors := model.CountByStatus(results)
	fmt.Fprintln(out)
	if totalErrors == 0 && totalWarnings == 0 {
		fmt.Fprintln(out, "All checks passed!")
	} else {
		var summary []string
		if totalErrors > 0 {
			summary = append(summary, fmt.Sprintf("%d error(s)", totalErrors))
		}
		if totalWarnings > 0 {
			summary = append(summary, fmt.Sprintf("%d warning(s)", totalWarnings))
		}
		fmt.Fprintln(out, strings.Join(summary, ", "))
	}

	if model.HasErrors(results) {
		return fmt.Errorf("preflight checks failed with %d error(s)", totalErrors)
	}

	return nil
}

// unavailableDatabase reports the open error as a failed check.
type unavailableDatabase struct{ err error }

func (u unavailableDatabase) Ping(context.Context) error { return u.err }
func (u unavailableDatabase) SchemaVersion(context.Context) (uint, bool, error) {
	return 0, false, u.err
}

func getStatusIcon(status model.CheckStatus) string {
	switch status {
	case model.CheckStatusOK:
		return "OK"
	case model.CheckStatusWarning:
		return "!!"
	case model.CheckStatusError:
		return "XX"
	default:
		return "??"
	}
}
