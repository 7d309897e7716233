package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/autotask/cmd/autotask/commands"
	"github.com/slok/autotask/internal/log"
	loglogrus "github.com/slok/autotask/internal/log/logrus"
	"github.com/slok/autotask/internal/tracing"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	// A local .env can hold the AUTOTASK_* flags and the model provider API keys.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not load .env file: %w", err)
	}

	app := kingpin.New("autotask", "Autonomous task execution engine with safety checks and human approval gates.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	serveCmd := commands.NewServeCommand(rootCmd, app)
	createCmd := commands.NewCreateCommand(rootCmd, app)
	listCmd := commands.NewListCommand(rootCmd, app)
	statusCmd := commands.NewStatusCommand(rootCmd, app)
	cancelCmd := commands.NewCancelCommand(rootCmd, app)
	pauseCmd := commands.NewPauseCommand(rootCmd, app)
	resumeCmd := commands.NewResumeCommand(rootCmd, app)
	pendingCmd := commands.NewPendingCommand(rootCmd, app)
	approveCmd := commands.NewApproveCommand(rootCmd, app)
	decideCmd := commands.NewDecideCommand(rootCmd, app)
	auditCmd := commands.NewAuditCommand(rootCmd, app)
	classifyCmd := commands.NewClassifyCommand(rootCmd, app)
	feedbackCmd := commands.NewFeedbackCommand(rootCmd, app)
	sweepCmd := commands.NewSweepCommand(rootCmd, app)
	doctorCmd := commands.NewDoctorCommand(rootCmd, app)

	cmds := map[string]commands.Command{
		serveCmd.Name():    serveCmd,
		createCmd.Name():   createCmd,
		listCmd.Name():     listCmd,
		statusCmd.Name():   statusCmd,
		cancelCmd.Name():   cancelCmd,
		pauseCmd.Name():    pauseCmd,
		resumeCmd.Name():   resumeCmd,
		pendingCmd.Name():  pendingCmd,
		approveCmd.Name():  approveCmd,
		decideCmd.Name():   decideCmd,
		auditCmd.Name():    auditCmd,
		classifyCmd.Name(): classifyCmd,
		feedbackCmd.Name(): feedbackCmd,
		sweepCmd.Name():    sweepCmd,
		doctorCmd.Name():   doctorCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Auto-suppress logging for commands that produce structured output (table/JSON)
	// so logs don't mix with the printer output. --debug enables them again.
	printerCommands := map[string]bool{
		"list":     true,
		"status":   true,
		"pending":  true,
		"audit":    true,
		"classify": true,
	}
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(ctx, *rootCmd)

	// Tracing.
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:       rootCmd.OTLPEndpoint,
		Insecure:       rootCmd.OTLPInsecure,
		ServiceVersion: Version,
	})
	if err != nil {
		return fmt.Errorf("could not setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			rootCmd.Logger.Warningf("Could not flush traces: %s", err)
		}
	}()

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(ctx context.Context, config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // Logs go to stderr so stdout only has the printed output.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	// Log format.
	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
