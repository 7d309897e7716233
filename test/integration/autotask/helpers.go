package autotask

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/slok/autotask/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "autotask"
	}

	// go test changes the CWD to the test package directory, relative paths would break.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("AUTOTASK_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("autotask binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "AUTOTASK_INTEGRATION"
		envBinary     = "AUTOTASK_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// RunCmd runs an autotask command on a specific database without logs.
func RunCmd(ctx context.Context, config Config, dbPath string, args ...string) (stdout, stderr []byte, err error) {
	fullArgs := append([]string{"--no-log", "--db-path", dbPath}, args...)
	return testutils.RunAutotask(ctx, nil, config.Binary, fullArgs, true)
}

// RunCreate creates and starts a task returning its JSON status.
func RunCreate(ctx context.Context, config Config, dbPath, mode, text string) (stdout, stderr []byte, err error) {
	return RunCmd(ctx, config, dbPath, "create", "--start", "--mode", mode, "--format", "json", text)
}

// RunStatus gets the JSON status of a task.
func RunStatus(ctx context.Context, config Config, dbPath, taskID string) (stdout, stderr []byte, err error) {
	return RunCmd(ctx, config, dbPath, "status", "--format", "json", taskID)
}

// RunPending lists the JSON pending gates of a task.
func RunPending(ctx context.Context, config Config, dbPath, taskID string) (stdout, stderr []byte, err error) {
	return RunCmd(ctx, config, dbPath, "pending", "--format", "json", "--task", taskID)
}

// RunApprove approves an approval as approver.
func RunApprove(ctx context.Context, config Config, dbPath, approvalID, approver string) (stdout, stderr []byte, err error) {
	return RunCmd(ctx, config, dbPath, "approve", "--format", "json", "--approver", approver, approvalID)
}

// RunDecide answers a decision.
func RunDecide(ctx context.Context, config Config, dbPath, decisionID, option string) (stdout, stderr []byte, err error) {
	return RunCmd(ctx, config, dbPath, "decide", "--format", "json", "--by", "integration", "--option", option, decisionID)
}

// RunList lists the tasks in JSON format.
func RunList(ctx context.Context, config Config, dbPath string) (stdout, stderr []byte, err error) {
	return RunCmd(ctx, config, dbPath, "list", "--format", "json")
}
