// Package docker runs every step action as a one-shot container of an executor image.
//
// The executor image receives the action through environment variables
// (AUTOTASK_MODE, AUTOTASK_ACTION, AUTOTASK_PARAMS, AUTOTASK_IDEMPOTENCY_KEY) and writes a
// JSON document to stdout: a map of outputs when executing, a simulation result when simulating.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/runtime"
)

// DockerClient is the subset of the Docker API the runtime uses.
type DockerClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// RuntimeConfig is the configuration for the Docker runtime.
type RuntimeConfig struct {
	Client DockerClient
	// Image is the executor image.
	Image string
	// Command overrides the image command.
	Command  []string
	MemoryMB int
	NanoCPUs int64
	// Pull pulls the image before the first run.
	Pull   bool
	Logger log.Logger
}

func (c *RuntimeConfig) defaults() error {
	if c.Image == "" {
		return fmt.Errorf("executor image is required")
	}
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.MemoryMB == 0 {
		c.MemoryMB = 256
	}
	if c.NanoCPUs == 0 {
		c.NanoCPUs = 1e9
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "runtime.Docker"})
	return nil
}

// Runtime is the Docker implementation of runtime.Runtime.
type Runtime struct {
	client   DockerClient
	image    string
	command  []string
	memoryMB int
	nanoCPUs int64
	pull     bool
	pulled   bool
	pullMu   sync.Mutex
	logger   log.Logger
}

// NewRuntime creates a new Docker runtime.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runtime{
		client:   cfg.Client,
		image:    cfg.Image,
		command:  cfg.Command,
		memoryMB: cfg.MemoryMB,
		nanoCPUs: cfg.NanoCPUs,
		pull:     cfg.Pull,
		logger:   cfg.Logger,
	}, nil
}

const (
	modeExecute  = "execute"
	modeSimulate = "simulate"
)

var nameSanitizer = regexp.MustCompile(`[^a-z0-9_.-]+`)

// Check runs the preflight checks of the runtime.
func (r *Runtime) Check(ctx context.Context) []model.CheckResult {
	ping, err := r.client.Ping(ctx)
	if err != nil {
		return []model.CheckResult{{
			ID:      "docker_reachable",
			Message: fmt.Sprintf("Docker daemon is not reachable: %s", err),
			Status:  model.CheckStatusError,
		}}
	}

	results := []model.CheckResult{{
		ID:      "docker_reachable",
		Message: fmt.Sprintf("Docker daemon reachable (API %s, %s)", ping.APIVersion, ping.OSType),
		Status:  model.CheckStatusOK,
	}}
	if ping.OSType != "" && ping.OSType != "linux" {
		results = append(results, model.CheckResult{
			ID:      "docker_os",
			Message: fmt.Sprintf("Executor images expect linux containers, daemon runs %s", ping.OSType),
			Status:  model.CheckStatusWarning,
		})
	}

	return results
}

// ContainerName returns the container name of an action execution. It only depends
// on the idempotency key so a replayed dispatch finds the previous container.
func ContainerName(action model.Action) string {
	key := strings.ToLower(action.IdempotencyKey())
	return "autotask-" + nameSanitizer.ReplaceAllString(key, "-")
}

// Execute satisfies runtime.Runtime.
func (r *Runtime) Execute(ctx context.Context, action model.Action) (*runtime.Result, error) {
	name := ContainerName(action)
	logger := r.logger.WithValues(log.Kv{"container": name})

	id, err := r.existing(ctx, name)
	if err != nil {
		return nil, err
	}

	if id != "" {
		logger.Infof("Reattaching to previous execution")
	} else {
		id, err = r.create(ctx, action, modeExecute, name)
		if err != nil {
			return nil, err
		}
	}

	stdout, err := r.waitAndRead(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			// Failed runs are removed so the next attempt runs again.
			if rmErr := r.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); rmErr != nil {
				logger.Warningf("Could not remove failed container: %s", rmErr)
			}
		}
		return nil, err
	}

	out := map[string]string{}
	if len(bytes.TrimSpace(stdout)) > 0 {
		if err := json.Unmarshal(stdout, &out); err != nil {
			return nil, runtime.Permanent(fmt.Errorf("invalid executor output: %w", err))
		}
	}

	// The container is kept on success so replays return the same result.
	logger.Debugf("Action executed")
	return &runtime.Result{Output: out}, nil
}

// Simulate satisfies runtime.Runtime.
func (r *Runtime) Simulate(ctx context.Context, action model.Action) (*model.SimulationResult, error) {
	name := ContainerName(action) + "-sim-" + strings.ToLower(ulid.Make().String())

	start := time.Now()
	id, err := r.create(ctx, action, modeSimulate, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := r.client.ContainerRemove(context.WithoutCancel(ctx), id, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Warningf("Could not remove simulation container %s: %s", name, err)
		}
	}()

	stdout, err := r.waitAndRead(ctx, id)
	if err != nil {
		return nil, err
	}

	var res model.SimulationResult
	if err := json.Unmarshal(stdout, &res); err != nil {
		return nil, fmt.Errorf("invalid simulation output: %w", err)
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}

	return &res, nil
}

func (r *Runtime) existing(ctx context.Context, name string) (string, error) {
	insp, err := r.client.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("could not inspect container %s: %w", name, err)
	}

	// A container that never started has no result to reattach to.
	if insp.ContainerJSONBase != nil && insp.State != nil && insp.State.Status == "created" {
		r.logger.WithValues(log.Kv{"container": name}).Warningf("Removing container that never started")
		if err := r.client.ContainerRemove(ctx, insp.ID, container.RemoveOptions{Force: true}); err != nil {
			return "", fmt.Errorf("could not remove unstarted container %s: %w", name, err)
		}
		return "", nil
	}

	return insp.ID, nil
}

func (r *Runtime) create(ctx context.Context, action model.Action, mode, name string) (string, error) {
	if err := r.pullImage(ctx); err != nil {
		return "", err
	}

	params, err := json.Marshal(action.Params)
	if err != nil {
		return "", fmt.Errorf("could not marshal params: %w", err)
	}

	cfg := &container.Config{
		Image: r.image,
		Cmd:   r.command,
		Env: []string{
			"AUTOTASK_MODE=" + mode,
			"AUTOTASK_ACTION=" + string(action.Type),
			"AUTOTASK_PARAMS=" + string(params),
			"AUTOTASK_IDEMPOTENCY_KEY=" + action.IdempotencyKey(),
		},
		Labels: map[string]string{
			"autotask.task":   action.TaskID,
			"autotask.step":   fmt.Sprintf("%d", action.StepIndex),
			"autotask.action": string(action.Type),
			"autotask.mode":   mode,
		},
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: r.nanoCPUs,
			Memory:   int64(r.memoryMB) * 1024 * 1024,
		},
	}

	resp, err := r.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := r.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			r.logger.Warningf("Could not remove unstarted container %s: %s", name, rmErr)
		}
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	return resp.ID, nil
}

func (r *Runtime) pullImage(ctx context.Context) error {
	if !r.pull {
		return nil
	}

	r.pullMu.Lock()
	defer r.pullMu.Unlock()
	if r.pulled {
		return nil
	}

	r.logger.Infof("Pulling executor image: %s", r.image)
	resp, err := r.client.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", r.image, err)
	}
	_, _ = io.Copy(io.Discard, resp)
	resp.Close()
	r.pulled = true

	return nil
}

func (r *Runtime) waitAndRead(ctx context.Context, id string) ([]byte, error) {
	var exitCode int64
	statusCh, errCh := r.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, fmt.Errorf("could not wait for container: %w", err)
	case st := <-statusCh:
		if st.Error != nil {
			return nil, fmt.Errorf("container wait error: %s", st.Error.Message)
		}
		exitCode = st.StatusCode
	}

	logs, err := r.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("could not read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, fmt.Errorf("could not demux container logs: %w", err)
	}

	if exitCode != 0 {
		err := fmt.Errorf("executor exited with code %d: %s", exitCode, strings.TrimSpace(stderr.String()))
		// Exit code 2 is the executor contract for invalid input.
		if exitCode == 2 {
			return nil, runtime.Permanent(err)
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}
