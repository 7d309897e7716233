package docker_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/model"
	"github.com/slok/autotask/internal/runtime"
	"github.com/slok/autotask/internal/runtime/docker"
)

type notFoundErr struct{}

func (notFoundErr) Error() string { return "no such container" }
func (notFoundErr) NotFound()     {}

type run struct {
	stdout   string
	stderr   string
	exitCode int64
}

// fakeDocker keeps containers by name and answers every started container with the next scripted run.
type fakeDocker struct {
	mu         sync.Mutex
	runs       []run
	containers map[string]run
	started    map[string]bool
	startErrs  []error
	created    []*container.Config
	removed    []string
	pulls      int
	pingErr    error
	osType     string
}

func newFakeDocker(runs ...run) *fakeDocker {
	return &fakeDocker{runs: runs, containers: map[string]run{}, started: map[string]bool{}}
}

func (f *fakeDocker) Ping(ctx context.Context) (types.Ping, error) {
	if f.pingErr != nil {
		return types.Ping{}, f.pingErr
	}
	return types.Ping{APIVersion: "1.47", OSType: f.osType}, nil
}

func (f *fakeDocker) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	return io.NopCloser(strings.NewReader("{}")), nil
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return container.CreateResponse{}, errors.New("no scripted run")
	}
	f.containers[containerName] = f.runs[0]
	f.runs = f.runs[1:]
	f.created = append(f.created, config)
	return container.CreateResponse{ID: containerName}, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		return err
	}
	f.started[containerID] = true
	return nil
}

func (f *fakeDocker) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	statusCh := make(chan container.WaitResponse, 1)
	statusCh <- container.WaitResponse{StatusCode: f.containers[containerID].exitCode}
	return statusCh, make(chan error)
}

func (f *fakeDocker) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.containers[containerID]

	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(r.stdout))
	if r.stderr != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(r.stderr))
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeDocker) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[containerID]; !ok {
		return container.InspectResponse{}, notFoundErr{}
	}
	state := &container.State{Status: "created"}
	if f.started[containerID] {
		state.Status = "exited"
	}
	return container.InspectResponse{ContainerJSONBase: &container.ContainerJSONBase{ID: containerID, State: state}}, nil
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, containerID)
	delete(f.started, containerID)
	f.removed = append(f.removed, containerID)
	return nil
}

var action = model.Action{
	TaskID:    "01JTASK",
	StepIndex: 1,
	Type:      model.ActionHTTPRequest,
	Params:    map[string]string{"url": "https://api.example.com", "method": "POST"},
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "autotask-01jtask-1", docker.ContainerName(action))
}

func TestRuntimeExecute(t *testing.T) {
	tests := map[string]struct {
		runs         []run
		expOutput    map[string]string
		expErr       bool
		expPermanent bool
		expRemoved   int
	}{
		"A successful execution should return the executor output.": {
			runs:      []run{{stdout: `{"status_code": "201"}`}},
			expOutput: map[string]string{"status_code": "201"},
		},
		"A failed execution should fail and remove the container.": {
			runs:       []run{{exitCode: 1, stderr: "connection refused"}},
			expErr:     true,
			expRemoved: 1,
		},
		"An invalid input exit code should be permanent.": {
			runs:         []run{{exitCode: 2, stderr: "bad params"}},
			expErr:       true,
			expPermanent: true,
			expRemoved:   1,
		},
		"An invalid output should be permanent.": {
			runs:         []run{{stdout: "not json"}},
			expErr:       true,
			expPermanent: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cli := newFakeDocker(test.runs...)
			rt, err := docker.NewRuntime(docker.RuntimeConfig{Client: cli, Image: "autotask/executor:latest", Pull: true})
			require.NoError(t, err)

			got, err := rt.Execute(context.Background(), action)
			if test.expErr {
				require.Error(t, err)
				assert.Equal(t, test.expPermanent, runtime.IsPermanent(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.expOutput, got.Output)
			}
			assert.Len(t, cli.removed, test.expRemoved)
			assert.Equal(t, 1, cli.pulls)

			require.Len(t, cli.created, 1)
			assert.Contains(t, cli.created[0].Env, "AUTOTASK_MODE=execute")
			assert.Contains(t, cli.created[0].Env, "AUTOTASK_IDEMPOTENCY_KEY=01JTASK/1")
			assert.Contains(t, cli.created[0].Env, `AUTOTASK_PARAMS={"method":"POST","url":"https://api.example.com"}`)
		})
	}
}

func TestRuntimeExecuteReattaches(t *testing.T) {
	cli := newFakeDocker(run{stdout: `{"id": "42"}`})
	rt, err := docker.NewRuntime(docker.RuntimeConfig{Client: cli, Image: "executor"})
	require.NoError(t, err)

	first, err := rt.Execute(context.Background(), action)
	require.NoError(t, err)
	second, err := rt.Execute(context.Background(), action)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, cli.created, 1)
	assert.Equal(t, 0, cli.pulls)
}

func TestRuntimeExecuteUnstartedContainer(t *testing.T) {
	tests := map[string]struct {
		cli        func() *fakeDocker
		expOutputs []map[string]string
		expErrs    []bool
		expCreated int
		expRemoved []string
	}{
		"A container that fails to start should be removed and the retry should run a new one.": {
			cli: func() *fakeDocker {
				f := newFakeDocker(run{stdout: `{"id": "41"}`}, run{stdout: `{"id": "42"}`})
				f.startErrs = []error{errors.New("port is already allocated")}
				return f
			},
			expOutputs: []map[string]string{nil, {"id": "42"}},
			expErrs:    []bool{true, false},
			expCreated: 2,
			expRemoved: []string{"autotask-01jtask-1"},
		},

		"A leftover container that never started should be recreated.": {
			cli: func() *fakeDocker {
				f := newFakeDocker(run{stdout: `{"id": "42"}`})
				f.containers["autotask-01jtask-1"] = run{}
				return f
			},
			expOutputs: []map[string]string{{"id": "42"}},
			expErrs:    []bool{false},
			expCreated: 1,
			expRemoved: []string{"autotask-01jtask-1"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			cli := test.cli()
			rt, err := docker.NewRuntime(docker.RuntimeConfig{Client: cli, Image: "executor"})
			require.NoError(err)

			for i, expErr := range test.expErrs {
				got, err := rt.Execute(context.Background(), action)
				if expErr {
					assert.Error(err)
					assert.False(runtime.IsPermanent(err))
					continue
				}
				require.NoError(err)
				assert.Equal(test.expOutputs[i], got.Output)
			}

			assert.Len(cli.created, test.expCreated)
			assert.Equal(test.expRemoved, cli.removed)
		})
	}
}

func TestRuntimeSimulate(t *testing.T) {
	cli := newFakeDocker(run{stdout: `{"success": true, "affected_records": 12, "side_effects": ["http_call"]}`})
	rt, err := docker.NewRuntime(docker.RuntimeConfig{Client: cli, Image: "executor"})
	require.NoError(t, err)

	got, err := rt.Simulate(context.Background(), action)
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, 12, got.AffectedRecords)
	assert.Equal(t, []string{"http_call"}, got.SideEffects)

	require.Len(t, cli.created, 1)
	assert.Contains(t, cli.created[0].Env, "AUTOTASK_MODE=simulate")
	assert.Len(t, cli.removed, 1)
}

func TestNewRuntimeRequiresImage(t *testing.T) {
	_, err := docker.NewRuntime(docker.RuntimeConfig{Client: newFakeDocker()})
	assert.Error(t, err)
}

func TestRuntimeCheck(t *testing.T) {
	tests := map[string]struct {
		cli       *fakeDocker
		expIDs    []string
		expStatus []model.CheckStatus
	}{
		"A reachable linux daemon should pass.": {
			cli:       &fakeDocker{osType: "linux"},
			expIDs:    []string{"docker_reachable"},
			expStatus: []model.CheckStatus{model.CheckStatusOK},
		},

		"A non linux daemon should warn.": {
			cli:       &fakeDocker{osType: "windows"},
			expIDs:    []string{"docker_reachable", "docker_os"},
			expStatus: []model.CheckStatus{model.CheckStatusOK, model.CheckStatusWarning},
		},

		"An unreachable daemon should fail.": {
			cli:       &fakeDocker{pingErr: errors.New("connection refused")},
			expIDs:    []string{"docker_reachable"},
			expStatus: []model.CheckStatus{model.CheckStatusError},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			rt, err := docker.NewRuntime(docker.RuntimeConfig{Client: test.cli, Image: "executor"})
			require.NoError(t, err)

			results := rt.Check(context.Background())
			var gotIDs []string
			var gotStatus []model.CheckStatus
			for _, r := range results {
				gotIDs = append(gotIDs, r.ID)
				gotStatus = append(gotStatus, r.Status)
			}
			assert.Equal(t, test.expIDs, gotIDs)
			assert.Equal(t, test.expStatus, gotStatus)
		})
	}
}
