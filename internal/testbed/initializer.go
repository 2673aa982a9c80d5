package testbed

import (
	"context"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"devtester/internal/errors"
)

// InitializerSpec is the `initializer` attribute: an auxiliary
// controller an equipment role can ask for before its main Device is
// built, distinct from the role controller itself (a USB hub that must
// be power-cycled before a DUT boots, for instance).
type InitializerSpec struct {
	Kind string // currently only "container" is implemented
	// Image and Cmd describe the container-backed initializer.
	Image string
	Cmd []string
}

// ContainerInitializer is the InitializerSpec{Kind:"container"}
// controller: it boots a Docker container standing in for real hardware
// (local development and CI benches) and tears it down on Close.
type ContainerInitializer struct {
	cli *client.Client
	containerID string
}

// NewContainerInitializer starts spec's image as a detached container and
// returns a handle whose Close stops and removes it.
func NewContainerInitializer(ctx context.Context, spec InitializerSpec) (*ContainerInitializer, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.NewControllerError(err, "connecting to docker daemon")
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image: spec.Image,
		Cmd: spec.Cmd,
		Tty: false,
	}, nil, nil, nil, "")
	if err != nil {
		cli.Close()
		return nil, errors.NewControllerError(err, "creating stand-in container for "+spec.Image)
	}

	if err := cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		cli.Close()
		return nil, errors.NewControllerError(err, "starting stand-in container "+resp.ID)
	}

	return &ContainerInitializer{cli: cli, containerID: resp.ID}, nil
}

// Logs streams the container's combined stdout/stderr, mirroring the
// role's seriallog expectations for a hardware-backed DUT.
func (c *ContainerInitializer) Logs(ctx context.Context) (io.ReadCloser, error) {
	return c.cli.ContainerLogs(ctx, c.containerID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow: true,
	})
}

// Close stops and removes the stand-in container.
func (c *ContainerInitializer) Close() error {
	ctx := context.Background()
	timeout := 5
	stopErr := c.cli.ContainerStop(ctx, c.containerID, container.StopOptions{Timeout: &timeout})
	removeErr := c.cli.ContainerRemove(ctx, c.containerID, types.ContainerRemoveOptions{Force: true})
	closeErr := c.cli.Close()
	if stopErr != nil {
		return stopErr
	}
	if removeErr != nil {
		return removeErr
	}
	return closeErr
}

// Initializer builds and caches this equipment's initializer controller
// from spec, constructing it lazily like Device.
func (e *EquipmentRuntime) Initializer(ctx context.Context, spec InitializerSpec) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initializer != nil {
		return e.initializer, nil
	}
	if spec.Kind != "container" {
		return nil, errors.NewConfigValueError("initializer", "unsupported initializer kind "+spec.Kind)
	}
	init, err := NewContainerInitializer(ctx, spec)
	if err != nil {
		return nil, err
	}
	e.initializer = init
	return init, nil
}
