// Package sandbox provides isolated Python runtimes for analysis code,
// backed by Docker containers with per-owner naming and idle reclamation.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const (
	defaultImage    = "causalab-sandbox:latest"
	containerUser   = "1000"
	workDir         = "/workspace"
	stopTimeoutSecs = 10

	// Resource limits. Analysis code loads whole datasets into memory, so
	// the ceiling is higher than a typical playground shell.
	memoryLimitBytes = 2 * 1024 * 1024 * 1024 // 2GB
	cpuQuota         = 100000                 // 1.0 CPU
	pidsLimit        = 256

	createRetryAttempts = 20
	createRetryDelay    = 250 * time.Millisecond
)

// ExecOutcome is the raw result of one command run inside a container:
// stdout and stderr merged in temporal order, plus the exit code.
type ExecOutcome struct {
	Output   string
	ExitCode int
}

// Manager abstracts the container runtime so sessions, the execution engine,
// and file transfer share a single gate into the isolated environment.
type Manager interface {
	// EnsureContainer ensures a container exists and is running for an owner.
	EnsureContainer(ctx context.Context, owner string) (string, error)

	// StopContainer stops and removes a container. Idempotent.
	StopContainer(ctx context.Context, containerID string) error

	// IsRunning checks if a container is currently running.
	IsRunning(ctx context.Context, containerID string) (bool, error)

	// Exec runs a command in a running container and waits for it,
	// returning merged output and the exit code.
	Exec(ctx context.Context, containerID string, cmd []string) (ExecOutcome, error)

	// CopyTo extracts a tar stream into destDir inside the container.
	CopyTo(ctx context.Context, containerID, destDir string, content io.Reader) error

	// CopyFrom returns a tar stream of srcPath from the container.
	CopyFrom(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error)
}

// DockerManager implements Manager using the Docker API.
type DockerManager struct {
	cli   *client.Client
	image string
}

// NewDockerManager creates a Docker-backed manager. image overrides the
// default sandbox image when non-empty.
func NewDockerManager(image string) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if image == "" {
		image = defaultImage
	}
	slog.Info("Docker client initialized", "image", image)
	return &DockerManager{cli: cli, image: image}, nil
}

// EnsureContainer ensures a container exists and is running for an owner.
// Container identity is derived from the owner id so that concurrent owners
// on one host never collide on a runtime name.
func (m *DockerManager) EnsureContainer(ctx context.Context, owner string) (string, error) {
	containerName := fmt.Sprintf("causalab-%s", owner)

	inspect, err := m.cli.ContainerInspect(ctx, containerName)
	if err == nil {
		if inspect.State.Running {
			slog.Info("Container already running", "container_id", inspect.ID, "owner", owner)
			return inspect.ID, nil
		}
		// Stopped leftovers from a previous run carry stale interpreter
		// state; recycle rather than restart.
		slog.Info("Found stopped container, recreating", "container_id", inspect.ID, "owner", owner)
		if err := m.StopContainer(ctx, inspect.ID); err != nil {
			slog.Warn("Failed to remove stale container before recreation", "error", err, "container_id", inspect.ID)
		}
	}

	slog.Info("Creating sandbox container", "owner", owner, "image", m.image)

	config := &container.Config{
		Image:      m.image,
		User:       containerUser,
		WorkingDir: workDir,
		Tty:        true,
		Cmd:        []string{"sleep", "infinity"},
	}

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    memoryLimitBytes,
			CPUQuota:  cpuQuota,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}

	var resp container.CreateResponse
	var createErr error
	for i := 0; i < createRetryAttempts; i++ {
		resp, createErr = m.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
		if createErr == nil {
			break
		}

		errStr := strings.ToLower(createErr.Error())
		if !strings.Contains(errStr, "is already in use") && !strings.Contains(errStr, "conflict") {
			return "", fmt.Errorf("create container: %w", createErr)
		}

		// A delayed cleanup can leave the old named container briefly.
		// Force-remove by name and retry shortly.
		slog.Warn("Container name conflict during create, retrying",
			"owner", owner,
			"container_name", containerName,
			"attempt", i+1,
			"error", createErr,
		)

		if inspect, inspectErr := m.cli.ContainerInspect(ctx, containerName); inspectErr == nil {
			if stopErr := m.StopContainer(ctx, inspect.ID); stopErr != nil {
				slog.Warn("Failed to stop conflicting container before retry", "container_id", inspect.ID, "error", stopErr)
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(createRetryDelay):
		}
	}
	if createErr != nil {
		return "", fmt.Errorf("create container after retries: %w", createErr)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); removeErr != nil && !errors.Is(removeErr, context.Canceled) {
			slog.Warn("Failed to remove container after start failure", "container_id", resp.ID, "error", removeErr)
		}
		return "", fmt.Errorf("start container %s: %w", resp.ID, err)
	}

	slog.Info("Sandbox container created and started", "container_id", resp.ID, "owner", owner)
	return resp.ID, nil
}

// StopContainer stops and removes a container.
// It is idempotent and handles concurrent calls gracefully.
func (m *DockerManager) StopContainer(ctx context.Context, containerID string) error {
	slog.Info("Stopping container", "container_id", containerID)

	_, err := m.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Container already removed", "container_id", containerID)
			return nil
		}
		return fmt.Errorf("inspect container %s: %w", containerID, err)
	}

	timeout := stopTimeoutSecs
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		// Container may already be stopped or being removed elsewhere.
		if errdefs.IsNotFound(err) {
			slog.Debug("Container already stopped/removed", "container_id", containerID)
		} else if ctx.Err() != nil {
			slog.Debug("Context canceled during stop, continuing with force removal", "container_id", containerID)
		} else {
			slog.Debug("Container stop returned error, continuing to remove", "container_id", containerID, "error", err)
		}
	}

	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Container already removed", "container_id", containerID)
			return nil
		}
		if strings.Contains(err.Error(), "is already in progress") {
			slog.Debug("Container removal already in progress", "container_id", containerID)
			return nil
		}
		if ctx.Err() != nil {
			slog.Debug("Context canceled during remove, container may still be removed", "container_id", containerID, "error", err)
			return nil
		}
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}

	slog.Info("Container stopped and removed", "container_id", containerID)
	return nil
}

// IsRunning checks if a container is currently running.
func (m *DockerManager) IsRunning(ctx context.Context, containerID string) (bool, error) {
	inspect, err := m.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	return inspect.State.Running, nil
}

// Exec runs a command in a running container and waits for completion.
// The exec uses a TTY so stdout and stderr interleave in temporal order,
// matching what an operator at a terminal would see.
func (m *DockerManager) Exec(ctx context.Context, containerID string, cmd []string) (ExecOutcome, error) {
	execConfig := container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
		Cmd:          cmd,
		User:         containerUser,
		WorkingDir:   workDir,
	}

	resp, err := m.cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return ExecOutcome{}, fmt.Errorf("create exec in container %s: %w", containerID, err)
	}

	attachResp, err := m.cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{Tty: true})
	if err != nil {
		return ExecOutcome{}, fmt.Errorf("attach to exec %s: %w", resp.ID, err)
	}
	defer attachResp.Close()

	// The hijacked connection does not honor ctx once attached; watch the
	// deadline ourselves and tear the attach down to unblock the read.
	type readResult struct {
		output []byte
		err    error
	}
	readCh := make(chan readResult, 1)
	go func() {
		output, err := io.ReadAll(attachResp.Reader)
		readCh <- readResult{output: output, err: err}
	}()

	var output []byte
	select {
	case <-ctx.Done():
		attachResp.Close()
		<-readCh
		return ExecOutcome{}, ctx.Err()
	case r := <-readCh:
		if r.err != nil {
			if ctx.Err() != nil {
				return ExecOutcome{}, ctx.Err()
			}
			return ExecOutcome{}, fmt.Errorf("read exec output: %w", r.err)
		}
		output = r.output
	}

	inspect, err := m.cli.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return ExecOutcome{}, fmt.Errorf("inspect exec %s: %w", resp.ID, err)
	}

	return ExecOutcome{Output: string(output), ExitCode: inspect.ExitCode}, nil
}

// CopyTo extracts a tar stream into destDir inside the container.
func (m *DockerManager) CopyTo(ctx context.Context, containerID, destDir string, content io.Reader) error {
	if err := m.cli.CopyToContainer(ctx, containerID, destDir, content, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copy to container %s: %w", containerID, err)
	}
	return nil
}

// CopyFrom returns a tar stream of srcPath from the container.
func (m *DockerManager) CopyFrom(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	reader, _, err := m.cli.CopyFromContainer(ctx, containerID, srcPath)
	if err != nil {
		return nil, fmt.Errorf("copy from container %s: %w", containerID, err)
	}
	return reader, nil
}

func ptr[T any](v T) *T {
	return &v
}
