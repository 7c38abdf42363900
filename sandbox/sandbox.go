// Package sandbox runs a one-shot background agent invocation inside a
// short-lived Docker container instead of directly on the host, selected
// by configuration (sandbox.mode: docker|host). It is
// trimmed from govega/container/manager.go's Manager.Exec: one ephemeral,
// auto-removed container per call, no long-running "tail -f /dev/null"
// keep-alive and no named-container reuse, since every call is a fresh
// one-shot prompt rather than a persistent project workspace.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	clawless "github.com/clawlessdev/clawless"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DefaultImage is used when a job config does not specify one.
const DefaultImage = "node:20-slim"

// Manager runs one-shot commands inside ephemeral Docker containers. If
// Docker is unavailable at construction, IsAvailable reports false and
// RunOneShot always fails; callers degrade to host execution, exactly as
// the teacher's Manager degrades instead of panicking.
type Manager struct {
	cli       *client.Client
	available bool
	image     string
	log       *slog.Logger
}

// New attempts to connect to the local Docker daemon. It never returns an
// error: unavailability is reported via IsAvailable so callers can degrade
// to host execution with a logged warning.
func New(image string, log *slog.Logger) *Manager {
	if image == "" {
		image = DefaultImage
	}
	m := &Manager{image: image, log: log.With("component", "sandbox")}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		m.log.Warn("docker client unavailable, async jobs will run on host", "error", err)
		return m
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		m.log.Warn("docker daemon unreachable, async jobs will run on host", "error", err)
		cli.Close()
		return m
	}

	m.cli = cli
	m.available = true
	return m
}

// IsAvailable reports whether Docker was reachable at construction time.
func (m *Manager) IsAvailable() bool { return m.available }

// RunOneShot creates an ephemeral container mounting cwd read-write at
// /workspace, runs command, captures stdout/stderr, and removes the
// container. Non-zero exit is reported as an error carrying the captured
// stderr, matching the host-exec contract of clawless.RunOneShotPrompt.
func (m *Manager) RunOneShot(ctx context.Context, cwd string, command []string) (string, error) {
	if !m.available {
		return "", fmt.Errorf("clawless/sandbox: docker not available")
	}

	if err := m.ensureImage(ctx); err != nil {
		return "", fmt.Errorf("clawless/sandbox: pull image: %w", err)
	}

	resp, err := m.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      m.image,
			WorkingDir: "/workspace",
			Cmd:        command,
			Tty:        false,
		},
		&container.HostConfig{
			AutoRemove: true,
			Mounts: []mount.Mount{
				{Type: mount.TypeBind, Source: cwd, Target: "/workspace"},
			},
		},
		nil, nil, "",
	)
	if err != nil {
		return "", fmt.Errorf("clawless/sandbox: create container: %w", err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("clawless/sandbox: start container: %w", err)
	}

	statusCh, errCh := m.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("clawless/sandbox: wait container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := m.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("clawless/sandbox: read logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", fmt.Errorf("clawless/sandbox: demux logs: %w", err)
	}

	if exitCode != 0 {
		return "", fmt.Errorf("clawless/sandbox: command exited %d (stderr: %s)", exitCode, lastNChars(stderr.String(), 500))
	}
	return stdout.String(), nil
}

func (m *Manager) ensureImage(ctx context.Context) error {
	if _, _, err := m.cli.ImageInspectWithRaw(ctx, m.image); err == nil {
		return nil
	}
	reader, err := m.cli.ImagePull(ctx, m.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = bytes.NewBuffer(nil).ReadFrom(reader)
	return err
}

// Close releases the Docker client.
func (m *Manager) Close() error {
	if m.cli != nil {
		return m.cli.Close()
	}
	return nil
}

func lastNChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// OneShotRunner adapts Manager to clawless.OneShotRunner, so scheduler
// jobs and ASYNC background tasks can run inside a container by
// configuration (sandbox.mode: docker) with no change to the orchestrator
// wiring. It degrades to the host runner if Docker was unavailable at
// construction, logging once per call rather than failing outright, since
// a sandboxed deployment should not wedge every background job just
// because the daemon briefly restarted.
type OneShotRunner struct {
	Manager *Manager
	Host    clawless.OneShotRunner
	log     *slog.Logger
}

// NewOneShotRunner constructs a OneShotRunner falling back to host when
// mgr is unavailable.
func NewOneShotRunner(mgr *Manager, log *slog.Logger) *OneShotRunner {
	return &OneShotRunner{Manager: mgr, Host: clawless.HostOneShotRunner{}, log: log.With("component", "sandbox")}
}

// Run implements clawless.OneShotRunner.
func (r *OneShotRunner) Run(ctx context.Context, profile clawless.AgentProfile, opts clawless.AgentOptions, cwd, prompt string) (string, error) {
	if !r.Manager.IsAvailable() {
		r.log.Warn("docker unavailable, running one-shot job on host instead")
		return r.Host.Run(ctx, profile, opts, cwd, prompt)
	}
	args := profile.PromptArgs(opts, prompt)
	command := append([]string{profile.Command}, args...)
	return r.Manager.RunOneShot(ctx, cwd, command)
}
