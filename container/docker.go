// Package container adapts the Docker Engine API to the
// teamhub.ContainerDriver contract: one container per agent, grouped
// by team via labels, plus a shared bridge network per team so agents
// can reach each other and the chat gateway.
package container

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/forgeworks/teamhub"
)

const (
	networkPrefix   = "teamhub-"
	LabelTeam       = "teamhub.team"
	LabelAgent      = "teamhub.agent"
	LabelManagedBy  = "teamhub.managed-by"
	managedByValue  = "teamhub"
	DefaultImage    = "node:20-slim"
	containerPrefix = "teamhub-"
)

// Driver is a Docker-backed teamhub.ContainerDriver. If the daemon is
// unreachable at construction time, it degrades gracefully: Available
// reports false and every operation returns KindDriverUnavailable
// instead of panicking or blocking forever.
type Driver struct {
	client  *client.Client
	baseDir string
	image   string

	mu        sync.RWMutex
	available bool
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

func WithDefaultImage(img string) DriverOption {
	return func(d *Driver) { d.image = img }
}

// NewDriver creates a Driver rooted at baseDir (used for per-agent
// bind-mount workspaces). If Docker cannot be reached, the returned
// Driver is still usable — Available() returns false and callers
// should surface KindDriverUnavailable rather than fail construction.
func NewDriver(baseDir string, opts ...DriverOption) *Driver {
	d := &Driver{baseDir: baseDir, image: DefaultImage}
	for _, opt := range opts {
		opt(d)
	}

	cli, err := createClient()
	if err != nil {
		return d
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return d
	}

	d.client = cli
	d.available = true
	return d
}

func createClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := cli.Ping(ctx); err == nil {
			return cli, nil
		}
		cli.Close()
	}

	for _, socketPath := range []string{
		"unix://" + os.Getenv("HOME") + "/.docker/run/docker.sock",
		"unix:///var/run/docker.sock",
		"unix://" + os.Getenv("HOME") + "/.colima/docker.sock",
	} {
		cli, err := client.NewClientWithOpts(client.WithHost(socketPath), client.WithAPIVersionNegotiation())
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err = cli.Ping(ctx)
		cancel()
		if err == nil {
			return cli, nil
		}
		cli.Close()
	}
	return nil, fmt.Errorf("could not connect to Docker daemon")
}

func (d *Driver) Available() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.available
}

func (d *Driver) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

func networkName(teamID string) string { return networkPrefix + teamID }

func containerName(teamID, agentID string) string {
	return fmt.Sprintf("%s%s-%s", containerPrefix, teamID, agentID)
}

func (d *Driver) ensureNetwork(ctx context.Context, teamID string) error {
	name := networkName(teamID)
	nets, err := d.client.NetworkList(ctx, network.ListOptions{Filters: filters.NewArgs(filters.Arg("name", name))})
	if err != nil {
		return err
	}
	if len(nets) > 0 {
		return nil
	}
	_, err = d.client.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{LabelManagedBy: managedByValue, LabelTeam: teamID},
	})
	return err
}

// BringUp creates the team's network; it starts no agent containers
// (AddAgentContainer does that, one call per agent).
func (d *Driver) BringUp(ctx context.Context, teamID string, agents []teamhub.AgentSpec) error {
	if !d.Available() {
		return teamhub.NewError(teamhub.KindDriverUnavailable, "BringUp", "docker daemon unreachable", nil)
	}
	if err := d.ensureNetwork(ctx, teamID); err != nil {
		return teamhub.NewError(teamhub.KindDriverFailure, "BringUp", "failed to create network", err)
	}
	// BringUp only owns the shared network: LifecycleManager calls
	// AddAgentContainer once per concrete agent id right after, so
	// repeated BringUp calls (e.g. StartTeam after a Stop) are safe
	// against an already-up network.
	_ = agents
	return nil
}

// AddAgentContainer starts one agent's container on the team network.
func (d *Driver) AddAgentContainer(ctx context.Context, teamID, agentID string, spec teamhub.AgentSpec) error {
	if !d.Available() {
		return teamhub.NewError(teamhub.KindDriverUnavailable, "AddAgentContainer", "docker daemon unreachable", nil)
	}
	if err := d.ensureNetwork(ctx, teamID); err != nil {
		return teamhub.NewError(teamhub.KindDriverFailure, "AddAgentContainer", "failed to create network", err)
	}

	name := containerName(teamID, agentID)
	if existing, err := d.find(ctx, name); err == nil && existing != "" {
		inspect, err := d.client.ContainerInspect(ctx, existing)
		if err == nil {
			if inspect.State.Running {
				return nil
			}
			return d.client.ContainerStart(ctx, existing, container.StartOptions{})
		}
	}

	img := d.image
	if err := d.ensureImage(ctx, img); err != nil {
		return teamhub.NewError(teamhub.KindDriverFailure, "AddAgentContainer", "failed to pull image", err)
	}

	workspace, err := filepath.Abs(filepath.Join(d.baseDir, teamID, agentID))
	if err != nil {
		return teamhub.NewError(teamhub.KindDriverFailure, "AddAgentContainer", "failed to resolve workspace path", err)
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return teamhub.NewError(teamhub.KindDriverFailure, "AddAgentContainer", "failed to create workspace", err)
	}

	cfg := &container.Config{
		Image:      img,
		WorkingDir: "/workspace",
		Env:        []string{"TEAMHUB_ROLE=" + spec.Role, "TEAMHUB_MODEL=" + spec.Model},
		Labels: map[string]string{
			LabelTeam:      teamID,
			LabelAgent:     agentID,
			LabelManagedBy: managedByValue,
		},
		Tty:       true,
		OpenStdin: true,
		Cmd:       []string{"tail", "-f", "/dev/null"},
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{Type: mount.TypeBind, Source: workspace, Target: "/workspace"}},
		NetworkMode: container.NetworkMode(networkName(teamID)),
	}

	resp, err := d.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return teamhub.NewError(teamhub.KindDriverFailure, "AddAgentContainer", "failed to create container", err)
	}
	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return teamhub.NewError(teamhub.KindDriverFailure, "AddAgentContainer", "failed to start container", err)
	}
	return nil
}

// RemoveAgentContainer stops and removes agentID's container.
func (d *Driver) RemoveAgentContainer(ctx context.Context, teamID, agentID string) error {
	if !d.Available() {
		return teamhub.NewError(teamhub.KindDriverUnavailable, "RemoveAgentContainer", "docker daemon unreachable", nil)
	}
	name := containerName(teamID, agentID)
	id, err := d.find(ctx, name)
	if err != nil {
		return nil // already gone
	}
	timeout := 5
	_ = d.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	return d.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

// BringDown removes every container and the network for teamID.
func (d *Driver) BringDown(ctx context.Context, teamID string) error {
	if !d.Available() {
		return teamhub.NewError(teamhub.KindDriverUnavailable, "BringDown", "docker daemon unreachable", nil)
	}
	containers, err := d.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelTeam+"="+teamID)),
	})
	if err != nil {
		return teamhub.NewError(teamhub.KindDriverFailure, "BringDown", "failed to list containers", err)
	}
	for _, c := range containers {
		timeout := 5
		_ = d.client.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		_ = d.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true})
	}
	_ = d.client.NetworkRemove(ctx, networkName(teamID))
	return nil
}

// Status reports whether any of the team's containers exist and which
// agent containers are currently running, for LifecycleManager's
// rehydrate pass.
func (d *Driver) Status(ctx context.Context, teamID string) (teamhub.TopologyStatus, error) {
	if !d.Available() {
		return teamhub.TopologyStatus{}, teamhub.NewError(teamhub.KindDriverUnavailable, "Status", "docker daemon unreachable", nil)
	}
	containers, err := d.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelTeam+"="+teamID)),
	})
	if err != nil {
		return teamhub.TopologyStatus{}, teamhub.NewError(teamhub.KindDriverFailure, "Status", "failed to list containers", err)
	}

	healthy := make(map[string]bool)
	for _, c := range containers {
		agentID := c.Labels[LabelAgent]
		healthy[agentID] = strings.HasPrefix(c.State, "running")
	}
	return teamhub.TopologyStatus{Up: len(containers) > 0, AgentHealthy: healthy}, nil
}

// Exec runs argv in agentID's container, returning stdout+stderr
// combined. env is passed as exec-time environment variables so the
// sidecar command payload never needs shell quoting (spec.md §4.4).
func (d *Driver) Exec(ctx context.Context, teamID, agentID string, argv []string, env map[string]string) ([]byte, error) {
	if !d.Available() {
		return nil, teamhub.NewError(teamhub.KindDriverUnavailable, "Exec", "docker daemon unreachable", nil)
	}
	name := containerName(teamID, agentID)
	id, err := d.find(ctx, name)
	if err != nil {
		return nil, teamhub.NewError(teamhub.KindNotFound, "Exec", "agent container not found", err)
	}

	envSlice := make([]string, 0, len(env))
	for k, v := range env {
		envSlice = append(envSlice, k+"="+v)
	}

	execCfg := container.ExecOptions{
		Cmd:          argv,
		Env:          envSlice,
		WorkingDir:   "/workspace",
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := d.client.ContainerExecCreate(ctx, id, execCfg)
	if err != nil {
		return nil, teamhub.NewError(teamhub.KindDriverFailure, "Exec", "failed to create exec", err)
	}
	attached, err := d.client.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, teamhub.NewError(teamhub.KindDriverFailure, "Exec", "failed to attach exec", err)
	}
	defer attached.Close()

	var out strings.Builder
	if _, err := stdcopy.StdCopy(&out, &out, attached.Reader); err != nil {
		return nil, teamhub.NewError(teamhub.KindDriverFailure, "Exec", "failed to read exec output", err)
	}

	inspect, err := d.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, teamhub.NewError(teamhub.KindDriverFailure, "Exec", "failed to inspect exec", err)
	}
	if inspect.ExitCode != 0 {
		return []byte(out.String()), teamhub.NewError(teamhub.KindDriverFailure, "Exec", fmt.Sprintf("exit code %d", inspect.ExitCode), nil)
	}
	return []byte(out.String()), nil
}

// AttachConsole opens a tty exec session into agentID's container and
// returns a duplex stream of raw bytes.
func (d *Driver) AttachConsole(ctx context.Context, teamID, agentID string) (io.ReadWriteCloser, error) {
	if !d.Available() {
		return nil, teamhub.NewError(teamhub.KindDriverUnavailable, "AttachConsole", "docker daemon unreachable", nil)
	}
	name := containerName(teamID, agentID)
	id, err := d.find(ctx, name)
	if err != nil {
		return nil, teamhub.NewError(teamhub.KindNotFound, "AttachConsole", "agent container not found", err)
	}

	execCfg := container.ExecOptions{
		Cmd:          []string{"/bin/sh"},
		Tty:          true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := d.client.ContainerExecCreate(ctx, id, execCfg)
	if err != nil {
		return nil, teamhub.NewError(teamhub.KindDriverFailure, "AttachConsole", "failed to create exec", err)
	}
	attached, err := d.client.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{Tty: true})
	if err != nil {
		return nil, teamhub.NewError(teamhub.KindDriverFailure, "AttachConsole", "failed to attach exec", err)
	}
	return &hijackedConn{resp: attached}, nil
}

// hijackedConn adapts docker's HijackedResponse (a raw net.Conn plus a
// buffered Reader that may already hold read-ahead bytes) to a single
// io.ReadWriteCloser for SidecarControl's console byte-stream tunnel.
type hijackedConn struct {
	resp dockertypes.HijackedResponse
}

func (h *hijackedConn) Read(p []byte) (int, error)  { return h.resp.Reader.Read(p) }
func (h *hijackedConn) Write(p []byte) (int, error) { return h.resp.Conn.Write(p) }
func (h *hijackedConn) Close() error                { h.resp.Close(); return nil }

func (d *Driver) find(ctx context.Context, name string) (string, error) {
	containers, err := d.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", err
	}
	for _, c := range containers {
		for _, n := range c.Names {
			if n == "/"+name {
				return c.ID, nil
			}
		}
	}
	return "", fmt.Errorf("container not found: %s", name)
}

func (d *Driver) ensureImage(ctx context.Context, name string) error {
	if _, _, err := d.client.ImageInspectWithRaw(ctx, name); err == nil {
		return nil
	}
	reader, err := d.client.ImagePull(ctx, name, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

var _ teamhub.ContainerDriver = (*Driver)(nil)
