package container

import (
	"context"
	"testing"

	"github.com/forgeworks/teamhub"
)

// These tests avoid requiring a real Docker daemon: they exercise the
// naming helpers directly and confirm the Driver degrades to
// KindDriverUnavailable rather than panicking when construction can't
// reach a daemon, which is the expected state in CI.

func TestNetworkAndContainerNaming(t *testing.T) {
	if got, want := networkName("team-1"), "teamhub-team-1"; got != want {
		t.Errorf("networkName() = %q, want %q", got, want)
	}
	if got, want := containerName("team-1", "agent-2"), "teamhub-team-1-agent-2"; got != want {
		t.Errorf("containerName() = %q, want %q", got, want)
	}
}

func TestNewDriverDegradesGracefullyWithoutDaemon(t *testing.T) {
	t.Setenv("DOCKER_HOST", "unix:///nonexistent/docker.sock")
	t.Setenv("HOME", t.TempDir())

	d := NewDriver(t.TempDir())
	if d.Available() {
		t.Skip("a Docker daemon is actually reachable in this environment")
	}

	ctx := context.Background()
	if err := d.BringUp(ctx, "team-1", nil); teamhub.KindOf(err) != teamhub.KindDriverUnavailable {
		t.Errorf("BringUp kind = %v, want KindDriverUnavailable", teamhub.KindOf(err))
	}
	if err := d.BringDown(ctx, "team-1"); teamhub.KindOf(err) != teamhub.KindDriverUnavailable {
		t.Errorf("BringDown kind = %v, want KindDriverUnavailable", teamhub.KindOf(err))
	}
	if err := d.AddAgentContainer(ctx, "team-1", "agent-1", teamhub.AgentSpec{}); teamhub.KindOf(err) != teamhub.KindDriverUnavailable {
		t.Errorf("AddAgentContainer kind = %v, want KindDriverUnavailable", teamhub.KindOf(err))
	}
	if _, err := d.Status(ctx, "team-1"); teamhub.KindOf(err) != teamhub.KindDriverUnavailable {
		t.Errorf("Status kind = %v, want KindDriverUnavailable", teamhub.KindOf(err))
	}
	if _, err := d.Exec(ctx, "team-1", "agent-1", []string{"ls"}, nil); teamhub.KindOf(err) != teamhub.KindDriverUnavailable {
		t.Errorf("Exec kind = %v, want KindDriverUnavailable", teamhub.KindOf(err))
	}
	if _, err := d.AttachConsole(ctx, "team-1", "agent-1"); teamhub.KindOf(err) != teamhub.KindDriverUnavailable {
		t.Errorf("AttachConsole kind = %v, want KindDriverUnavailable", teamhub.KindOf(err))
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() on a never-connected driver should be a no-op, got %v", err)
	}
}

func TestWithDefaultImage(t *testing.T) {
	d := &Driver{image: DefaultImage}
	WithDefaultImage("custom:latest")(d)
	if d.image != "custom:latest" {
		t.Errorf("image = %q, want %q", d.image, "custom:latest")
	}
}
