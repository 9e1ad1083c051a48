package container

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/forgeworks/teamhub"
)

type fakeDriver struct {
	lastArgv []string
	lastEnv  map[string]string
	execErr  error
}

func (f *fakeDriver) BringUp(ctx context.Context, teamID string, agents []teamhub.AgentSpec) error {
	return nil
}
func (f *fakeDriver) BringDown(ctx context.Context, teamID string) error { return nil }
func (f *fakeDriver) AddAgentContainer(ctx context.Context, teamID, agentID string, spec teamhub.AgentSpec) error {
	return nil
}
func (f *fakeDriver) RemoveAgentContainer(ctx context.Context, teamID, agentID string) error {
	return nil
}
func (f *fakeDriver) Status(ctx context.Context, teamID string) (teamhub.TopologyStatus, error) {
	return teamhub.TopologyStatus{}, nil
}
func (f *fakeDriver) Exec(ctx context.Context, teamID, agentID string, argv []string, env map[string]string) ([]byte, error) {
	f.lastArgv = argv
	f.lastEnv = env
	return nil, f.execErr
}
func (f *fakeDriver) AttachConsole(ctx context.Context, teamID, agentID string) (io.ReadWriteCloser, error) {
	return nil, nil
}
func (f *fakeDriver) Available() bool { return true }

func TestSidecarNudgeWritesThroughEnvVarNotCommandLine(t *testing.T) {
	driver := &fakeDriver{}
	s := NewSidecar(driver)

	if err := s.Nudge(context.Background(), "team-1", "agent-1", "check CI; rm -rf /"); err != nil {
		t.Fatalf("Nudge: %v", err)
	}

	for _, arg := range driver.lastArgv {
		if strings.Contains(arg, "rm -rf") {
			t.Fatalf("payload leaked into argv %v, should only ever be in env", driver.lastArgv)
		}
	}
	if driver.lastEnv[sidecarEnvVar] != "nudge check CI; rm -rf /" {
		t.Fatalf("env[%s] = %q, want the full nudge payload", sidecarEnvVar, driver.lastEnv[sidecarEnvVar])
	}
	found := false
	for _, arg := range driver.lastArgv {
		if strings.Contains(arg, SidecarPipePath) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected argv to reference %s, got %v", SidecarPipePath, driver.lastArgv)
	}
}

func TestSidecarInterruptAndDirective(t *testing.T) {
	driver := &fakeDriver{}
	s := NewSidecar(driver)

	if err := s.Interrupt(context.Background(), "team-1", "agent-1"); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
	if driver.lastEnv[sidecarEnvVar] != "interrupt" {
		t.Fatalf("env[%s] = %q, want %q", sidecarEnvVar, driver.lastEnv[sidecarEnvVar], "interrupt")
	}

	if err := s.Directive(context.Background(), "team-1", "agent-1", "focus on tests"); err != nil {
		t.Fatalf("Directive: %v", err)
	}
	if driver.lastEnv[sidecarEnvVar] != "directive focus on tests" {
		t.Fatalf("env[%s] = %q, want %q", sidecarEnvVar, driver.lastEnv[sidecarEnvVar], "directive focus on tests")
	}
}

func TestSidecarExecJoinsArgv(t *testing.T) {
	driver := &fakeDriver{}
	s := NewSidecar(driver)

	if err := s.Exec(context.Background(), "team-1", "agent-1", []string{"npm", "test"}); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if driver.lastEnv[sidecarEnvVar] != "exec npm test" {
		t.Fatalf("env[%s] = %q, want %q", sidecarEnvVar, driver.lastEnv[sidecarEnvVar], "exec npm test")
	}
}

func TestSidecarPropagatesExecError(t *testing.T) {
	driver := &fakeDriver{execErr: teamhub.NewError(teamhub.KindDriverUnavailable, "Exec", "docker daemon unreachable", nil)}
	s := NewSidecar(driver)

	err := s.Nudge(context.Background(), "team-1", "agent-1", "hi")
	if err == nil {
		t.Fatal("expected the driver's error to propagate")
	}
	if teamhub.KindOf(err) != teamhub.KindDriverUnavailable {
		t.Fatalf("error kind = %v, want KindDriverUnavailable", teamhub.KindOf(err))
	}
}
