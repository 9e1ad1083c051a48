package container

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/forgeworks/teamhub"
)

// SidecarPipePath is the well-known path the sidecar listener tails
// inside every agent container, per spec.md §6.
const SidecarPipePath = "/run/teamhub/sidecar.fifo"

// sidecarEnvVar carries the one-line command payload so the shell that
// writes it to the pipe never interpolates it — the payload is never
// part of the command line, only of the environment, per spec.md §4.4.
const sidecarEnvVar = "TEAMHUB_SIDECAR_CMD"

// opTimeout bounds every non-attach SidecarControl operation, per
// spec.md §4.4/§5.
const opTimeout = 15 * time.Second

// Sidecar implements teamhub's SidecarControl contract (Nudge,
// Interrupt, Directive, Exec, AttachConsole) on top of a
// teamhub.ContainerDriver. It writes commands to the sidecar pipe by
// invoking the driver's Exec with the payload in an environment
// variable and a minimal shell that appends it to the pipe, never
// letting the payload touch a shell's command line.
type Sidecar struct {
	driver teamhub.ContainerDriver
}

// NewSidecar constructs a Sidecar over driver.
func NewSidecar(driver teamhub.ContainerDriver) *Sidecar {
	return &Sidecar{driver: driver}
}

func (s *Sidecar) writeLine(ctx context.Context, teamID, agentID, line string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	argv := []string{"/bin/sh", "-c", `printf '%s\n' "$` + sidecarEnvVar + `" >> ` + SidecarPipePath}
	env := map[string]string{sidecarEnvVar: line}

	_, err := s.driver.Exec(ctx, teamID, agentID, argv, env)
	return err
}

// Nudge writes "nudge <text>" to the sidecar pipe.
func (s *Sidecar) Nudge(ctx context.Context, teamID, agentID, text string) error {
	return s.writeLine(ctx, teamID, agentID, "nudge "+text)
}

// Interrupt writes "interrupt" to the sidecar pipe.
func (s *Sidecar) Interrupt(ctx context.Context, teamID, agentID string) error {
	return s.writeLine(ctx, teamID, agentID, "interrupt")
}

// Directive writes "directive <text>" to the sidecar pipe.
func (s *Sidecar) Directive(ctx context.Context, teamID, agentID, text string) error {
	return s.writeLine(ctx, teamID, agentID, "directive "+text)
}

// Exec writes "exec <argv...>" to the sidecar pipe; the sidecar is
// responsible for its own tokenization of the joined argv.
func (s *Sidecar) Exec(ctx context.Context, teamID, agentID string, argv []string) error {
	return s.writeLine(ctx, teamID, agentID, "exec "+strings.Join(argv, " "))
}

// AttachConsole opens a PTY-style duplex byte stream into agentID's
// container via the driver. Reference counting across multiple
// subscribers to the same agent console is the caller's concern
// (teamhub.ConsoleHub); Sidecar hands back one fresh stream per call.
func (s *Sidecar) AttachConsole(ctx context.Context, teamID, agentID string) (io.ReadWriteCloser, error) {
	return s.driver.AttachConsole(ctx, teamID, agentID)
}

var (
	_ teamhub.Escalator      = (*Sidecar)(nil)
	_ teamhub.SidecarControl = (*Sidecar)(nil)
)
