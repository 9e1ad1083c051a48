package teamhub

import (
	"context"
	"io"
	"time"
)

// ContainerDriver is the external collaborator named in spec.md §1/§4.4:
// it can bring up a compose-style topology for a team, run a command
// inside a running agent's container, and stream stdout/stderr (or a
// PTY) back. Every method is bounded by ctx; the lifecycle layer wraps
// topology calls in a 2-minute deadline, and container.Sidecar bounds
// each FIFO write at 15s, per spec.md §5.
type ContainerDriver interface {
	// BringUp creates the shared resources the topology needs (network,
	// workspace volume). LifecycleManager then calls AddAgentContainer
	// once per agent; the agents argument need not be used.
	BringUp(ctx context.Context, teamID string, agents []AgentSpec) error
	// BringDown tears down every container and shared resource for
	// teamID, without forgetting the topology definition.
	BringDown(ctx context.Context, teamID string) error
	// AddAgentContainer brings up one additional agent container
	// within an already-up team topology.
	AddAgentContainer(ctx context.Context, teamID, agentID string, spec AgentSpec) error
	// RemoveAgentContainer tears down one agent's container.
	RemoveAgentContainer(ctx context.Context, teamID, agentID string) error
	// Status reports whether the topology is up and which agent
	// containers are healthy, for LifecycleManager's rehydrate pass.
	Status(ctx context.Context, teamID string) (TopologyStatus, error)
	// Exec runs argv inside agentID's container and returns its
	// combined output. env is placed in the exec environment, not the
	// command line, so the sidecar payload trick in spec.md §4.4 never
	// needs shell quoting.
	Exec(ctx context.Context, teamID, agentID string, argv []string, env map[string]string) ([]byte, error)
	// AttachConsole opens a PTY-backed duplex byte stream into
	// agentID's container for interactive console use.
	AttachConsole(ctx context.Context, teamID, agentID string) (io.ReadWriteCloser, error)
	// Available reports whether the underlying runtime is reachable at
	// all (graceful degradation, not every deployment has a driver).
	Available() bool
}

// TopologyStatus is ContainerDriver.Status's result.
type TopologyStatus struct {
	Up            bool
	AgentHealthy  map[string]bool // agentID -> healthy
}

// ChatClient is the external collaborator named in spec.md §1/§4.1: a
// per-team connection to the embedded chat server. It joins the team's
// channels, emits structured messages upward via OnMessage, and sends
// outbound lines on demand. Implementations fail closed with bounded
// reconnect (spec.md §7 Transient).
type ChatClient interface {
	Join(ctx context.Context, channels []string) error
	Say(ctx context.Context, channel, text string) error
	// OnMessage registers the sink for inbound messages. Must be
	// called before Join to avoid missing early traffic.
	OnMessage(func(channel, nick, text string, at time.Time))
	Close() error
}

// ChatClientFactory constructs a ChatClient bound to one team's chat
// gateway connection (host/port/credentials are the factory's
// concern, not the core's).
type ChatClientFactory func(teamID string, chatPort int) ChatClient

// TeamRow is the persisted-state shape from spec.md §6:
// {id, tenantId, name, repoUrl, status, channels[], agents[], createdAt, chatPort}.
type TeamRow struct {
	ID        string
	TenantID  string
	Name      string
	RepoURL   string
	Status    string
	Channels  []string
	Agents    []AgentRow
	CreatedAt time.Time
	UpdatedAt time.Time
	ChatPort  int
}

// AgentRow is an agent as persisted inside a TeamRow.
type AgentRow struct {
	ID              string
	Role            string
	Model           string
	Runtime         string
	Status          string
	LastHeartbeatAt *time.Time
}

// TeamStore persists Team configuration + status, per spec.md §4.7.
// Every mutation is durable; reads are lock-free snapshots.
type TeamStore interface {
	Init() error
	Close() error
	SaveTeam(row TeamRow) error
	GetTeam(id string) (TeamRow, bool, error)
	ListTeams(tenantID string) ([]TeamRow, error)
	DeleteTeam(id string) error
}

// TemplateRow is the persisted-state shape from spec.md §6:
// {id, tenantId|null for builtin, name, description, agents[], env?, tags?}.
type TemplateRow struct {
	ID          string
	TenantID    string // empty for builtin
	Name        string
	Description string
	Builtin     bool
	Agents      []AgentSpec
	Env         map[string]string
	Tags        []string
	CreatedAt   time.Time
}

// TemplateStore persists reusable agent rosters, per spec.md §4.7.
type TemplateStore interface {
	Init() error
	Close() error
	SaveTemplate(row TemplateRow) error
	GetTemplate(id string) (TemplateRow, bool, error)
	ListTemplates(tenantID string) ([]TemplateRow, error)
	DeleteTemplate(id string) error
}

// SidecarControl is the interactive control channel into a running
// agent container named in spec.md §1/§4.4: nudge/interrupt/directive/
// exec write one line to the sidecar's FIFO, AttachConsole opens a
// duplex PTY stream. container.Sidecar is the concrete implementation;
// a REST transport (serve.Server) holds one of these directly rather
// than going through the narrower Escalator interface LivenessTracker
// uses, since REST exposes all four commands plus attach while the
// tracker only ever issues nudge/interrupt.
type SidecarControl interface {
	Nudge(ctx context.Context, teamID, agentID, text string) error
	Interrupt(ctx context.Context, teamID, agentID string) error
	Directive(ctx context.Context, teamID, agentID, text string) error
	Exec(ctx context.Context, teamID, agentID string, argv []string) error
	AttachConsole(ctx context.Context, teamID, agentID string) (io.ReadWriteCloser, error)
}
