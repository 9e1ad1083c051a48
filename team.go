package teamhub

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TeamStatus is the team state machine's current state.
//
//	creating --success--> running --stop--> stopped --start--> running
//	   |                     |                 |                 |
//	   +-fail-> error <--fatal+-delete-> deleted <------delete---+
type TeamStatus string

const (
	TeamCreating TeamStatus = "creating"
	TeamRunning  TeamStatus = "running"
	TeamStopped  TeamStatus = "stopped"
	TeamError    TeamStatus = "error"
	TeamDeleted  TeamStatus = "deleted"
)

var teamTransitions = map[TeamStatus]map[TeamStatus]bool{
	TeamCreating: {TeamRunning: true, TeamError: true, TeamDeleted: true},
	TeamRunning:  {TeamStopped: true, TeamError: true, TeamDeleted: true},
	TeamStopped:  {TeamRunning: true, TeamDeleted: true, TeamError: true},
	TeamError:    {TeamRunning: true, TeamStopped: true, TeamDeleted: true},
	TeamDeleted:  {},
}

func (s TeamStatus) canTransitionTo(next TeamStatus) bool {
	return teamTransitions[s][next]
}

const (
	minChannels = 1
	maxChannels = 20
)

var defaultChannels = []string{"#main", "#tasks", "#code", "#testing", "#merges"}

// channelNamePattern matches a bare channel name (no leading '#').
var channelNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TeamSpec is the declarative description a tenant submits to
// CreateTeam.
type TeamSpec struct {
	Name     string
	TenantID string
	RepoURL  string
	Agents   []AgentSpec
	Channels []string
}

// AgentSpec describes one agent to materialize as part of a team.
type AgentSpec struct {
	Role    string
	Model   string
	Runtime string
}

// Team is a tenant-owned runtime: one chat gateway, a shared
// workspace, and one or more agent containers. Team is mutated only by
// LifecycleManager; every exported accessor returns a snapshot copy so
// callers never observe a half-applied transition.
type Team struct {
	mu sync.RWMutex

	id        string
	tenantID  string
	name      string
	repoURL   string
	channels  []string
	status    TeamStatus
	chatPort  int
	createdAt time.Time
	updatedAt time.Time

	agents map[string]*Agent
}

// TeamView is an immutable snapshot of a Team, safe to hand to readers
// (REST handlers, SubscriptionMux) without exposing the live mutex.
type TeamView struct {
	ID        string
	TenantID  string
	Name      string
	RepoURL   string
	Channels  []string
	Status    TeamStatus
	ChatPort  int
	CreatedAt time.Time
	UpdatedAt time.Time
	Agents    []AgentView
}

// ValidateTeamSpec checks the invariants spec.md §4.1 requires of
// CreateTeam before any state is allocated.
func ValidateTeamSpec(spec TeamSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return NewError(KindValidation, "CreateTeam", "name must not be empty", nil)
	}
	if strings.TrimSpace(spec.TenantID) == "" {
		return NewError(KindValidation, "CreateTeam", "tenantId must not be empty", nil)
	}
	u, err := url.Parse(spec.RepoURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewError(KindValidation, "CreateTeam", fmt.Sprintf("repoURL %q is not well-formed", spec.RepoURL), nil)
	}
	if len(spec.Agents) < 1 {
		return NewError(KindValidation, "CreateTeam", "at least one agent is required", nil)
	}
	for _, a := range spec.Agents {
		if strings.TrimSpace(a.Role) == "" {
			return NewError(KindValidation, "CreateTeam", "agent role must not be empty", nil)
		}
	}
	if len(spec.Channels) > 0 {
		if len(spec.Channels) > maxChannels {
			return NewError(KindValidation, "CreateTeam", fmt.Sprintf("at most %d channels allowed", maxChannels), nil)
		}
		for _, c := range spec.Channels {
			if _, err := NormalizeChannel(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// NormalizeChannel accepts both "%23main" (URL-percent-encoded) and
// "main" and always returns the canonical "#main" form, per spec.md §6.
func NormalizeChannel(raw string) (string, error) {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		decoded = raw
	}
	name := strings.TrimPrefix(decoded, "#")
	if !channelNamePattern.MatchString(name) {
		return "", NewError(KindValidation, "NormalizeChannel", fmt.Sprintf("invalid channel name %q", raw), nil)
	}
	return "#" + name, nil
}

// newTeam allocates a Team in TeamCreating with a fresh id. Only
// LifecycleManager.CreateTeam calls this.
func newTeam(spec TeamSpec) *Team {
	channels := spec.Channels
	if len(channels) == 0 {
		channels = append([]string(nil), defaultChannels...)
	} else {
		normalized := make([]string, len(channels))
		for i, c := range channels {
			normalized[i], _ = NormalizeChannel(c) // already validated
		}
		channels = normalized
	}

	now := time.Now()
	return &Team{
		id:        uuid.NewString(),
		tenantID:  spec.TenantID,
		name:      spec.Name,
		repoURL:   spec.RepoURL,
		channels:  channels,
		status:    TeamCreating,
		createdAt: now,
		updatedAt: now,
		agents:    make(map[string]*Agent),
	}
}

func (t *Team) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.id
}

// transition moves the team to next, failing with KindConflict if the
// state machine forbids it. Callers must hold no other team's lock
// while calling this (LifecycleManager serializes per-team operations
// upstream of this call).
func (t *Team) transition(next TeamStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == next {
		return nil // idempotent no-op, e.g. double delete
	}
	if !t.status.canTransitionTo(next) {
		return NewError(KindConflict, "Team.transition", fmt.Sprintf("cannot go from %s to %s", t.status, next), nil)
	}
	t.status = next
	t.updatedAt = time.Now()
	return nil
}

func (t *Team) setStatus(s TeamStatus) {
	t.mu.Lock()
	t.status = s
	t.updatedAt = time.Now()
	t.mu.Unlock()
}

func (t *Team) view() TeamView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	agents := make([]AgentView, 0, len(t.agents))
	for _, a := range t.agents {
		agents = append(agents, a.view())
	}

	return TeamView{
		ID:        t.id,
		TenantID:  t.tenantID,
		Name:      t.name,
		RepoURL:   t.repoURL,
		Channels:  append([]string(nil), t.channels...),
		Status:    t.status,
		ChatPort:  t.chatPort,
		CreatedAt: t.createdAt,
		UpdatedAt: t.updatedAt,
		Agents:    agents,
	}
}

// canEditChannels enforces spec.md §4.1: channel set may only change
// while the team is stopped.
func (t *Team) canEditChannels() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status == TeamStopped
}

func (t *Team) setChannels(channels []string) {
	t.mu.Lock()
	t.channels = channels
	t.updatedAt = time.Now()
	t.mu.Unlock()
}

func (t *Team) rename(name string) {
	t.mu.Lock()
	t.name = name
	t.updatedAt = time.Now()
	t.mu.Unlock()
}

func (t *Team) currentStatus() TeamStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}
