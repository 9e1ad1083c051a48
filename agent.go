package teamhub

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AgentStatus is the agent state machine's current state.
//
//	spawning --first heartbeat--> live --stall_timeout--> stalled --escalate--> dead
//	                                ^                        |
//	                                +----heartbeat-----------+
//	                                                          --delete--> removed
type AgentStatus string

const (
	AgentSpawning AgentStatus = "spawning"
	AgentLive     AgentStatus = "live"
	AgentStalled  AgentStatus = "stalled"
	AgentDead     AgentStatus = "dead"
	AgentRemoved  AgentStatus = "removed"
)

var agentTransitions = map[AgentStatus]map[AgentStatus]bool{
	AgentSpawning: {AgentLive: true, AgentRemoved: true, AgentDead: true},
	AgentLive:     {AgentStalled: true, AgentRemoved: true},
	AgentStalled:  {AgentLive: true, AgentDead: true, AgentRemoved: true},
	AgentDead:     {AgentRemoved: true},
	AgentRemoved:  {},
}

func (s AgentStatus) canTransitionTo(next AgentStatus) bool {
	return agentTransitions[s][next]
}

// Agent is a role-tagged process running inside one container,
// communicating with peers on the team's chat channels. Mutated only
// by LifecycleManager and LivenessTracker, both of which operate
// through the per-team serialization the LifecycleManager provides.
type Agent struct {
	mu sync.RWMutex

	id      string
	teamID  string
	role    string
	model   string
	runtime string

	status           AgentStatus
	lastHeartbeatAt  time.Time
	hasHeartbeat     bool
	restartCount     int
	lastEscalationAt time.Time
}

// AgentView is an immutable snapshot of an Agent.
type AgentView struct {
	ID              string
	TeamID          string
	Role            string
	Model           string
	Runtime         string
	Status          AgentStatus
	LastHeartbeatAt time.Time
	HasHeartbeat    bool
}

// shortID returns the first 8 hex characters of a fresh UUID, used to
// derive human-scannable agent ids ("<role>-<shortid>").
func shortID() string {
	id := uuid.New()
	return strings.ToLower(id.String()[:8])
}

func newAgent(teamID string, spec AgentSpec) *Agent {
	role := strings.ToLower(strings.TrimSpace(spec.Role))
	return &Agent{
		id:      fmt.Sprintf("%s-%s", role, shortID()),
		teamID:  teamID,
		role:    role,
		model:   spec.Model,
		runtime: spec.Runtime,
		status:  AgentSpawning,
	}
}

func (a *Agent) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.id
}

func (a *Agent) currentStatus() AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// transition moves the agent to next, failing with KindConflict if the
// state machine forbids it.
func (a *Agent) transition(next AgentStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == next {
		return nil
	}
	if !a.status.canTransitionTo(next) {
		return NewError(KindConflict, "Agent.transition", fmt.Sprintf("cannot go from %s to %s", a.status, next), nil)
	}
	a.status = next
	return nil
}

// recordHeartbeat updates lastHeartbeatAt and, if the agent was
// spawning or stalled, transitions it to live. Returns whether a
// status transition occurred (callers emit agent_status only then).
func (a *Agent) recordHeartbeat(at time.Time) (transitioned bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if at.Before(a.lastHeartbeatAt) {
		return false // out-of-order heartbeat, lastHeartbeatAt stays monotonic
	}
	a.lastHeartbeatAt = at
	a.hasHeartbeat = true

	if a.status == AgentSpawning || a.status == AgentStalled {
		a.status = AgentLive
		return true
	}
	return false
}

// heartbeatAge returns how long it has been since the last heartbeat,
// or (0, false) for agents that never reported one (spawning agents
// within their startup window).
func (a *Agent) heartbeatAge(now time.Time) (time.Duration, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.hasHeartbeat {
		return 0, false
	}
	return now.Sub(a.lastHeartbeatAt), true
}

func (a *Agent) markEscalated(at time.Time) {
	a.mu.Lock()
	a.lastEscalationAt = at
	a.mu.Unlock()
}

func (a *Agent) view() AgentView {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AgentView{
		ID:              a.id,
		TeamID:          a.teamID,
		Role:            a.role,
		Model:           a.model,
		Runtime:         a.runtime,
		Status:          a.status,
		LastHeartbeatAt: a.lastHeartbeatAt,
		HasHeartbeat:    a.hasHeartbeat,
	}
}
