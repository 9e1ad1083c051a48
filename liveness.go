package teamhub

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EscalationStep is one rung of the stall-escalation ladder: at
// elapsed time After since the agent's last heartbeat, Action fires.
type EscalationStep struct {
	After  time.Duration
	Action EscalationAction
}

// EscalationAction names what LivenessTracker does to a stalled agent
// at a given rung of the ladder.
type EscalationAction string

const (
	ActionNudge     EscalationAction = "nudge"
	ActionInterrupt EscalationAction = "interrupt"
	ActionMarkDead  EscalationAction = "dead"
)

// DefaultStallTimeout and DefaultEscalation implement spec.md §4.1's
// policy: stalled at T+60s, nudge at T+60s, interrupt at T+120s, dead
// at T+180s.
var (
	DefaultStallTimeout = 60 * time.Second
	DefaultEscalation   = []EscalationStep{
		{After: 60 * time.Second, Action: ActionNudge},
		{After: 120 * time.Second, Action: ActionInterrupt},
		{After: 180 * time.Second, Action: ActionMarkDead},
	}
)

// AgentHandle is the minimal per-agent surface LivenessTracker needs;
// LifecycleManager's bookkeeping type satisfies it.
type AgentHandle struct {
	TeamID string
	Agent  *Agent
}

// AgentSource lets LivenessTracker enumerate every non-removed agent
// without owning the team registry itself.
type AgentSource interface {
	LiveAgents() []AgentHandle
}

// Escalator issues the sidecar-level actions LivenessTracker decides
// on. container.Sidecar implements this.
type Escalator interface {
	Nudge(ctx context.Context, teamID, agentID, text string) error
	Interrupt(ctx context.Context, teamID, agentID string) error
}

// StatusEmitter is notified whenever LivenessTracker changes an
// agent's status, so the caller can publish an agent_status event.
type StatusEmitter interface {
	EmitAgentStatus(teamID string, agent *Agent, status AgentStatus)
}

// LivenessTracker records last-heartbeat timestamps, classifies agents
// as live/stalled/dead, and applies the nudge->interrupt->dead
// escalation policy on a 1s-granularity ticker. Transitions never
// block on the escalation action: nudge/interrupt are issued in their
// own goroutine, failures logged, never retried by the tracker.
type LivenessTracker struct {
	source      AgentSource
	escalator   Escalator
	emitter     StatusEmitter
	stallAfter  time.Duration
	escalation  []EscalationStep
	tickEvery   time.Duration

	mu        sync.Mutex
	escalated map[string]int // agentID -> index of last escalation step applied since last live

	cancel context.CancelFunc
	done   chan struct{}
}

// LivenessOption configures a LivenessTracker.
type LivenessOption func(*LivenessTracker)

// WithStallTimeout overrides DefaultStallTimeout.
func WithStallTimeout(d time.Duration) LivenessOption {
	return func(t *LivenessTracker) { t.stallAfter = d }
}

// WithEscalation overrides DefaultEscalation.
func WithEscalation(steps []EscalationStep) LivenessOption {
	return func(t *LivenessTracker) { t.escalation = steps }
}

// WithTickInterval overrides the default 1s scan granularity.
func WithTickInterval(d time.Duration) LivenessOption {
	return func(t *LivenessTracker) { t.tickEvery = d }
}

// NewLivenessTracker constructs a tracker. Call Start to begin the
// background ticker.
func NewLivenessTracker(source AgentSource, escalator Escalator, emitter StatusEmitter, opts ...LivenessOption) *LivenessTracker {
	t := &LivenessTracker{
		source:     source,
		escalator:  escalator,
		emitter:    emitter,
		stallAfter: DefaultStallTimeout,
		escalation: DefaultEscalation,
		tickEvery:  1 * time.Second,
		escalated:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the background scan ticker. Stop it via ctx
// cancellation or Stop().
func (t *LivenessTracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.tickEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.scan(ctx)
			}
		}
	}()
}

// Stop halts the background ticker and waits for it to exit.
func (t *LivenessTracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	if t.done != nil {
		<-t.done
	}
}

// Heartbeat records a liveness ping for (teamID, agentID). Per
// spec.md §4.5, the caller has already resolved that the agent exists
// and is not removed; a stale/out-of-order timestamp is a no-op.
func (t *LivenessTracker) Heartbeat(teamID string, agent *Agent, at time.Time) {
	if transitioned := agent.recordHeartbeat(at); transitioned {
		t.mu.Lock()
		delete(t.escalated, agent.ID())
		t.mu.Unlock()
		t.emitter.EmitAgentStatus(teamID, agent, AgentLive)
	}
}

func (t *LivenessTracker) scan(ctx context.Context) {
	now := time.Now()
	for _, h := range t.source.LiveAgents() {
		t.evaluate(ctx, now, h.TeamID, h.Agent)
	}
}

func (t *LivenessTracker) evaluate(ctx context.Context, now time.Time, teamID string, agent *Agent) {
	status := agent.currentStatus()
	if status != AgentLive && status != AgentStalled {
		return
	}

	age, has := agent.heartbeatAge(now)
	if !has || age < t.stallAfter {
		return
	}

	if status == AgentLive {
		if err := agent.transition(AgentStalled); err == nil {
			t.emitter.EmitAgentStatus(teamID, agent, AgentStalled)
		}
	}

	t.applyEscalation(ctx, now, age, teamID, agent)
}

func (t *LivenessTracker) applyEscalation(ctx context.Context, now time.Time, age time.Duration, teamID string, agent *Agent) {
	agentID := agent.ID()

	t.mu.Lock()
	lastIdx := t.escalated[agentID] // 0 means none applied yet; step index is 1-based
	t.mu.Unlock()

	for i, step := range t.escalation {
		stepNum := i + 1
		if stepNum <= lastIdx {
			continue
		}
		if age < step.After {
			break
		}

		t.mu.Lock()
		t.escalated[agentID] = stepNum
		t.mu.Unlock()

		agent.markEscalated(now)
		t.fire(ctx, teamID, agent, step.Action)
	}
}

func (t *LivenessTracker) fire(ctx context.Context, teamID string, agent *Agent, action EscalationAction) {
	agentID := agent.ID()

	switch action {
	case ActionMarkDead:
		if err := agent.transition(AgentDead); err == nil {
			t.emitter.EmitAgentStatus(teamID, agent, AgentDead)
		}
	case ActionNudge:
		go func() {
			opCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			if err := t.escalator.Nudge(opCtx, teamID, agentID, "are you still making progress?"); err != nil {
				slog.Warn("liveness: nudge failed", "team", teamID, "agent", agentID, "error", err)
			}
		}()
	case ActionInterrupt:
		go func() {
			opCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			if err := t.escalator.Interrupt(opCtx, teamID, agentID); err != nil {
				slog.Warn("liveness: interrupt failed", "team", teamID, "agent", agentID, "error", err)
			}
		}()
	}
}

// forgetAgent clears escalation bookkeeping, called when an agent is
// removed so the map doesn't grow unbounded across agent churn.
func (t *LivenessTracker) forgetAgent(agentID string) {
	t.mu.Lock()
	delete(t.escalated, agentID)
	t.mu.Unlock()
}
