package teamhub

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeAgentSource struct {
	mu     sync.Mutex
	agents []AgentHandle
}

func (f *fakeAgentSource) LiveAgents() []AgentHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]AgentHandle, len(f.agents))
	copy(out, f.agents)
	return out
}

type escalationCall struct {
	kind     string
	teamID   string
	agentID  string
}

type fakeEscalator struct {
	mu    sync.Mutex
	calls []escalationCall
}

func (f *fakeEscalator) Nudge(ctx context.Context, teamID, agentID, text string) error {
	f.mu.Lock()
	f.calls = append(f.calls, escalationCall{"nudge", teamID, agentID})
	f.mu.Unlock()
	return nil
}

func (f *fakeEscalator) Interrupt(ctx context.Context, teamID, agentID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, escalationCall{"interrupt", teamID, agentID})
	f.mu.Unlock()
	return nil
}

func (f *fakeEscalator) snapshot() []escalationCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]escalationCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeStatusEmitter struct {
	mu       sync.Mutex
	statuses []AgentStatus
}

func (f *fakeStatusEmitter) EmitAgentStatus(teamID string, agent *Agent, status AgentStatus) {
	f.mu.Lock()
	f.statuses = append(f.statuses, status)
	f.mu.Unlock()
}

func (f *fakeStatusEmitter) last() AgentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return ""
	}
	return f.statuses[len(f.statuses)-1]
}

func (f *fakeStatusEmitter) contains(s AgentStatus) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, st := range f.statuses {
		if st == s {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestLivenessTrackerEscalatesStalledAgent(t *testing.T) {
	agent := newAgent("team-1", AgentSpec{Role: "implementer"})
	agent.transition(AgentLive)
	agent.recordHeartbeat(time.Now())

	source := &fakeAgentSource{agents: []AgentHandle{{TeamID: "team-1", Agent: agent}}}
	escalator := &fakeEscalator{}
	emitter := &fakeStatusEmitter{}

	tracker := NewLivenessTracker(source, escalator, emitter,
		WithTickInterval(5*time.Millisecond),
		WithStallTimeout(20*time.Millisecond),
		WithEscalation([]EscalationStep{
			{After: 20 * time.Millisecond, Action: ActionNudge},
			{After: 60 * time.Millisecond, Action: ActionInterrupt},
			{After: 100 * time.Millisecond, Action: ActionMarkDead},
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker.Start(ctx)
	defer tracker.Stop()

	waitFor(t, time.Second, func() bool { return emitter.contains(AgentStalled) })

	waitFor(t, time.Second, func() bool {
		for _, c := range escalator.snapshot() {
			if c.kind == "nudge" {
				return true
			}
		}
		return false
	})

	waitFor(t, time.Second, func() bool {
		for _, c := range escalator.snapshot() {
			if c.kind == "interrupt" {
				return true
			}
		}
		return false
	})

	waitFor(t, time.Second, func() bool { return agent.currentStatus() == AgentDead })
	if emitter.last() != AgentDead {
		t.Fatalf("last emitted status = %v, want %v", emitter.last(), AgentDead)
	}
}

func TestLivenessTrackerHeartbeatClearsEscalation(t *testing.T) {
	agent := newAgent("team-1", AgentSpec{Role: "implementer"})
	agent.transition(AgentLive)
	agent.recordHeartbeat(time.Now())

	source := &fakeAgentSource{agents: []AgentHandle{{TeamID: "team-1", Agent: agent}}}
	escalator := &fakeEscalator{}
	emitter := &fakeStatusEmitter{}

	tracker := NewLivenessTracker(source, escalator, emitter,
		WithTickInterval(5*time.Millisecond),
		WithStallTimeout(20*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker.Start(ctx)
	defer tracker.Stop()

	waitFor(t, time.Second, func() bool { return agent.currentStatus() == AgentStalled })

	tracker.Heartbeat("team-1", agent, time.Now())
	waitFor(t, time.Second, func() bool { return agent.currentStatus() == AgentLive })
}
