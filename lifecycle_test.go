package teamhub

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"
)

// --- fakes shared across lifecycle tests ---

type fakeDriver struct {
	mu        sync.Mutex
	available bool
	up        map[string]bool
	agents    map[string]map[string]AgentSpec
	bringUpErr, addAgentErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{available: true, up: make(map[string]bool), agents: make(map[string]map[string]AgentSpec)}
}

func (f *fakeDriver) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeDriver) BringUp(ctx context.Context, teamID string, agents []AgentSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bringUpErr != nil {
		return f.bringUpErr
	}
	f.up[teamID] = true
	if f.agents[teamID] == nil {
		f.agents[teamID] = make(map[string]AgentSpec)
	}
	return nil
}

func (f *fakeDriver) BringDown(ctx context.Context, teamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.up, teamID)
	delete(f.agents, teamID)
	return nil
}

func (f *fakeDriver) AddAgentContainer(ctx context.Context, teamID, agentID string, spec AgentSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addAgentErr != nil {
		return f.addAgentErr
	}
	if f.agents[teamID] == nil {
		f.agents[teamID] = make(map[string]AgentSpec)
	}
	f.agents[teamID][agentID] = spec
	return nil
}

func (f *fakeDriver) RemoveAgentContainer(ctx context.Context, teamID, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.agents[teamID], agentID)
	return nil
}

func (f *fakeDriver) Status(ctx context.Context, teamID string) (TopologyStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	healthy := make(map[string]bool)
	for id := range f.agents[teamID] {
		healthy[id] = true
	}
	return TopologyStatus{Up: f.up[teamID], AgentHealthy: healthy}, nil
}

func (f *fakeDriver) Exec(ctx context.Context, teamID, agentID string, argv []string, env map[string]string) ([]byte, error) {
	return nil, nil
}

func (f *fakeDriver) AttachConsole(ctx context.Context, teamID, agentID string) (io.ReadWriteCloser, error) {
	return nil, nil
}

type fakeChatClient struct {
	mu       sync.Mutex
	joined   []string
	onMsg    func(channel, nick, text string, at time.Time)
	closed   bool
	joinErr  error
}

func (c *fakeChatClient) Join(ctx context.Context, channels []string) error {
	if c.joinErr != nil {
		return c.joinErr
	}
	c.mu.Lock()
	c.joined = channels
	c.mu.Unlock()
	return nil
}
func (c *fakeChatClient) Say(ctx context.Context, channel, text string) error { return nil }
func (c *fakeChatClient) OnMessage(f func(channel, nick, text string, at time.Time)) {
	c.onMsg = f
}
func (c *fakeChatClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func fakeChatFactory() (ChatClientFactory, *sync.Map) {
	clients := &sync.Map{}
	factory := func(teamID string, chatPort int) ChatClient {
		c := &fakeChatClient{}
		clients.Store(teamID, c)
		return c
	}
	return factory, clients
}

type fakeEscalatorNoop struct{}

func (fakeEscalatorNoop) Nudge(ctx context.Context, teamID, agentID, text string) error { return nil }
func (fakeEscalatorNoop) Interrupt(ctx context.Context, teamID, agentID string) error    { return nil }

// memTeamStore is a minimal in-process TeamStore/TemplateStore used so
// lifecycle tests don't depend on the store package.
type memTeamStore struct {
	mu    sync.Mutex
	teams map[string]TeamRow
}

func newMemTeamStore() *memTeamStore { return &memTeamStore{teams: make(map[string]TeamRow)} }

func (s *memTeamStore) Init() error  { return nil }
func (s *memTeamStore) Close() error { return nil }
func (s *memTeamStore) SaveTeam(row TeamRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[row.ID] = row
	return nil
}
func (s *memTeamStore) GetTeam(id string) (TeamRow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.teams[id]
	return row, ok, nil
}
func (s *memTeamStore) ListTeams(tenantID string) ([]TeamRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TeamRow
	for _, row := range s.teams {
		if tenantID == "" || row.TenantID == tenantID {
			out = append(out, row)
		}
	}
	return out, nil
}
func (s *memTeamStore) DeleteTeam(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.teams, id)
	return nil
}

func newTestManager(driver ContainerDriver, chatFactory ChatClientFactory, store TeamStore) *LifecycleManager {
	broadcaster := NewBroadcaster()
	router := NewRouter(broadcaster, 50)
	opts := []Option{
		WithContainerDriver(driver),
		WithChatClientFactory(chatFactory),
		WithEscalator(fakeEscalatorNoop{}),
		WithStartupWindow(200 * time.Millisecond),
	}
	if store != nil {
		opts = append(opts, WithTeamStore(store))
	}
	return NewLifecycleManager(router, broadcaster, opts...)
}

func waitForTeamStatus(t *testing.T, m *LifecycleManager, p Principal, teamID string, want TeamStatus) TeamView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var v TeamView
	for time.Now().Before(deadline) {
		var err error
		v, err = m.GetTeam(p, teamID)
		if err != nil {
			t.Fatalf("GetTeam: %v", err)
		}
		if v.Status == want {
			return v
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("team %s never reached status %s, last seen %s", teamID, want, v.Status)
	return v
}

func heartbeatAllAgents(m *LifecycleManager, v TeamView) {
	for _, a := range v.Agents {
		m.Heartbeat(v.ID, a.ID, time.Now())
	}
}

// --- tests ---

func TestCreateTeamMaterializesToRunning(t *testing.T) {
	driver := newFakeDriver()
	factory, clients := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	spec := TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}}}

	created, err := m.CreateTeam(context.Background(), p, spec)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if created.Status != TeamCreating {
		t.Fatalf("initial status = %v, want creating", created.Status)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		v, _ := m.GetTeam(p, created.ID)
		if len(v.Agents) == 1 && v.Agents[0].Status != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	v, _ := m.GetTeam(p, created.ID)
	heartbeatAllAgents(m, v)

	running := waitForTeamStatus(t, m, p, created.ID, TeamRunning)
	if running.ChatPort == 0 {
		t.Error("expected a non-zero chat port once running")
	}

	if _, ok := clients.Load(created.ID); !ok {
		t.Error("expected a chat client to have been constructed for the team")
	}
}

func TestCreateTeamFailsOverToErrorWhenDriverUnavailable(t *testing.T) {
	driver := newFakeDriver()
	driver.available = false
	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	spec := TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}}}

	created, err := m.CreateTeam(context.Background(), p, spec)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	waitForTeamStatus(t, m, p, created.ID, TeamError)
}

func TestCreateTeamRejectsDuplicateNameWithinTenant(t *testing.T) {
	driver := newFakeDriver()
	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	spec := TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}}}

	if _, err := m.CreateTeam(context.Background(), p, spec); err != nil {
		t.Fatalf("first CreateTeam: %v", err)
	}
	_, err := m.CreateTeam(context.Background(), p, spec)
	if err == nil {
		t.Fatal("expected a conflict creating a second team with the same name")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("error kind = %v, want KindConflict", KindOf(err))
	}
}

func TestGetTeamScopesToTenant(t *testing.T) {
	driver := newFakeDriver()
	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	owner := Principal{ID: "u1", TenantID: "tenant-1"}
	intruder := Principal{ID: "u2", TenantID: "tenant-2"}

	created, err := m.CreateTeam(context.Background(), owner, TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}}})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	if _, err := m.GetTeam(intruder, created.ID); err == nil || KindOf(err) != KindNotFound {
		t.Fatalf("cross-tenant GetTeam should 404, got %v", err)
	}
	if _, err := m.GetTeam(owner, created.ID); err != nil {
		t.Fatalf("owner GetTeam should succeed, got %v", err)
	}
}

func TestStopThenStartRoundTrip(t *testing.T) {
	driver := newFakeDriver()
	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	created, err := m.CreateTeam(context.Background(), p, TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}}})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	v := waitForTeamStatus(t, m, p, created.ID, TeamCreating)
	heartbeatAllAgents(m, v)
	waitForTeamStatus(t, m, p, created.ID, TeamRunning)

	if err := m.StopTeam(context.Background(), p, created.ID); err != nil {
		t.Fatalf("StopTeam: %v", err)
	}
	stopped, err := m.GetTeam(p, created.ID)
	if err != nil || stopped.Status != TeamStopped {
		t.Fatalf("status after StopTeam = %v, %v, want stopped", stopped.Status, err)
	}

	if err := m.StartTeam(context.Background(), p, created.ID); err != nil {
		t.Fatalf("StartTeam: %v", err)
	}
	started, err := m.GetTeam(p, created.ID)
	if err != nil || started.Status != TeamRunning {
		t.Fatalf("status after StartTeam = %v, %v, want running", started.Status, err)
	}
}

func TestUpdateTeamChannelsOnlyAllowedWhileStopped(t *testing.T) {
	driver := newFakeDriver()
	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	created, err := m.CreateTeam(context.Background(), p, TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}}})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	waitForTeamStatus(t, m, p, created.ID, TeamCreating)

	_, err = m.UpdateTeam(p, created.ID, TeamPatch{Channels: []string{"main"}})
	if err == nil || KindOf(err) != KindConflict {
		t.Fatalf("editing channels while not stopped should conflict, got %v", err)
	}

	if err := m.StopTeam(context.Background(), p, created.ID); err != nil {
		t.Fatalf("StopTeam: %v", err)
	}
	updated, err := m.UpdateTeam(p, created.ID, TeamPatch{Channels: []string{"main", "#dev"}})
	if err != nil {
		t.Fatalf("UpdateTeam while stopped: %v", err)
	}
	if len(updated.Channels) != 2 {
		t.Fatalf("Channels = %v, want 2 entries", updated.Channels)
	}
}

func TestAddAgentToRunningTeamStartsContainerImmediately(t *testing.T) {
	driver := newFakeDriver()
	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	created, err := m.CreateTeam(context.Background(), p, TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}}})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	v := waitForTeamStatus(t, m, p, created.ID, TeamCreating)
	heartbeatAllAgents(m, v)
	waitForTeamStatus(t, m, p, created.ID, TeamRunning)

	agent, err := m.AddAgent(context.Background(), p, created.ID, AgentSpec{Role: "reviewer"})
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	driver.mu.Lock()
	_, ok := driver.agents[created.ID][agent.ID]
	driver.mu.Unlock()
	if !ok {
		t.Fatal("expected the driver to have a container for the newly added agent")
	}
}

func TestRemoveAgentDropsFromRoster(t *testing.T) {
	driver := newFakeDriver()
	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	created, err := m.CreateTeam(context.Background(), p, TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}, {Role: "reviewer"}}})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	v := waitForTeamStatus(t, m, p, created.ID, TeamCreating)
	target := v.Agents[0].ID

	if err := m.RemoveAgent(context.Background(), p, created.ID, target); err != nil {
		t.Fatalf("RemoveAgent: %v", err)
	}

	after, err := m.GetTeam(p, created.ID)
	if err != nil {
		t.Fatalf("GetTeam: %v", err)
	}
	for _, a := range after.Agents {
		if a.ID == target {
			t.Fatalf("agent %s should have been removed from the roster", target)
		}
	}
}

func TestRemoveAgentUnknownReturnsNotFound(t *testing.T) {
	driver := newFakeDriver()
	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	created, err := m.CreateTeam(context.Background(), p, TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}}})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	err = m.RemoveAgent(context.Background(), p, created.ID, "does-not-exist")
	if err == nil || KindOf(err) != KindNotFound {
		t.Fatalf("RemoveAgent(unknown) kind = %v, want KindNotFound", KindOf(err))
	}
}

func TestHeartbeatForUnknownTeamOrAgentIsANoOp(t *testing.T) {
	driver := newFakeDriver()
	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	m.Heartbeat("no-such-team", "no-such-agent", time.Now()) // must not panic
}

func TestDeleteTeamIsIdempotentAndTombstones(t *testing.T) {
	driver := newFakeDriver()
	factory, _ := fakeChatFactory()
	store := newMemTeamStore()
	m := newTestManager(driver, factory, store)

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	created, err := m.CreateTeam(context.Background(), p, TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}}})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	if err := m.DeleteTeam(context.Background(), p, created.ID); err != nil {
		t.Fatalf("DeleteTeam: %v", err)
	}
	if err := m.DeleteTeam(context.Background(), p, created.ID); err != nil {
		t.Fatalf("DeleteTeam (second call) should be a no-op, got %v", err)
	}

	if _, err := m.GetTeam(p, created.ID); err == nil || KindOf(err) != KindNotFound {
		t.Fatalf("GetTeam after delete should 404, got %v", err)
	}

	row, ok, err := store.GetTeam(created.ID)
	if err != nil || !ok {
		t.Fatalf("deleted team row should persist for the retention window, got ok=%v err=%v", ok, err)
	}
	if row.Status != string(TeamDeleted) {
		t.Fatalf("persisted status = %q, want %q", row.Status, TeamDeleted)
	}
}

func TestRehydrateRestoresTeamsAndSkipsDeleted(t *testing.T) {
	store := newMemTeamStore()
	now := time.Now()
	_ = store.SaveTeam(TeamRow{
		ID: "team-running", TenantID: "tenant-1", Name: "alpha", Status: string(TeamStopped),
		Agents: []AgentRow{{ID: "a1", Role: "implementer", Status: string(AgentLive)}},
		CreatedAt: now, UpdatedAt: now,
	})
	_ = store.SaveTeam(TeamRow{
		ID: "team-deleted", TenantID: "tenant-1", Name: "beta", Status: string(TeamDeleted),
		CreatedAt: now, UpdatedAt: now,
	})

	driver := newFakeDriver()
	driver.up["team-running"] = true
	driver.agents["team-running"] = map[string]AgentSpec{"a1": {Role: "implementer"}}

	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, store)

	if err := m.Rehydrate(context.Background()); err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	running, err := m.GetTeam(p, "team-running")
	if err != nil {
		t.Fatalf("GetTeam(team-running): %v", err)
	}
	if running.Status != TeamRunning {
		t.Fatalf("team-running status = %v, want running (driver reports it up and healthy)", running.Status)
	}

	if _, err := m.GetTeam(p, "team-deleted"); err == nil || KindOf(err) != KindNotFound {
		t.Fatal("a deleted team row should never be rehydrated into the live registry")
	}
}

func TestHeartbeatRoutesThroughToEventBroadcast(t *testing.T) {
	driver := newFakeDriver()
	factory, _ := fakeChatFactory()
	m := newTestManager(driver, factory, newMemTeamStore())

	p := Principal{ID: "u1", TenantID: "tenant-1"}
	created, err := m.CreateTeam(context.Background(), p, TeamSpec{Name: "alpha", RepoURL: "https://example.com/repo.git", Agents: []AgentSpec{{Role: "implementer"}}})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	v := waitForTeamStatus(t, m, p, created.ID, TeamCreating)

	sub := m.broadcaster.Subscribe("p1", created.ID, 8)
	defer m.broadcaster.Unsubscribe(sub)

	m.Heartbeat(created.ID, v.Agents[0].ID, time.Now())

	select {
	case ev := <-sub.Events():
		if ev.Type != EventHeartbeat {
			t.Fatalf("event type = %v, want heartbeat", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a heartbeat event to be published")
	}
}
