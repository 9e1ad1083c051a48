package teamhub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Principal is the opaque caller identity the core consumes on every
// request, per spec.md §1. Tenant identity, signup, and API-key
// issuance are explicitly out of scope; the core only ever compares
// Principal.TenantID against a Team's owning tenant.
type Principal struct {
	ID       string
	TenantID string
}

// TeamPatch is UpdateTeam's partial-update payload.
type TeamPatch struct {
	Name     *string
	Channels []string // nil means "leave unchanged"
}

const (
	defaultDriverTimeout  = 2 * time.Minute
	defaultSidecarTimeout = 15 * time.Second
	defaultStartupWindow  = 60 * time.Second
)

type teamEntry struct {
	mu   sync.Mutex // per-team serializing actor lock (spec.md §5)
	team *Team
	chat ChatClient
}

// LifecycleManager owns the team registry and drives the team and
// agent state machines, coordinating ContainerDriver, ChatClient,
// Router, and SidecarControl. Operations on one team are serialized by
// that team's own lock; operations across teams run in parallel.
type LifecycleManager struct {
	driver        ContainerDriver
	chatFactory   ChatClientFactory
	router        *Router
	broadcaster   *Broadcaster
	teamStore     TeamStore
	templateStore TemplateStore
	escalator     Escalator

	driverTimeout  time.Duration
	sidecarTimeout time.Duration
	startupWindow  time.Duration

	limiter *rate.Limiter
	log     *slog.Logger

	mu          sync.RWMutex
	teams       map[string]*teamEntry
	nameByTenant map[string]string // tenantID+"/"+name -> teamID, for uniqueness

	liveness *LivenessTracker
}

// Option configures a LifecycleManager.
type Option func(*LifecycleManager)

func WithContainerDriver(d ContainerDriver) Option {
	return func(m *LifecycleManager) { m.driver = d }
}

func WithChatClientFactory(f ChatClientFactory) Option {
	return func(m *LifecycleManager) { m.chatFactory = f }
}

func WithTeamStore(s TeamStore) Option {
	return func(m *LifecycleManager) { m.teamStore = s }
}

func WithTemplateStore(s TemplateStore) Option {
	return func(m *LifecycleManager) { m.templateStore = s }
}

func WithEscalator(e Escalator) Option {
	return func(m *LifecycleManager) { m.escalator = e }
}

// WithCreateRateLimit bounds how often CreateTeam/AddAgent may be
// called (burst b, steady rate r per second), adapted from the
// teacher's hand-rolled rate limiter onto golang.org/x/time/rate.
func WithCreateRateLimit(r float64, b int) Option {
	return func(m *LifecycleManager) { m.limiter = rate.NewLimiter(rate.Limit(r), b) }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *LifecycleManager) { m.log = l }
}

func WithDriverTimeout(d time.Duration) Option {
	return func(m *LifecycleManager) { m.driverTimeout = d }
}

func WithStartupWindow(d time.Duration) Option {
	return func(m *LifecycleManager) { m.startupWindow = d }
}

// NewLifecycleManager constructs a LifecycleManager. router and
// broadcaster are required; everything else has a reasonable default
// (a no-op ContainerDriver is NOT provided — callers must supply one
// via WithContainerDriver, since there is no safe default runtime).
func NewLifecycleManager(router *Router, broadcaster *Broadcaster, opts ...Option) *LifecycleManager {
	m := &LifecycleManager{
		router:         router,
		broadcaster:    broadcaster,
		driverTimeout:  defaultDriverTimeout,
		sidecarTimeout: defaultSidecarTimeout,
		startupWindow:  defaultStartupWindow,
		log:            slog.Default(),
		teams:          make(map[string]*teamEntry),
		nameByTenant:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.liveness == nil {
		m.liveness = NewLivenessTracker(m, m.escalator, m)
	}
	return m
}

// Liveness returns the wired LivenessTracker so the caller can Start/
// Stop its background ticker alongside the rest of the process.
func (m *LifecycleManager) Liveness() *LivenessTracker { return m.liveness }

// TemplateStore exposes the configured TemplateStore so a transport
// layer (serve.Server) can implement the independent template CRUD
// surface from spec.md §6 without needing its own constructor wiring.
func (m *LifecycleManager) TemplateStore() TemplateStore { return m.templateStore }

// --- AgentSource / StatusEmitter, wiring LivenessTracker to the registry ---

func (m *LifecycleManager) LiveAgents() []AgentHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []AgentHandle
	for teamID, entry := range m.teams {
		entry.team.mu.RLock()
		for _, a := range entry.team.agents {
			out = append(out, AgentHandle{TeamID: teamID, Agent: a})
		}
		entry.team.mu.RUnlock()
	}
	return out
}

func (m *LifecycleManager) EmitAgentStatus(teamID string, agent *Agent, status AgentStatus) {
	m.persistTeam(teamID)
	m.broadcaster.Publish(teamID, Event{
		Type:        EventAgentStatus,
		TeamID:      teamID,
		Timestamp:   time.Now(),
		AgentID:     agent.ID(),
		AgentStatus: status,
	})
	if status == AgentDead {
		m.log.Warn("agent marked dead", "team", teamID, "agent", agent.ID())
	}
}

func (m *LifecycleManager) emitTeamStatus(team *Team) {
	m.persistTeam(team.ID())
	m.broadcaster.Publish(team.ID(), Event{
		Type:       EventTeamStatus,
		TeamID:     team.ID(),
		Timestamp:  time.Now(),
		TeamStatus: team.currentStatus(),
	})
}

func (m *LifecycleManager) persistTeam(teamID string) {
	if m.teamStore == nil {
		return
	}
	entry := m.lookup(teamID)
	if entry == nil {
		return
	}
	v := entry.team.view()
	if err := m.teamStore.SaveTeam(toTeamRow(v)); err != nil {
		m.log.Error("persist team failed", "team", teamID, "error", err)
	}
}

func toTeamRow(v TeamView) TeamRow {
	agents := make([]AgentRow, 0, len(v.Agents))
	for _, a := range v.Agents {
		row := AgentRow{ID: a.ID, Role: a.Role, Model: a.Model, Runtime: a.Runtime, Status: string(a.Status)}
		if a.HasHeartbeat {
			t := a.LastHeartbeatAt
			row.LastHeartbeatAt = &t
		}
		agents = append(agents, row)
	}
	return TeamRow{
		ID: v.ID, TenantID: v.TenantID, Name: v.Name, RepoURL: v.RepoURL,
		Status: string(v.Status), Channels: v.Channels, Agents: agents,
		CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt, ChatPort: v.ChatPort,
	}
}

// --- lookups & authorization ---

func (m *LifecycleManager) lookup(teamID string) *teamEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.teams[teamID]
}

func authorize(p Principal, v TeamView) error {
	if v.TenantID != p.TenantID {
		return NewError(KindNotFound, "authorize", "team not found", nil)
	}
	return nil
}

// GetTeam returns a snapshot of teamID, scoped to principal's tenant.
func (m *LifecycleManager) GetTeam(p Principal, teamID string) (TeamView, error) {
	entry := m.lookup(teamID)
	if entry == nil {
		return TeamView{}, NewError(KindNotFound, "GetTeam", "team not found", nil)
	}
	v := entry.team.view()
	if err := authorize(p, v); err != nil {
		return TeamView{}, err
	}
	return v, nil
}

// ListTeams returns every team owned by principal's tenant.
func (m *LifecycleManager) ListTeams(p Principal) []TeamView {
	m.mu.RLock()
	entries := make([]*teamEntry, 0, len(m.teams))
	for _, e := range m.teams {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var out []TeamView
	for _, e := range entries {
		v := e.team.view()
		if v.TenantID == p.TenantID {
			out = append(out, v)
		}
	}
	return out
}

// --- CreateTeam ---

// CreateTeam validates spec, allocates a team id, persists it in
// TeamCreating, and materializes the runtime in the background,
// emitting team_status events on every transition. It returns as soon
// as the team is durably recorded as creating.
func (m *LifecycleManager) CreateTeam(ctx context.Context, p Principal, spec TeamSpec) (TeamView, error) {
	if m.limiter != nil && !m.limiter.Allow() {
		return TeamView{}, NewError(KindTransient, "CreateTeam", "rate limited, retry", nil)
	}

	spec.TenantID = p.TenantID
	if err := ValidateTeamSpec(spec); err != nil {
		return TeamView{}, err
	}

	key := p.TenantID + "/" + spec.Name
	m.mu.Lock()
	if _, exists := m.nameByTenant[key]; exists {
		m.mu.Unlock()
		return TeamView{}, NewError(KindConflict, "CreateTeam", fmt.Sprintf("team name %q already exists", spec.Name), nil)
	}
	team := newTeam(spec)
	for _, as := range spec.Agents {
		a := newAgent(team.id, as)
		team.agents[a.id] = a
	}
	entry := &teamEntry{team: team}
	m.teams[team.id] = entry
	m.nameByTenant[key] = team.id
	m.mu.Unlock()

	if m.teamStore != nil {
		if err := m.teamStore.SaveTeam(toTeamRow(team.view())); err != nil {
			m.log.Error("persist new team failed", "team", team.id, "error", err)
		}
	}

	go m.materialize(entry)

	return team.view(), nil
}

// materialize runs CreateTeam's asynchronous half: bring up containers,
// start chat, wait for the startup window, transition to running or
// error. Any failure here (driver, chat join, or no-heartbeat timeout)
// lands the team in TeamError, which an operator may retry from.
func (m *LifecycleManager) materialize(entry *teamEntry) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	team := entry.team
	ctx, cancel := context.WithTimeout(context.Background(), m.driverTimeout)
	defer cancel()

	specs := specsFromTeam(team)

	if m.driver == nil || !m.driver.Available() {
		m.failTeam(team, "container driver unavailable")
		return
	}
	if err := m.driver.BringUp(ctx, team.id, specs); err != nil {
		m.log.Error("bring up failed", "team", team.id, "error", err)
		m.failTeam(team, "container driver failed to bring up topology")
		return
	}
	if err := m.bringUpAgentContainers(ctx, team); err != nil {
		m.log.Error("agent container start failed", "team", team.id, "error", err)
		m.failTeam(team, "one or more agent containers failed to start")
		return
	}

	if m.chatFactory != nil {
		chat := m.chatFactory(team.id, team.chatPort)
		chat.OnMessage(func(channel, nick, text string, at time.Time) {
			m.router.Route(team.id, channel, nick, text, at)
		})
		if err := chat.Join(ctx, team.view().Channels); err != nil {
			m.log.Error("chat join failed", "team", team.id, "error", err)
			m.failTeam(team, "chat gateway join failed")
			return
		}
		entry.chat = chat
	}

	if !m.awaitFirstHeartbeats(team, m.startupWindow) {
		m.failTeam(team, "agents did not report a heartbeat within the startup window")
		return
	}

	if err := team.transition(TeamRunning); err != nil {
		m.log.Error("transition to running failed", "team", team.id, "error", err)
		return
	}
	m.emitTeamStatus(team)
}

func (m *LifecycleManager) failTeam(team *Team, reason string) {
	team.setStatus(TeamError)
	m.log.Warn("team entered error state", "team", team.id, "reason", reason)
	m.emitTeamStatus(team)
}

func (m *LifecycleManager) awaitFirstHeartbeats(team *Team, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if allLive(team) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return allLive(team)
}

func allLive(team *Team) bool {
	team.mu.RLock()
	defer team.mu.RUnlock()
	for _, a := range team.agents {
		if a.currentStatus() == AgentSpawning {
			return false
		}
	}
	return true
}

// bringUpAgentContainers starts one container per current agent on
// the team's already-up network.
func (m *LifecycleManager) bringUpAgentContainers(ctx context.Context, team *Team) error {
	team.mu.RLock()
	type kv struct {
		id   string
		spec AgentSpec
	}
	agents := make([]kv, 0, len(team.agents))
	for id, a := range team.agents {
		agents = append(agents, kv{id: id, spec: AgentSpec{Role: a.role, Model: a.model, Runtime: a.runtime}})
	}
	team.mu.RUnlock()

	for _, a := range agents {
		if err := m.driver.AddAgentContainer(ctx, team.id, a.id, a.spec); err != nil {
			return err
		}
	}
	return nil
}

func specsFromTeam(team *Team) []AgentSpec {
	team.mu.RLock()
	defer team.mu.RUnlock()
	out := make([]AgentSpec, 0, len(team.agents))
	for _, a := range team.agents {
		out = append(out, AgentSpec{Role: a.role, Model: a.model, Runtime: a.runtime})
	}
	return out
}

// --- Stop / Start / Delete ---

// StopTeam brings the compose topology down but keeps config.
func (m *LifecycleManager) StopTeam(ctx context.Context, p Principal, teamID string) error {
	entry, err := m.authorizedEntry(p, teamID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	team := entry.team
	if err := authorize(p, team.view()); err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, m.driverTimeout)
	defer cancel()

	if entry.chat != nil {
		_ = entry.chat.Close()
		entry.chat = nil
	}
	if m.driver != nil && m.driver.Available() {
		if err := m.driver.BringDown(dctx, teamID); err != nil {
			return NewError(KindDriverFailure, "StopTeam", "failed to bring down topology", err)
		}
	}
	if err := team.transition(TeamStopped); err != nil {
		return err
	}
	m.emitTeamStatus(team)
	return nil
}

// StartTeam is the reverse of StopTeam.
func (m *LifecycleManager) StartTeam(ctx context.Context, p Principal, teamID string) error {
	entry, err := m.authorizedEntry(p, teamID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	team := entry.team
	status := team.currentStatus()
	if status != TeamStopped && status != TeamError {
		return NewError(KindConflict, "StartTeam", fmt.Sprintf("cannot start from %s", status), nil)
	}

	dctx, cancel := context.WithTimeout(ctx, m.driverTimeout)
	defer cancel()

	if m.driver == nil || !m.driver.Available() {
		return NewError(KindDriverUnavailable, "StartTeam", "container driver unavailable", nil)
	}
	if err := m.driver.BringUp(dctx, teamID, specsFromTeam(team)); err != nil {
		team.setStatus(TeamError)
		m.emitTeamStatus(team)
		return NewError(KindDriverFailure, "StartTeam", "failed to bring up topology", err)
	}
	if err := m.bringUpAgentContainers(dctx, team); err != nil {
		team.setStatus(TeamError)
		m.emitTeamStatus(team)
		return NewError(KindDriverFailure, "StartTeam", "failed to start agent containers", err)
	}

	if m.chatFactory != nil {
		chat := m.chatFactory(teamID, team.chatPort)
		chat.OnMessage(func(channel, nick, text string, at time.Time) {
			m.router.Route(teamID, channel, nick, text, at)
		})
		if err := chat.Join(dctx, team.view().Channels); err != nil {
			team.setStatus(TeamError)
			m.emitTeamStatus(team)
			return NewError(KindDriverFailure, "StartTeam", "chat join failed", err)
		}
		entry.chat = chat
	}

	if err := team.transition(TeamRunning); err != nil {
		return err
	}
	m.emitTeamStatus(team)
	return nil
}

// DeleteTeam is idempotent: tear down containers, tombstone the team,
// drop it from the live registry, and emit a terminal team_status
// event. The store row is kept with status=deleted, not removed.
func (m *LifecycleManager) DeleteTeam(ctx context.Context, p Principal, teamID string) error {
	entry := m.lookup(teamID)
	if entry == nil {
		return nil // already gone: idempotent no-op
	}
	if err := authorize(p, entry.team.view()); err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	team := entry.team
	if team.currentStatus() == TeamDeleted {
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, m.driverTimeout)
	defer cancel()

	if entry.chat != nil {
		_ = entry.chat.Close()
		entry.chat = nil
	}
	if m.driver != nil && m.driver.Available() {
		_ = m.driver.BringDown(dctx, teamID) // best-effort; deletion proceeds regardless
	}

	_ = team.transition(TeamDeleted)
	m.router.Clear(teamID)

	team.mu.RLock()
	agentIDs := make([]string, 0, len(team.agents))
	for id := range team.agents {
		agentIDs = append(agentIDs, id)
	}
	team.mu.RUnlock()
	for _, id := range agentIDs {
		m.liveness.forgetAgent(id)
	}

	m.emitTeamStatus(team)
	m.broadcaster.CloseTeam(teamID)

	// The row is kept with status=deleted rather than purged outright:
	// store.RetentionScheduler sweeps rows past the retention window,
	// so a deleted team's row stays readable through TeamStore for
	// audit purposes until then. LifecycleManager.ListTeams and
	// Rehydrate do not return it.
	if m.teamStore != nil {
		if err := m.teamStore.SaveTeam(toTeamRow(team.view())); err != nil {
			m.log.Error("persist deleted team failed", "team", teamID, "error", err)
		}
	}

	m.mu.Lock()
	delete(m.teams, teamID)
	delete(m.nameByTenant, team.tenantID+"/"+team.name)
	m.mu.Unlock()

	return nil
}

// --- UpdateTeam ---

// UpdateTeam renames (any state) and/or edits the channel set (only
// while stopped), validated server-side per spec.md §4.1.
func (m *LifecycleManager) UpdateTeam(p Principal, teamID string, patch TeamPatch) (TeamView, error) {
	entry, err := m.authorizedEntry(p, teamID)
	if err != nil {
		return TeamView{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	team := entry.team
	if patch.Name != nil {
		team.rename(*patch.Name)
	}
	if patch.Channels != nil {
		if !team.canEditChannels() {
			return TeamView{}, NewError(KindConflict, "UpdateTeam", "channels may only be edited while stopped", nil)
		}
		normalized := make([]string, len(patch.Channels))
		for i, c := range patch.Channels {
			n, err := NormalizeChannel(c)
			if err != nil {
				return TeamView{}, err
			}
			normalized[i] = n
		}
		if len(normalized) < minChannels || len(normalized) > maxChannels {
			return TeamView{}, NewError(KindValidation, "UpdateTeam", "channel count out of range", nil)
		}
		team.setChannels(normalized)
	}
	m.persistTeam(teamID)
	return team.view(), nil
}

// --- AddAgent / RemoveAgent ---

// AddAgent modifies the roster and asks ContainerDriver to bring the
// delta up. Allowed in any non-deleted state; while running, the new
// agent immediately enters spawning and joins chat.
func (m *LifecycleManager) AddAgent(ctx context.Context, p Principal, teamID string, spec AgentSpec) (AgentView, error) {
	if m.limiter != nil && !m.limiter.Allow() {
		return AgentView{}, NewError(KindTransient, "AddAgent", "rate limited, retry", nil)
	}
	entry, err := m.authorizedEntry(p, teamID)
	if err != nil {
		return AgentView{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	team := entry.team
	if team.currentStatus() == TeamDeleted {
		return AgentView{}, NewError(KindConflict, "AddAgent", "team is deleted", nil)
	}

	agent := newAgent(teamID, spec)
	team.mu.Lock()
	team.agents[agent.id] = agent
	team.mu.Unlock()

	if team.currentStatus() == TeamRunning && m.driver != nil && m.driver.Available() {
		dctx, cancel := context.WithTimeout(ctx, m.driverTimeout)
		defer cancel()
		if err := m.driver.AddAgentContainer(dctx, teamID, agent.id, spec); err != nil {
			team.mu.Lock()
			delete(team.agents, agent.id)
			team.mu.Unlock()
			return AgentView{}, NewError(KindDriverFailure, "AddAgent", "failed to bring up agent container", err)
		}
	}

	m.persistTeam(teamID)
	return agent.view(), nil
}

// RemoveAgent tears down agentID's container and removes it from the
// roster.
func (m *LifecycleManager) RemoveAgent(ctx context.Context, p Principal, teamID, agentID string) error {
	entry, err := m.authorizedEntry(p, teamID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	team := entry.team
	team.mu.RLock()
	agent, ok := team.agents[agentID]
	team.mu.RUnlock()
	if !ok {
		return NewError(KindNotFound, "RemoveAgent", "agent not found", nil)
	}

	if m.driver != nil && m.driver.Available() {
		dctx, cancel := context.WithTimeout(ctx, m.driverTimeout)
		defer cancel()
		if err := m.driver.RemoveAgentContainer(dctx, teamID, agentID); err != nil {
			m.log.Warn("remove agent container failed, removing from roster anyway", "team", teamID, "agent", agentID, "error", err)
		}
	}

	_ = agent.transition(AgentRemoved)
	m.liveness.forgetAgent(agentID)

	team.mu.Lock()
	delete(team.agents, agentID)
	team.mu.Unlock()

	m.persistTeam(teamID)
	return nil
}

func (m *LifecycleManager) authorizedEntry(p Principal, teamID string) (*teamEntry, error) {
	entry := m.lookup(teamID)
	if entry == nil {
		return nil, NewError(KindNotFound, "LifecycleManager", "team not found", nil)
	}
	if err := authorize(p, entry.team.view()); err != nil {
		return nil, err
	}
	return entry, nil
}

// --- Heartbeat ingestion ---

// Heartbeat accepts an unauthenticated liveness ping, per spec.md §4.5.
// Unknown (teamID, agentID) pairs are ignored — never mutate state,
// never surface an error (the endpoint returns 200 OK regardless, per
// spec.md §8's boundary behavior).
func (m *LifecycleManager) Heartbeat(teamID, agentID string, at time.Time) {
	entry := m.lookup(teamID)
	if entry == nil {
		return
	}
	entry.team.mu.RLock()
	agent, ok := entry.team.agents[agentID]
	entry.team.mu.RUnlock()
	if !ok || agent.currentStatus() == AgentRemoved || agent.currentStatus() == AgentDead {
		return
	}
	m.broadcaster.Publish(teamID, Event{
		Type:      EventHeartbeat,
		TeamID:    teamID,
		Timestamp: at,
		AgentID:   agent.ID(),
	})
	m.liveness.Heartbeat(teamID, agent, at)
}

// --- Rehydration ---

// Rehydrate reconstructs in-memory team state from TeamStore at
// process startup and asks ContainerDriver which teams are actually
// still up, per spec.md §4.1. It never auto-starts a stopped team.
func (m *LifecycleManager) Rehydrate(ctx context.Context) error {
	if m.teamStore == nil {
		return nil
	}
	rows, err := m.teamStore.ListTeams("")
	if err != nil {
		return NewError(KindDriverFailure, "Rehydrate", "failed to list teams", err)
	}

	for _, row := range rows {
		if row.Status == string(TeamDeleted) {
			continue
		}
		team := fromTeamRow(row)
		entry := &teamEntry{team: team}

		m.mu.Lock()
		m.teams[team.id] = entry
		m.nameByTenant[team.tenantID+"/"+team.name] = team.id
		m.mu.Unlock()

		if m.driver == nil || !m.driver.Available() {
			team.setStatus(TeamStopped)
			continue
		}

		dctx, cancel := context.WithTimeout(ctx, m.driverTimeout)
		status, err := m.driver.Status(dctx, team.id)
		cancel()
		if err != nil {
			team.setStatus(TeamError)
			continue
		}

		if status.Up && allHealthy(team, status) {
			team.setStatus(TeamRunning)
			if m.chatFactory != nil {
				chat := m.chatFactory(team.id, team.chatPort)
				chat.OnMessage(func(channel, nick, text string, at time.Time) {
					m.router.Route(team.id, channel, nick, text, at)
				})
				_ = chat.Join(ctx, team.view().Channels)
				entry.chat = chat
			}
		} else {
			team.setStatus(TeamStopped)
		}
	}
	return nil
}

func allHealthy(team *Team, status TopologyStatus) bool {
	team.mu.RLock()
	defer team.mu.RUnlock()
	for id := range team.agents {
		if !status.AgentHealthy[id] {
			return false
		}
	}
	return true
}

func fromTeamRow(row TeamRow) *Team {
	team := &Team{
		id:        row.ID,
		tenantID:  row.TenantID,
		name:      row.Name,
		repoURL:   row.RepoURL,
		channels:  row.Channels,
		status:    TeamStatus(row.Status),
		chatPort:  row.ChatPort,
		createdAt: row.CreatedAt,
		updatedAt: row.UpdatedAt,
		agents:    make(map[string]*Agent),
	}
	for _, ar := range row.Agents {
		a := &Agent{
			id:      ar.ID,
			teamID:  row.ID,
			role:    ar.Role,
			model:   ar.Model,
			runtime: ar.Runtime,
			status:  AgentStatus(ar.Status),
		}
		if ar.LastHeartbeatAt != nil {
			a.lastHeartbeatAt = *ar.LastHeartbeatAt
			a.hasHeartbeat = true
		}
		team.agents[a.id] = a
	}
	return team
}
