package serve

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/forgeworks/teamhub"
)

const (
	writeQueueSize    = 256
	pingInterval      = 30 * time.Second
	pongWait          = 70 * time.Second // just over two missed ping intervals
	consolePendingCap = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inFrame is the decode shape for every inbound WS frame (spec.md §4.6
// step 2-4): auth, subscribe, console.attach, console.detach,
// console.input.
type inFrame struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	TeamID  string `json:"teamId,omitempty"`
	AgentID string `json:"agentId,omitempty"`
	Data    string `json:"data,omitempty"`
}

// ackFrame is the shape of the three handshake acks/errors that aren't
// already a teamhub.Event.
type ackFrame struct {
	Type    string `json:"type"`
	TeamID  string `json:"teamId,omitempty"`
	AgentID string `json:"agentId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// SubscriptionMux implements spec.md §4.6: it authenticates long-lived
// WebSocket connections, binds each to a principal + team scope,
// dispatches Broadcaster events, and tunnels console byte streams in
// both directions via ConsoleHub/SidecarControl. Grounded on
// gorilla/websocket usage in
// other_examples/285cc4ce_holon-run-holon__pkg-serve-subscription_test.go.go
// (upgrader.Upgrade, WriteMessage/ReadMessage over a long-lived conn).
type SubscriptionMux struct {
	auth        TokenAuthenticator
	lifecycle   *teamhub.LifecycleManager
	broadcaster *teamhub.Broadcaster
	router      *teamhub.Router
	console     *teamhub.ConsoleHub
	log         *slog.Logger
}

// NewSubscriptionMux constructs a SubscriptionMux.
func NewSubscriptionMux(auth TokenAuthenticator, lifecycle *teamhub.LifecycleManager, broadcaster *teamhub.Broadcaster, router *teamhub.Router, console *teamhub.ConsoleHub) *SubscriptionMux {
	return &SubscriptionMux{
		auth:        auth,
		lifecycle:   lifecycle,
		broadcaster: broadcaster,
		router:      router,
		console:     console,
		log:         slog.Default().With("component", "subscription"),
	}
}

// ServeHTTP upgrades the request and runs the per-connection session
// until the client disconnects.
func (m *SubscriptionMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	sess := &wsSession{
		mux:       m,
		conn:      conn,
		out:       make(chan interface{}, writeQueueSize),
		pendingIn: make(map[string][]byte),
		attached:  make(map[string]*teamhub.ConsoleAttachment),
	}
	sess.run()
}

// wsSession is one authenticated connection's state: at most one
// Broadcaster subscription and zero or more attached consoles.
type wsSession struct {
	mux  *SubscriptionMux
	conn *websocket.Conn

	mu        sync.Mutex
	principal teamhub.Principal
	authed    bool
	sub       *teamhub.Subscription
	teamID    string
	attached  map[string]*teamhub.ConsoleAttachment // agentId -> attachment
	pendingIn map[string][]byte                     // agentId -> buffered console.input before attach completes, per spec.md §9(a)

	out    chan interface{}
	closed chan struct{}
	once   sync.Once
}

func (s *wsSession) run() {
	s.closed = make(chan struct{})
	defer s.teardown()

	s.conn.SetReadLimit(1 << 20)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.writeLoop()
	s.readLoop()
}

func (s *wsSession) teardown() {
	s.once.Do(func() {
		close(s.closed)
	})

	s.mu.Lock()
	sub := s.sub
	attached := make(map[string]*teamhub.ConsoleAttachment, len(s.attached))
	for k, v := range s.attached {
		attached[k] = v
	}
	teamID := s.teamID
	s.mu.Unlock()

	if sub != nil {
		s.mux.broadcaster.Unsubscribe(sub)
	}
	for agentID, att := range attached {
		s.mux.console.Detach(teamID, agentID, att.SubscriptionID)
	}
	_ = s.conn.Close()
}

func (s *wsSession) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame inFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.send(ackFrame{Type: "error", Reason: "malformed frame"})
			continue
		}
		if !s.handleFrame(frame) {
			return
		}
	}
}

// handleFrame processes one inbound frame. A false return means the
// connection should close.
func (s *wsSession) handleFrame(frame inFrame) bool {
	switch frame.Type {
	case "auth":
		return s.handleAuth(frame)
	case "subscribe":
		return s.handleSubscribe(frame)
	case "console.attach":
		s.handleConsoleAttach(frame)
		return true
	case "console.detach":
		s.handleConsoleDetach(frame)
		return true
	case "console.input":
		s.handleConsoleInput(frame)
		return true
	default:
		s.send(ackFrame{Type: "error", Reason: "unknown frame type"})
		return true
	}
}

func (s *wsSession) handleAuth(frame inFrame) bool {
	principal, ok := s.mux.auth.Authenticate(frame.Token)
	if !ok {
		s.send(ackFrame{Type: "error", Reason: "authentication failed"})
		return false
	}
	s.mu.Lock()
	s.principal = principal
	s.authed = true
	s.mu.Unlock()
	s.send(ackFrame{Type: "authenticated"})
	return true
}

func (s *wsSession) handleSubscribe(frame inFrame) bool {
	s.mu.Lock()
	authed := s.authed
	principal := s.principal
	s.mu.Unlock()
	if !authed {
		s.send(ackFrame{Type: "error", Reason: "must authenticate first"})
		return false
	}

	if _, err := s.mux.lifecycle.GetTeam(principal, frame.TeamID); err != nil {
		s.send(ackFrame{Type: "error", TeamID: frame.TeamID, Reason: "team not found"})
		return false
	}

	sub := s.mux.broadcaster.Subscribe(principal.ID, frame.TeamID, 0)

	s.mu.Lock()
	prev := s.sub
	s.sub = sub
	s.teamID = frame.TeamID
	s.mu.Unlock()
	if prev != nil {
		s.mux.broadcaster.Unsubscribe(prev)
	}

	go s.pumpSubscription(sub)

	s.send(ackFrame{Type: "subscribed", TeamID: frame.TeamID})
	return true
}

// pumpSubscription forwards Broadcaster events to the outbound queue
// until the subscription closes (disconnect, overflow, or team
// teardown).
func (s *wsSession) pumpSubscription(sub *teamhub.Subscription) {
	for event := range sub.Events() {
		s.send(event)
	}
}

func (s *wsSession) handleConsoleAttach(frame inFrame) {
	s.mu.Lock()
	teamID := s.teamID
	sub := s.sub
	s.mu.Unlock()
	if teamID == "" || sub == nil {
		s.send(ackFrame{Type: "error", AgentID: frame.AgentID, Reason: "not subscribed to a team"})
		return
	}

	subID := sub.ID
	attachment, err := s.mux.console.Attach(context.Background(), teamID, frame.AgentID, subID)
	if err != nil {
		s.send(ackFrame{Type: "error", AgentID: frame.AgentID, Reason: "console attach failed"})
		s.mu.Lock()
		delete(s.pendingIn, frame.AgentID)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.attached[frame.AgentID] = attachment
	pending := s.pendingIn[frame.AgentID]
	delete(s.pendingIn, frame.AgentID)
	s.mu.Unlock()

	go s.pumpConsole(teamID, frame.AgentID, attachment)

	s.send(teamhub.Event{Type: teamhub.EventConsoleAttached, TeamID: teamID, AgentID: frame.AgentID, Timestamp: time.Now()})

	// Flush any console.input bytes that arrived before the attach
	// completed, per spec.md §9(a).
	if len(pending) > 0 {
		_ = attachment.Write(pending)
	}
}

func (s *wsSession) pumpConsole(teamID, agentID string, attachment *teamhub.ConsoleAttachment) {
	for frame := range attachment.Frames() {
		s.send(teamhub.Event{Type: teamhub.EventConsoleData, TeamID: teamID, AgentID: agentID, ConsoleData: frame, Timestamp: time.Now()})
	}
	s.send(teamhub.Event{Type: teamhub.EventConsoleDetached, TeamID: teamID, AgentID: agentID, Timestamp: time.Now()})
}

func (s *wsSession) handleConsoleDetach(frame inFrame) {
	s.mu.Lock()
	teamID := s.teamID
	attachment, ok := s.attached[frame.AgentID]
	if ok {
		delete(s.attached, frame.AgentID)
	}
	s.mu.Unlock()
	if ok {
		s.mux.console.Detach(teamID, frame.AgentID, attachment.SubscriptionID)
	}
}

// handleConsoleInput relays keystrokes to an attached console, or
// buffers them (bounded) if console.attach is still in flight — the
// client MAY send input immediately per spec.md §9(a); it is dropped
// if attach ultimately fails.
func (s *wsSession) handleConsoleInput(frame inFrame) {
	s.mu.Lock()
	attachment, attached := s.attached[frame.AgentID]
	if !attached {
		buf := s.pendingIn[frame.AgentID]
		if len(buf) < consolePendingCap*1024 {
			s.pendingIn[frame.AgentID] = append(buf, []byte(frame.Data)...)
		}
	}
	s.mu.Unlock()

	if attached {
		_ = attachment.Write([]byte(frame.Data))
	}
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-s.out:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// send enqueues msg on the outbound queue, non-blocking: a session
// whose client stopped reading gets disconnected rather than backing
// up the whole mux, per spec.md §4.6's per-connection bounded queue.
func (s *wsSession) send(msg interface{}) {
	select {
	case s.out <- msg:
	case <-s.closed:
	default:
		s.once.Do(func() { close(s.closed) })
	}
}
