package teamhub

import (
	"context"
	"io"
	"sync"
)

// ConsoleAttacher opens a duplex PTY byte stream into an agent's
// container. container.Sidecar implements this.
type ConsoleAttacher interface {
	AttachConsole(ctx context.Context, teamID, agentID string) (io.ReadWriteCloser, error)
}

// ConsoleAttachment is one subscriber's view of an agent's console:
// Frames yields bytes read from the PTY, Write sends keystrokes. At
// most one ConsoleAttachment exists per (agentID, subscriptionID),
// per spec.md §3; the underlying PTY is reference-counted per agent.
type ConsoleAttachment struct {
	AgentID        string
	SubscriptionID string

	session *consoleSession
	frames  chan []byte
}

// Frames returns the channel of raw bytes read from the agent's PTY.
// It is closed when the attachment is detached or the PTY closes.
func (a *ConsoleAttachment) Frames() <-chan []byte { return a.frames }

// Write forwards client keystrokes to the shared PTY.
func (a *ConsoleAttachment) Write(data []byte) error {
	return a.session.write(data)
}

type consoleSession struct {
	mu     sync.Mutex
	conn   io.ReadWriteCloser
	subs   map[string]*ConsoleAttachment
	closed bool
}

func (s *consoleSession) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(KindConflict, "ConsoleAttachment.Write", "console session already closed", nil)
	}
	_, err := s.conn.Write(data)
	return err
}

func (s *consoleSession) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			frame := append([]byte(nil), buf[:n]...)
			s.mu.Lock()
			for _, a := range s.subs {
				select {
				case a.frames <- frame:
				default: // slow console reader: drop this frame, never block the PTY pump
				}
			}
			s.mu.Unlock()
		}
		if err != nil {
			s.closeAll()
			return
		}
	}
}

func (s *consoleSession) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, a := range s.subs {
		close(a.frames)
	}
	s.subs = nil
	_ = s.conn.Close()
}

// ConsoleHub owns the reference-counted PTY sessions behind
// AttachConsole. Exactly one PTY connection is opened per agent no
// matter how many subscribers attach; the last detach closes the
// upstream exec, per spec.md §4.4/§5.
type ConsoleHub struct {
	attacher ConsoleAttacher

	mu       sync.Mutex
	sessions map[string]*consoleSession // teamID/agentID -> session
}

// NewConsoleHub constructs a ConsoleHub over attacher.
func NewConsoleHub(attacher ConsoleAttacher) *ConsoleHub {
	return &ConsoleHub{attacher: attacher, sessions: make(map[string]*consoleSession)}
}

func sessionKey(teamID, agentID string) string { return teamID + "/" + agentID }

// Attach opens (or joins) the PTY session for (teamID, agentID) and
// returns a fresh ConsoleAttachment for subscriptionID. Attaching the
// same (agentID, subscriptionID) pair twice replaces the prior
// attachment.
func (h *ConsoleHub) Attach(ctx context.Context, teamID, agentID, subscriptionID string) (*ConsoleAttachment, error) {
	key := sessionKey(teamID, agentID)

	h.mu.Lock()
	session, ok := h.sessions[key]
	h.mu.Unlock()

	if !ok {
		conn, err := h.attacher.AttachConsole(ctx, teamID, agentID)
		if err != nil {
			return nil, err
		}
		session = &consoleSession{conn: conn, subs: make(map[string]*ConsoleAttachment)}

		h.mu.Lock()
		if existing, raced := h.sessions[key]; raced {
			// another Attach beat us to it; discard our connection
			_ = conn.Close()
			session = existing
		} else {
			h.sessions[key] = session
			go session.pump()
		}
		h.mu.Unlock()
	}

	attachment := &ConsoleAttachment{
		AgentID:        agentID,
		SubscriptionID: subscriptionID,
		session:        session,
		frames:         make(chan []byte, 64),
	}

	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return nil, NewError(KindDriverFailure, "Attach", "console session closed before attach completed", nil)
	}
	session.subs[subscriptionID] = attachment
	session.mu.Unlock()

	return attachment, nil
}

// Detach removes one subscriber from an agent's console session. When
// the last subscriber detaches, the underlying PTY exec is closed.
func (h *ConsoleHub) Detach(teamID, agentID, subscriptionID string) {
	key := sessionKey(teamID, agentID)

	h.mu.Lock()
	session, ok := h.sessions[key]
	h.mu.Unlock()
	if !ok {
		return
	}

	session.mu.Lock()
	if a, exists := session.subs[subscriptionID]; exists {
		delete(session.subs, subscriptionID)
		close(a.frames)
	}
	empty := len(session.subs) == 0
	session.mu.Unlock()

	if empty {
		h.mu.Lock()
		delete(h.sessions, key)
		h.mu.Unlock()
		session.closeAll()
	}
}

// DetachAgent tears down the console session for (teamID, agentID)
// entirely, used on agent removal.
func (h *ConsoleHub) DetachAgent(teamID, agentID string) {
	key := sessionKey(teamID, agentID)
	h.mu.Lock()
	session, ok := h.sessions[key]
	delete(h.sessions, key)
	h.mu.Unlock()
	if ok {
		session.closeAll()
	}
}
