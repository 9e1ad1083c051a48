package teamhub

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeConsoleAttacher struct {
	mu    sync.Mutex
	calls int32
	conns map[string]net.Conn // server-side end, keyed by teamID/agentID
	err   error
}

func newFakeConsoleAttacher() *fakeConsoleAttacher {
	return &fakeConsoleAttacher{conns: make(map[string]net.Conn)}
}

func (f *fakeConsoleAttacher) AttachConsole(ctx context.Context, teamID, agentID string) (io.ReadWriteCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	atomic.AddInt32(&f.calls, 1)
	client, server := net.Pipe()
	f.mu.Lock()
	f.conns[sessionKey(teamID, agentID)] = server
	f.mu.Unlock()
	return client, nil
}

func (f *fakeConsoleAttacher) serverConn(teamID, agentID string) net.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[sessionKey(teamID, agentID)]
}

func TestConsoleHubAttachOpensExactlyOnePTYPerAgent(t *testing.T) {
	attacher := newFakeConsoleAttacher()
	hub := NewConsoleHub(attacher)

	a1, err := hub.Attach(context.Background(), "team-1", "agent-1", "sub-1")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	a2, err := hub.Attach(context.Background(), "team-1", "agent-1", "sub-2")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if atomic.LoadInt32(&attacher.calls) != 1 {
		t.Fatalf("AttachConsole called %d times, want exactly 1 for two subscribers on the same agent", attacher.calls)
	}

	server := attacher.serverConn("team-1", "agent-1")
	if _, err := server.Write([]byte("hello")); err != nil {
		t.Fatalf("server write: %v", err)
	}

	for _, a := range []*ConsoleAttachment{a1, a2} {
		select {
		case frame := <-a.Frames():
			if string(frame) != "hello" {
				t.Fatalf("frame = %q, want %q", frame, "hello")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the fan-out frame")
		}
	}
}

func TestConsoleHubDetachClosesUpstreamOnlyWhenLastSubscriberLeaves(t *testing.T) {
	attacher := newFakeConsoleAttacher()
	hub := NewConsoleHub(attacher)

	_, err := hub.Attach(context.Background(), "team-1", "agent-1", "sub-1")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	a2, err := hub.Attach(context.Background(), "team-1", "agent-1", "sub-2")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	hub.Detach("team-1", "agent-1", "sub-1")

	server := attacher.serverConn("team-1", "agent-1")
	if _, err := server.Write([]byte("still alive")); err != nil {
		t.Fatalf("the PTY should still be open with one subscriber remaining: %v", err)
	}
	select {
	case frame := <-a2.Frames():
		if string(frame) != "still alive" {
			t.Fatalf("frame = %q, want %q", frame, "still alive")
		}
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber never received a frame")
	}

	hub.Detach("team-1", "agent-1", "sub-2")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := server.Write([]byte("x")); err != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected the upstream PTY to close once the last subscriber detached")
}

func TestConsoleHubDetachAgentTearsDownRegardlessOfSubscriberCount(t *testing.T) {
	attacher := newFakeConsoleAttacher()
	hub := NewConsoleHub(attacher)

	a1, err := hub.Attach(context.Background(), "team-1", "agent-1", "sub-1")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	_, err = hub.Attach(context.Background(), "team-1", "agent-1", "sub-2")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	hub.DetachAgent("team-1", "agent-1")

	select {
	case _, ok := <-a1.Frames():
		if ok {
			t.Fatal("expected the frames channel to be closed with no pending frames")
		}
	case <-time.After(time.Second):
		t.Fatal("DetachAgent should close every subscriber's frame channel")
	}
}

func TestConsoleAttachmentWriteAfterCloseReturnsConflict(t *testing.T) {
	attacher := newFakeConsoleAttacher()
	hub := NewConsoleHub(attacher)

	a, err := hub.Attach(context.Background(), "team-1", "agent-1", "sub-1")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	hub.DetachAgent("team-1", "agent-1")

	err = a.Write([]byte("too late"))
	if err == nil {
		t.Fatal("expected a write after close to fail")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("error kind = %v, want KindConflict", KindOf(err))
	}
}
