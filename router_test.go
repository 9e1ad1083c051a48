package teamhub

import (
	"fmt"
	"testing"
	"time"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		text     string
		wantTag  string
		wantBody string
	}{
		{"[DONE] finished the migration", "DONE", "finished the migration"},
		{"[BLOCKED_ON_REVIEW] waiting", "BLOCKED_ON_REVIEW", "waiting"},
		{"[done] lowercase tags do not count", "", ""},
		{"no tag here", "", ""},
		{"[DONE]", "DONE", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			tag, body := ParseTag(tt.text)
			if tag != tt.wantTag || body != tt.wantBody {
				t.Fatalf("ParseTag(%q) = (%q, %q), want (%q, %q)", tt.text, tag, body, tt.wantTag, tt.wantBody)
			}
		})
	}
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	r := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		r.push(Message{Text: fmt.Sprintf("msg-%d", i)})
	}
	got := r.snapshot()
	if len(got) != 3 {
		t.Fatalf("snapshot length = %d, want 3", len(got))
	}
	want := []string{"msg-2", "msg-3", "msg-4"}
	for i, m := range got {
		if m.Text != want[i] {
			t.Fatalf("snapshot[%d] = %q, want %q", i, m.Text, want[i])
		}
	}
}

func TestRouterRouteStoresAndNormalizesChannel(t *testing.T) {
	router := NewRouter(nil, 10)
	now := time.Now()
	router.Route("team-1", "main", "alice", "[DONE] shipped it", now)

	msgs := router.RecentMessages("team-1", "#main")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ChannelName != "#main" {
		t.Fatalf("channel = %q, want %q", m.ChannelName, "#main")
	}
	if m.Tag != "DONE" || m.TagBody != "shipped it" {
		t.Fatalf("tag/body = %q/%q, want DONE/shipped it", m.Tag, m.TagBody)
	}
}

func TestRouterRoutePublishesToBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	router := NewRouter(b, 10)

	sub := b.Subscribe("principal-1", "team-1", 4)
	defer b.Unsubscribe(sub)

	router.Route("team-1", "main", "alice", "hello", time.Now())

	select {
	case ev := <-sub.Events():
		if ev.Type != EventMessage {
			t.Fatalf("event type = %v, want %v", ev.Type, EventMessage)
		}
		if ev.Message == nil || ev.Message.Text != "hello" {
			t.Fatalf("event message = %+v, want text %q", ev.Message, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for routed message event")
	}
}

func TestRouterClearDropsTeamBuffers(t *testing.T) {
	router := NewRouter(nil, 10)
	router.Route("team-1", "main", "alice", "hi", time.Now())
	router.Route("team-2", "main", "bob", "hi", time.Now())

	router.Clear("team-1")

	if msgs := router.RecentMessages("team-1", "main"); msgs != nil {
		t.Fatalf("team-1 messages should be gone after Clear, got %v", msgs)
	}
	if msgs := router.RecentMessages("team-2", "main"); len(msgs) != 1 {
		t.Fatalf("team-2 messages should survive, got %d", len(msgs))
	}
}
