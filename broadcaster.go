package teamhub

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultSubscriptionQueueSize is the default bounded delivery queue
// size per subscription, per spec.md §3.
const DefaultSubscriptionQueueSize = 256

// Subscription is a live handle returned by Broadcaster.Subscribe. The
// owner drains Events() until it is closed (disconnect, overflow, or
// team teardown).
type Subscription struct {
	ID        string
	Principal string
	TeamID    string // "" means wildcard: all teams the principal owns

	sendMu     sync.Mutex // guards events sends against a concurrent close
	terminated bool       // set under sendMu before events is closed

	events chan Event // capacity limit+1: the last slot is kept for the overflow event
	limit  int
	closed chan struct{}
	once   sync.Once

	lastDeliveredSeq uint64
}

// Events returns the channel of delivered events. It is closed when
// the subscription terminates; a final Event with Type ==
// EventOverflowClosed may precede closure if the subscriber was too
// slow to drain.
func (s *Subscription) Events() <-chan Event { return s.events }

// trySend attempts a non-blocking delivery of event, returning false
// if the subscription is already terminated or its queue is full.
// Holding sendMu for the duration of both trySend and close makes the
// two mutually exclusive, so Publish can never send on a channel that
// close has already closed.
func (s *Subscription) trySend(event Event) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.terminated {
		return false
	}
	if event.Type != EventOverflowClosed && len(s.events) >= s.limit {
		return false
	}
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.once.Do(func() {
		s.sendMu.Lock()
		s.terminated = true
		s.sendMu.Unlock()
		close(s.closed)
		close(s.events)
	})
}

// Broadcaster is topic-addressable fan-out: it maintains the set of
// subscribers per team and delivers events with bounded per-subscriber
// queues. A subscriber whose queue is full when a new event arrives is
// disconnected with a terminal overflow event rather than having
// events silently dropped.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscription // teamID -> subID -> sub
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[string]*Subscription)}
}

// Subscribe registers a new subscription scoped to teamID (or "" for a
// wildcard subscription spanning every team the principal is later
// authorized for — authorization itself is the caller's concern, e.g.
// serve.SubscriptionMux). queueSize of zero uses
// DefaultSubscriptionQueueSize.
func (b *Broadcaster) Subscribe(principal, teamID string, queueSize int) *Subscription {
	if queueSize <= 0 {
		queueSize = DefaultSubscriptionQueueSize
	}
	sub := &Subscription{
		ID:        uuid.NewString(),
		Principal: principal,
		TeamID:    teamID,
		events:    make(chan Event, queueSize+1),
		limit:     queueSize,
		closed:    make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	bucket, ok := b.subs[teamID]
	if !ok {
		bucket = make(map[string]*Subscription)
		b.subs[teamID] = bucket
	}
	bucket[sub.ID] = sub
	return sub
}

// Unsubscribe removes and closes sub. Safe to call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if bucket, ok := b.subs[sub.TeamID]; ok {
		delete(bucket, sub.ID)
		if len(bucket) == 0 {
			delete(b.subs, sub.TeamID)
		}
	}
	b.mu.Unlock()
	sub.close()
}

// Publish delivers event to every subscription scoped to teamID, best
// effort. A subscription whose queue is full is sent a terminal
// EventOverflowClosed (non-blocking; it goes into the one queue slot
// that ordinary events never use) and removed — it never blocks Publish and it never silently drops a
// live subscriber's stream without telling it why.
func (b *Broadcaster) Publish(teamID string, event Event) {
	b.mu.RLock()
	targets := make([]*Subscription, 0, 4)
	targets = append(targets, subsFor(b.subs, teamID)...)
	b.mu.RUnlock()

	var overflowed []*Subscription
	for _, sub := range targets {
		if !sub.trySend(event) {
			overflowed = append(overflowed, sub)
		}
	}

	for _, sub := range overflowed {
		sub.trySend(Event{Type: EventOverflowClosed, TeamID: teamID, Timestamp: event.Timestamp})
		b.Unsubscribe(sub)
	}
}

// subsFor returns every subscription matching teamID: exact-team
// subscribers plus wildcard ("") subscribers.
func subsFor(subs map[string]map[string]*Subscription, teamID string) []*Subscription {
	var out []*Subscription
	for _, s := range subs[teamID] {
		out = append(out, s)
	}
	for _, s := range subs[""] {
		out = append(out, s)
	}
	return out
}

// CloseTeam terminates every subscription scoped to teamID, used when
// a team is deleted so subscribers get a terminal team_status event
// (sent by the caller before this) instead of a dangling reference.
func (b *Broadcaster) CloseTeam(teamID string) {
	b.mu.Lock()
	bucket := b.subs[teamID]
	delete(b.subs, teamID)
	b.mu.Unlock()

	for _, sub := range bucket {
		sub.close()
	}
}
