package stream

import (
	"sync"
	"time"

	"pkigate.org/internal/ids"
)

// LoginEvent describes the outcome of one authentication attempt for the
// activity feed.
type LoginEvent struct {
	ID          string    `json:"id"`
	Login       string    `json:"login,omitempty"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	Provisioned bool      `json:"provisioned,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Stream fans out login events to all active subscribers (the SSE activity
// endpoint). Slow subscribers drop events rather than block the login path.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan LoginEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan LoginEvent)}
}

// Subscribe registers a consumer. The returned cancel func must be called to
// release the subscription.
func (s *Stream) Subscribe(buffer int) (<-chan LoginEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan LoginEvent, buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (s *Stream) Publish(ev LoginEvent) {
	if ev.ID == "" {
		ev.ID = ids.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the number of active subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
