package realtime

import (
	"sync"

	"github.com/dimitrije/teamfocus-api/internal/metrics"
)

// Subscription is one live handle on a room. C is closed when the subscription
// ends; Err then reports why (nil after Cancel).
type Subscription struct {
	id   uint64
	room *RoomChannel

	mu     sync.Mutex
	ch     chan Event
	closed bool
	err    error
}

func newSubscription(id uint64, room *RoomChannel, buffer int) *Subscription {
	return &Subscription{
		id:   id,
		room: room,
		ch:   make(chan Event, buffer),
	}
}

func (s *Subscription) C() <-chan Event {
	return s.ch
}

func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel ends the subscription. Nothing is readable from C once Cancel returns.
// Calling it again is a no-op.
func (s *Subscription) Cancel() {
	first := s.close(nil)
	for range s.ch {
	}
	if first {
		s.room.unsubscribe(s.id)
	}
}

// offer delivers ev without blocking. A full buffer closes the subscription with ErrLagged.
func (s *Subscription) offer(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.closeLocked(ErrLagged)
		metrics.LaggedSubscribers.Inc()
		return false
	}
}

func (s *Subscription) close(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(err)
}

func (s *Subscription) closeLocked(err error) bool {
	if s.closed {
		return false
	}
	s.closed = true
	s.err = err
	close(s.ch)
	metrics.LiveSubscribers.Dec()
	return true
}
