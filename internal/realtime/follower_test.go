package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySource struct {
	bus *Bus

	mu       sync.Mutex
	failures int
	calls    int
	sinces   []int64
}

func (s *flakySource) Subscribe(ctx context.Context, room *uuid.UUID, since int64) ([]models.Message, *Subscription, error) {
	s.mu.Lock()
	s.calls++
	s.sinces = append(s.sinces, since)
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return nil, nil, errors.New("dial tcp: connection refused")
	}
	return s.bus.Subscribe(ctx, room, since)
}

func (s *flakySource) snapshot() (int, []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]int64(nil), s.sinces...)
}

type statusLog struct {
	mu       sync.Mutex
	statuses []Status
}

func (l *statusLog) record(s Status, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, s)
}

func (l *statusLog) count(s Status) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, got := range l.statuses {
		if got == s {
			n++
		}
	}
	return n
}

func (l *statusLog) last() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.statuses) == 0 {
		return ""
	}
	return l.statuses[len(l.statuses)-1]
}

func fastFollowerOptions(log *statusLog) FollowerOptions {
	return FollowerOptions{
		Limit:          200,
		MaxRetries:     5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		OnStatus:       log.record,
	}
}

func TestFollower_RetriesThenGoesLive(t *testing.T) {
	store := newFakeStore()
	bus := newTestBus(t, NewLocalTransport(), store, Options{})
	room := roomPtr(uuid.New())
	m1 := store.add(room, "m1")

	src := &flakySource{bus: bus, failures: 2}
	log := &statusLog{}
	f := NewFollower(src, room, fastFollowerOptions(log))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return f.Status() == StatusLive }, 2*time.Second, time.Millisecond)
	calls, _ := src.snapshot()
	assert.Equal(t, 3, calls)
	require.Len(t, f.Messages(), 1)
	assert.Equal(t, m1.ID, f.Messages()[0].ID)

	m2 := store.add(room, "m2")
	publish(t, bus, MessageNotified(m2))
	require.Eventually(t, func() bool { return len(f.Messages()) == 2 }, 2*time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestFollower_DisconnectedAfterMaxRetries(t *testing.T) {
	store := newFakeStore()
	bus := newTestBus(t, NewLocalTransport(), store, Options{})

	src := &flakySource{bus: bus, failures: 100}
	log := &statusLog{}
	opts := fastFollowerOptions(log)
	opts.MaxRetries = 3
	f := NewFollower(src, nil, opts)

	err := f.Run(context.Background())

	require.Error(t, err)
	calls, _ := src.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, StatusDisconnected, f.Status())
	assert.Equal(t, StatusDisconnected, log.last())
	assert.Zero(t, log.count(StatusLive))
}

func TestFollower_ReconnectsAfterTransportLoss(t *testing.T) {
	store := newFakeStore()
	transport := newLossyTransport()
	bus := newTestBus(t, transport, store, Options{})
	room := roomPtr(uuid.New())
	m1 := store.add(room, "m1")

	src := &flakySource{bus: bus}
	log := &statusLog{}
	opts := fastFollowerOptions(log)
	opts.ResumeFromLast = true

	var changesMu sync.Mutex
	var added []uuid.UUID
	opts.OnChange = func(c Change) {
		changesMu.Lock()
		defer changesMu.Unlock()
		for _, m := range c.Added {
			added = append(added, m.ID)
		}
	}
	f := NewFollower(src, room, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	require.Eventually(t, func() bool { return f.Status() == StatusLive }, 2*time.Second, time.Millisecond)

	// Never published live; only the resubscribe backlog can recover it.
	m2 := store.add(room, "m2")
	transport.drop()

	require.Eventually(t, func() bool {
		return log.count(StatusReconnecting) >= 1 && f.Status() == StatusLive && len(f.Messages()) == 2
	}, 2*time.Second, time.Millisecond)

	_, sinces := src.snapshot()
	require.GreaterOrEqual(t, len(sinces), 2)
	assert.Equal(t, int64(0), sinces[0])
	assert.Equal(t, m1.Seq, sinces[len(sinces)-1])

	m3 := store.add(room, "m3")
	publish(t, bus, MessageNotified(m3))
	require.Eventually(t, func() bool { return len(f.Messages()) == 3 }, 2*time.Second, time.Millisecond)

	got := ids(f.Messages())
	assert.Equal(t, []uuid.UUID{m1.ID, m2.ID, m3.ID}, got)

	changesMu.Lock()
	defer changesMu.Unlock()
	assert.Equal(t, []uuid.UUID{m1.ID, m2.ID, m3.ID}, added, "each message surfaces exactly once")
}

func TestFollower_StopsWhenBusCloses(t *testing.T) {
	store := newFakeStore()
	bus := newTestBus(t, NewLocalTransport(), store, Options{})
	log := &statusLog{}
	f := NewFollower(&flakySource{bus: bus}, nil, fastFollowerOptions(log))

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()
	require.Eventually(t, func() bool { return f.Status() == StatusLive }, 2*time.Second, time.Millisecond)

	bus.Close()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not stop")
	}
	assert.Equal(t, StatusDisconnected, f.Status())
}
