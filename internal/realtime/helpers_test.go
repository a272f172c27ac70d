package realtime

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	msgs    map[uuid.UUID]*models.Message
	seqs    map[uuid.UUID]int64
	getErrs int
	clock   time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		msgs:  make(map[uuid.UUID]*models.Message),
		seqs:  make(map[uuid.UUID]int64),
		clock: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) add(room *uuid.UUID, content string) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.RoomKey(room)
	s.seqs[key]++
	s.clock = s.clock.Add(time.Second)
	m := &models.Message{
		ID:         uuid.New(),
		RoomID:     room,
		UserID:     uuid.New(),
		AuthorName: "Alice",
		Content:    content,
		Seq:        s.seqs[key],
		CreatedAt:  s.clock,
	}
	s.msgs[m.ID] = m
	return m
}

func (s *fakeStore) tombstone(id uuid.UUID) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.msgs[id]
	now := s.clock
	m.Content = ""
	m.DeletedAt = &now
	return m
}

func (s *fakeStore) failNextGets(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErrs = n
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErrs > 0 {
		s.getErrs--
		return nil, errors.New("connection reset")
	}
	m, ok := s.msgs[id]
	if !ok {
		return nil, apperr.ErrMessageMissing
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) Backlog(_ context.Context, room *uuid.UUID, since int64, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.RoomKey(room)
	var out []models.Message
	for _, m := range s.msgs {
		if models.RoomKey(m.RoomID) == key && m.Seq > since {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// lossyTransport wraps LocalTransport and can simulate the transport dropping.
type lossyTransport struct {
	*LocalTransport
	mu   sync.Mutex
	lost []func(error)
	subs int
}

func newLossyTransport() *lossyTransport {
	return &lossyTransport{LocalTransport: NewLocalTransport()}
}

func (t *lossyTransport) Subscribe(ctx context.Context, room uuid.UUID, deliver func(Notified), lost func(error)) (io.Closer, error) {
	t.mu.Lock()
	t.lost = append(t.lost, lost)
	t.subs++
	t.mu.Unlock()
	return t.LocalTransport.Subscribe(ctx, room, deliver, lost)
}

func (t *lossyTransport) drop() {
	t.mu.Lock()
	lost := t.lost
	t.lost = nil
	t.mu.Unlock()
	for _, l := range lost {
		l(ErrTransportLost)
	}
}

func (t *lossyTransport) subscriptions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs
}

func newTestBus(t *testing.T, transport Transport, store *fakeStore, opts Options) *Bus {
	t.Helper()
	opts.HydrateBackoff = time.Millisecond
	bus := NewBus(transport, zerolog.Nop(), opts)
	bus.Bind(store)
	t.Cleanup(bus.Close)
	return bus
}

func publish(t *testing.T, bus *Bus, n Notified) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), n))
}

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		require.True(t, ok, "subscription closed: %v", sub.Err())
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func waitClosed(t *testing.T, sub *Subscription) error {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				return sub.Err()
			}
		case <-deadline:
			t.Fatal("timed out waiting for subscription to close")
			return nil
		}
	}
}

func roomPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
