package realtime

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Transport carries notifications between API instances.
//
// Subscribe calls deliver for every notification published to room, in publish
// order, until the returned closer is closed. lost is called at most once if the
// transport stops delivering on its own.
type Transport interface {
	Publish(ctx context.Context, n Notified) error
	Subscribe(ctx context.Context, room uuid.UUID, deliver func(Notified), lost func(error)) (io.Closer, error)
}

// LocalTransport fans notifications out inside one process.
type LocalTransport struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uuid.UUID]map[uint64]func(Notified)
}

func NewLocalTransport() *LocalTransport {
	return &LocalTransport{subs: make(map[uuid.UUID]map[uint64]func(Notified))}
}

func (t *LocalTransport) Publish(_ context.Context, n Notified) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, deliver := range t.subs[n.Room] {
		deliver(n)
	}
	return nil
}

func (t *LocalTransport) Subscribe(_ context.Context, room uuid.UUID, deliver func(Notified), _ func(error)) (io.Closer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	if _, ok := t.subs[room]; !ok {
		t.subs[room] = make(map[uint64]func(Notified))
	}
	t.subs[room][id] = deliver

	return closerFunc(func() error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if members, ok := t.subs[room]; ok {
			delete(members, id)
			if len(members) == 0 {
				delete(t.subs, room)
			}
		}
		return nil
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
