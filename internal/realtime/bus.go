package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dimitrije/teamfocus-api/internal/metrics"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MessageSource is the read side of the message store the bus needs: hydration
// by id and backlog fetches.
type MessageSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	Backlog(ctx context.Context, room *uuid.UUID, since int64, limit int) ([]models.Message, error)
}

type Options struct {
	BacklogLimit     int
	SubscriberBuffer int
	HydrateRetries   int
	HydrateBackoff   time.Duration
}

func (o Options) withDefaults() Options {
	if o.BacklogLimit <= 0 {
		o.BacklogLimit = 200
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = 200
	}
	if o.HydrateRetries <= 0 {
		o.HydrateRetries = 5
	}
	if o.HydrateBackoff <= 0 {
		o.HydrateBackoff = 50 * time.Millisecond
	}
	return o
}

// Bus owns one RoomChannel per room, started on first use.
type Bus struct {
	transport Transport
	log       zerolog.Logger
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	source MessageSource
	rooms  map[uuid.UUID]*RoomChannel
	closed bool
}

func NewBus(transport Transport, log zerolog.Logger, opts Options) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		transport: transport,
		log:       log.With().Str("component", "realtime").Logger(),
		opts:      opts.withDefaults(),
		ctx:       ctx,
		cancel:    cancel,
		rooms:     make(map[uuid.UUID]*RoomChannel),
	}
}

// Bind sets the store used for hydration and backlogs. The message store itself
// publishes through the bus, so it is wired after construction.
func (b *Bus) Bind(source MessageSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.source = source
}

func (b *Bus) BacklogLimit() int {
	return b.opts.BacklogLimit
}

// Room returns the running channel for key, starting it if needed.
func (b *Bus) Room(ctx context.Context, key uuid.UUID) (*RoomChannel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.source == nil {
		return nil, errors.New("realtime: bus has no message source")
	}
	if room, ok := b.rooms[key]; ok && room.ctx.Err() == nil {
		return room, nil
	}

	room := newRoomChannel(b.ctx, key, b.source, b.log, b.opts, b.forget)
	closer, err := b.transport.Subscribe(ctx, key, room.notify, room.lose)
	if err != nil {
		room.cancel()
		return nil, fmt.Errorf("failed to subscribe room transport: %w", err)
	}
	room.start(closer)
	b.rooms[key] = room

	b.log.Debug().Str("room", key.String()).Msg("room started")
	return room, nil
}

func (b *Bus) forget(room *RoomChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if current, ok := b.rooms[room.key]; ok && current == room {
		delete(b.rooms, room.key)
	}
}

// Subscribe registers a live handle on room first and only then reads the
// backlog, so anything committed before the read is in the backlog and anything
// after reaches the handle. The two may overlap; consumers de-duplicate by id.
func (b *Bus) Subscribe(ctx context.Context, room *uuid.UUID, since int64) ([]models.Message, *Subscription, error) {
	var sub *Subscription
	err := b.withRoom(ctx, models.RoomKey(room), func(channel *RoomChannel) error {
		var err error
		sub, err = channel.subscribe(ctx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	backlog, err := b.source.Backlog(ctx, room, since, b.opts.BacklogLimit)
	if err != nil {
		sub.Cancel()
		return nil, nil, fmt.Errorf("failed to load backlog: %w", err)
	}

	return backlog, sub, nil
}

// Publish hands a committed change to the transport. When that fails, local
// subscribers of the room are lagged so they reconcile from the backlog.
func (b *Bus) Publish(ctx context.Context, n Notified) error {
	if err := b.transport.Publish(ctx, n); err != nil {
		b.mu.Lock()
		room, ok := b.rooms[n.Room]
		b.mu.Unlock()
		if ok {
			room.fail(ErrLagged)
		}
		return fmt.Errorf("failed to publish %s: %w", n.Kind, err)
	}
	metrics.EventsPublished.WithLabelValues(string(n.Kind)).Inc()
	return nil
}

// Serialize runs fn on the room's writer so writes to one room never interleave
// inside this process.
func (b *Bus) Serialize(ctx context.Context, room *uuid.UUID, fn func(ctx context.Context) error) error {
	return b.withRoom(ctx, models.RoomKey(room), func(channel *RoomChannel) error {
		return channel.serialize(ctx, fn)
	})
}

// withRoom runs fn against the room's channel. A room can stop between lookup
// and use; fn is retried once on a fresh channel when it reports ErrClosed.
func (b *Bus) withRoom(ctx context.Context, key uuid.UUID, fn func(*RoomChannel) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var channel *RoomChannel
		channel, err = b.Room(ctx, key)
		if err != nil {
			return err
		}
		if err = fn(channel); !errors.Is(err, ErrClosed) {
			return err
		}
	}
	return err
}

// Rooms returns the number of running room channels.
func (b *Bus) Rooms() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms)
}

func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
}
