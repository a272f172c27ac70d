package realtime

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const notifyQueueSize = 1024

type writeJob struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// RoomChannel is the actor for one room. Its loop owns the subscriber set; a
// hydrator turns transport notifications into events in arrival order; a writer
// runs Serialize jobs one at a time.
type RoomChannel struct {
	key    uuid.UUID
	source MessageSource
	log    zerolog.Logger
	buffer int

	hydrateRetries uint64
	hydrateBackoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	onStop func(*RoomChannel)

	nextID     uint64
	subs       map[uint64]*Subscription
	register   chan *Subscription
	unregister chan uint64
	events     chan Event
	notified   chan Notified
	failures   chan error
	lost       chan error
	writes     chan writeJob

	transport io.Closer
}

func newRoomChannel(parent context.Context, key uuid.UUID, source MessageSource, log zerolog.Logger, opts Options, onStop func(*RoomChannel)) *RoomChannel {
	ctx, cancel := context.WithCancel(parent)
	return &RoomChannel{
		key:            key,
		source:         source,
		log:            log.With().Str("room", key.String()).Logger(),
		buffer:         opts.SubscriberBuffer,
		hydrateRetries: uint64(opts.HydrateRetries),
		hydrateBackoff: opts.HydrateBackoff,
		ctx:            ctx,
		cancel:         cancel,
		onStop:         onStop,
		subs:           make(map[uint64]*Subscription),
		register:       make(chan *Subscription),
		unregister:     make(chan uint64, 64),
		events:         make(chan Event),
		notified:       make(chan Notified, notifyQueueSize),
		failures:       make(chan error, 1),
		lost:           make(chan error, 1),
		writes:         make(chan writeJob),
	}
}

func (r *RoomChannel) start(transport io.Closer) {
	r.transport = transport
	metrics.ActiveRooms.Inc()
	go r.run()
	go r.hydrate()
	go r.write()
}

// notify is the transport callback. It never blocks.
func (r *RoomChannel) notify(n Notified) {
	select {
	case r.notified <- n:
	default:
		r.fail(ErrLagged)
	}
}

// fail lags every current subscriber. Failures that arrive while one is
// pending collapse into it.
func (r *RoomChannel) fail(err error) {
	select {
	case r.failures <- err:
	default:
	}
}

// lose is the transport's loss callback. It has its own channel so a pending
// lag can never swallow it; the first loss stops the room.
func (r *RoomChannel) lose(err error) {
	select {
	case r.lost <- err:
	default:
	}
}

func (r *RoomChannel) subscribe(ctx context.Context) (*Subscription, error) {
	sub := newSubscription(0, r, r.buffer)
	select {
	case r.register <- sub:
		return sub, nil
	case <-r.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *RoomChannel) unsubscribe(id uint64) {
	select {
	case r.unregister <- id:
	case <-r.ctx.Done():
	}
}

// serialize runs fn on the room's writer and waits for its result.
func (r *RoomChannel) serialize(ctx context.Context, fn func(ctx context.Context) error) error {
	job := writeJob{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case r.writes <- job:
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-job.done
}

func (r *RoomChannel) run() {
	defer r.stop()

	for {
		select {
		case sub := <-r.register:
			r.nextID++
			sub.id = r.nextID
			r.subs[sub.id] = sub
			metrics.LiveSubscribers.Inc()

		case id := <-r.unregister:
			delete(r.subs, id)

		case ev := <-r.events:
			for id, sub := range r.subs {
				if !sub.offer(ev) {
					delete(r.subs, id)
				}
			}

		case err := <-r.failures:
			r.closeAll(err)

		case err := <-r.lost:
			r.closeAll(err)
			r.log.Warn().Err(err).Msg("room transport lost, stopping")
			return

		case <-r.ctx.Done():
			r.closeAll(ErrClosed)
			return
		}
	}
}

func (r *RoomChannel) closeAll(err error) {
	for id, sub := range r.subs {
		sub.close(err)
		delete(r.subs, id)
	}
}

func (r *RoomChannel) stop() {
	r.cancel()
	if r.transport != nil {
		_ = r.transport.Close()
	}
	metrics.ActiveRooms.Dec()
	if r.onStop != nil {
		r.onStop(r)
	}
}

func (r *RoomChannel) hydrate() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case n := <-r.notified:
			ev, err := r.resolve(n)
			if err != nil {
				if r.ctx.Err() != nil {
					return
				}
				// Subscribers recover the message from the backlog.
				metrics.HydrationFailures.Inc()
				r.log.Error().Err(err).Str("message_id", n.ID.String()).Msg("hydration failed")
				r.fail(ErrLagged)
				continue
			}
			select {
			case r.events <- ev:
			case <-r.ctx.Done():
				return
			}
		}
	}
}

func (r *RoomChannel) resolve(n Notified) (Event, error) {
	if n.Kind == KindTombstone {
		return Event{Kind: KindTombstone, ID: n.ID, Seq: n.Seq}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.hydrateBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.hydrateRetries), r.ctx)

	var ev Event
	err := backoff.Retry(func() error {
		msg, err := r.source.GetByID(r.ctx, n.ID)
		if err != nil {
			if errors.Is(err, apperr.ErrMessageMissing) {
				return backoff.Permanent(err)
			}
			return err
		}
		ev = hydrated(msg)
		return nil
	}, policy)

	if errors.Is(err, apperr.ErrMessageMissing) {
		// Removed before we could read it; subscribers drop it like a tombstone.
		return Event{Kind: KindTombstone, ID: n.ID, Seq: n.Seq}, nil
	}
	return ev, err
}

func (r *RoomChannel) write() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case job := <-r.writes:
			job.done <- job.fn(job.ctx)
		}
	}
}
