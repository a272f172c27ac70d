package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/google/uuid"
)

// Source is what a Follower subscribes through. *Bus implements it.
type Source interface {
	Subscribe(ctx context.Context, room *uuid.UUID, since int64) ([]models.Message, *Subscription, error)
}

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusLive         Status = "live"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

type FollowerOptions struct {
	Limit int
	// Since is the sequence number the first subscription resumes after.
	Since int64
	// MaxRetries is the number of consecutive failed subscribe attempts before giving up.
	MaxRetries int
	// ResumeFromLast makes reconnects fetch only what came after the last seen seq.
	ResumeFromLast bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	OnChange func(Change)
	OnStatus func(Status, error)
}

// Follower keeps a View of one room current across transport losses and lag.
type Follower struct {
	src  Source
	room *uuid.UUID
	opts FollowerOptions

	mu     sync.Mutex
	view   *View
	status Status
}

func NewFollower(src Source, room *uuid.UUID, opts FollowerOptions) *Follower {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	return &Follower{
		src:    src,
		room:   room,
		opts:   opts,
		view:   NewView(opts.Limit),
		status: StatusConnecting,
	}
}

// Run follows the room until ctx ends (returns nil) or subscribing fails
// MaxRetries times in a row (returns the last error).
func (f *Follower) Run(ctx context.Context) error {
	since := f.opts.Since
	f.setStatus(StatusConnecting, nil)

	for {
		sub, err := f.connect(ctx, since)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.setStatus(StatusDisconnected, err)
			return err
		}
		f.setStatus(StatusLive, nil)

		err = f.consume(ctx, sub)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrClosed) {
			f.setStatus(StatusDisconnected, err)
			return err
		}

		f.setStatus(StatusReconnecting, err)
		since = 0
		if f.opts.ResumeFromLast {
			since = f.LastSeq()
		}
	}
}

func (f *Follower) connect(ctx context.Context, since int64) (*Subscription, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.InitialBackoff
	b.MaxInterval = f.opts.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.opts.MaxRetries-1)), ctx)

	var sub *Subscription
	err := backoff.Retry(func() error {
		backlog, s, err := f.src.Subscribe(ctx, f.room, since)
		if err != nil {
			return err
		}
		sub = s
		f.emit(f.merge(backlog))
		return nil
	}, policy)
	return sub, err
}

// consume applies live events until the subscription ends and reports why.
func (f *Follower) consume(ctx context.Context, sub *Subscription) error {
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return ErrClosed
			}
			f.emit(f.apply(ev))
		}
	}
}

func (f *Follower) merge(backlog []models.Message) Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view.Merge(backlog)
}

func (f *Follower) apply(ev Event) Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view.Apply(ev)
}

func (f *Follower) emit(change Change) {
	if change.Empty() || f.opts.OnChange == nil {
		return
	}
	f.opts.OnChange(change)
}

func (f *Follower) setStatus(status Status, err error) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
	if f.opts.OnStatus != nil {
		f.opts.OnStatus(status, err)
	}
}

func (f *Follower) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Follower) Messages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view.Messages()
}

func (f *Follower) LastSeq() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view.LastSeq()
}
