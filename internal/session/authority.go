package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/identity"
	"github.com/dimitrije/teamfocus-api/internal/metrics"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/services"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var _ services.SessionGate = (*Authority)(nil)

// ProfileReader is the read side the authority resolves sessions from.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	RoleSnapshot(ctx context.Context, userID uuid.UUID) (*models.RoleSnapshot, error)
}

type Options struct {
	InviteCode      string
	RecheckInterval time.Duration
	FetchTimeout    time.Duration
}

// Authority resolves sessions from identity provider events. Work for one
// identity runs in FIFO order on its own lane, so cycles for the same
// identity never overlap while different identities resolve in parallel.
type Authority struct {
	provider identity.Provider
	profiles ProfileReader
	opts     Options
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sub    identity.Subscription

	mu        sync.Mutex
	entries   map[uuid.UUID]*entry
	nextWatch uint64
}

type jobKind int

const (
	jobCycle jobKind = iota
	jobProfile
	jobSignedOut
	jobBarrier
)

type job struct {
	kind    jobKind
	recheck bool
	// forced marks a SignedOut caused by a revocation.
	forced bool
	done   chan Session
}

type entry struct {
	identity      models.Identity
	session       Session
	queue         []job
	running       bool
	recheckQueued bool
	// signingOut is set while a revocation's provider sign-out runs. The
	// SignedOut events it emits must not move the session out of Revoked.
	signingOut bool
	watchers      map[uint64]chan Session
}

func NewAuthority(provider identity.Provider, profiles ProfileReader, log zerolog.Logger, opts Options) *Authority {
	if opts.RecheckInterval <= 0 {
		opts.RecheckInterval = 30 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Authority{
		provider: provider,
		profiles: profiles,
		opts:     opts,
		log:      log.With().Str("component", "session").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[uuid.UUID]*entry),
	}
	a.sub = provider.OnAuthStateChange(a.Observe)
	return a
}

func (a *Authority) Close() {
	a.sub.Unsubscribe()
	a.cancel()
}

// Observe feeds one provider auth state change into the identity's lane.
func (a *Authority) Observe(change identity.AuthStateChange) {
	j := job{kind: jobCycle}
	if change.Event == identity.SignedOut {
		j.kind = jobSignedOut
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entryLocked(change.Identity)
	j.forced = j.kind == jobSignedOut && e.signingOut
	a.pushLocked(e, j)
}

func (a *Authority) entryLocked(ident models.Identity) *entry {
	e, ok := a.entries[ident.ID]
	if !ok {
		e = &entry{
			identity: ident,
			session:  Session{Identity: ident, State: Unauthenticated},
			watchers: make(map[uint64]chan Session),
		}
		a.entries[ident.ID] = e
	}
	if ident.Email != "" {
		e.identity = ident
	}
	return e
}

func (a *Authority) enqueue(ident models.Identity, j job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entryLocked(ident)
	a.pushLocked(e, j)
}

func (a *Authority) pushLocked(e *entry, j job) {
	e.queue = append(e.queue, j)
	if !e.running {
		e.running = true
		go a.drain(e)
	}
}

func (a *Authority) drain(e *entry) {
	for {
		a.mu.Lock()
		if len(e.queue) == 0 || a.ctx.Err() != nil {
			e.running = false
			if e.session.State == Unauthenticated && len(e.watchers) == 0 && len(e.queue) == 0 {
				if current, ok := a.entries[e.identity.ID]; ok && current == e {
					delete(a.entries, e.identity.ID)
				}
			}
			a.mu.Unlock()
			return
		}
		j := e.queue[0]
		e.queue = e.queue[1:]
		if j.recheck {
			e.recheckQueued = false
		}
		a.mu.Unlock()

		switch j.kind {
		case jobCycle:
			a.cycle(e)
		case jobProfile:
			a.refreshProfile(e)
		case jobSignedOut:
			a.signedOut(e, j.forced)
		}

		if j.done != nil {
			j.done <- a.snapshot(e)
		}
	}
}

func (a *Authority) snapshot(e *entry) Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return e.session
}

func (a *Authority) transition(e *entry, s Session) {
	s.UpdatedAt = time.Now()

	a.mu.Lock()
	prev := e.session.State
	e.session = s
	for _, w := range e.watchers {
		offerLatest(w, s)
	}
	a.mu.Unlock()

	if prev != s.State {
		metrics.SessionTransitions.WithLabelValues(string(s.State)).Inc()
		a.log.Debug().
			Str("user_id", s.Identity.ID.String()).
			Str("from", string(prev)).
			Str("to", string(s.State)).
			Msg("session transition")
	}
}

// offerLatest replaces whatever the watcher has not read yet.
func offerLatest(ch chan Session, s Session) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// cycle fetches the profile and the role snapshot together and decides the
// session. An Active session stays Active while it is being rechecked. A
// Revoked session passes through Unauthenticated before it is Pending again.
func (a *Authority) cycle(e *entry) {
	a.mu.Lock()
	ident := e.identity
	prev := e.session.State
	a.mu.Unlock()

	if prev == Revoked {
		a.transition(e, Session{Identity: ident, State: Unauthenticated})
	}
	if prev != Active {
		a.transition(e, Session{Identity: ident, State: Pending})
	}

	ctx, cancel := context.WithTimeout(a.ctx, a.opts.FetchTimeout)
	defer cancel()

	var profile *models.Profile
	var snap *models.RoleSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = a.profiles.GetProfile(gctx, ident.ID)
		return err
	})
	g.Go(func() error {
		var err error
		snap, err = a.profiles.RoleSnapshot(gctx, ident.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		a.fetchFailed(e, ident, err)
		return
	}

	if profile.IsBanned || snap.Banned {
		a.revoke(e, ident)
		return
	}

	a.transition(e, Session{Identity: ident, State: Active, Profile: profile, Roles: snap.Roles})
}

func (a *Authority) fetchFailed(e *entry, ident models.Identity, err error) {
	if apperr.IsNotFound(err) {
		a.log.Info().Str("user_id", ident.ID.String()).Msg("identity no longer exists")
		a.transition(e, Session{Identity: ident, State: Unauthenticated})
		return
	}
	a.log.Warn().Err(err).Str("user_id", ident.ID.String()).Msg("session fetch failed")
	a.transition(e, Session{Identity: ident, State: Pending, Err: apperr.Network(err)})
}

// revoke relies on the provider emitting SignedOut before SignOut returns, so
// only events observed during the call are treated as forced.
func (a *Authority) revoke(e *entry, ident models.Identity) {
	a.transition(e, Session{Identity: ident, State: Revoked})
	a.log.Info().Str("user_id", ident.ID.String()).Msg("session revoked: identity is banned")

	a.mu.Lock()
	e.signingOut = true
	a.mu.Unlock()

	err := a.provider.SignOut(a.ctx, ident)

	a.mu.Lock()
	e.signingOut = false
	a.mu.Unlock()

	if err != nil {
		a.log.Warn().Err(err).Str("user_id", ident.ID.String()).Msg("forced sign-out failed")
	}
}

func (a *Authority) refreshProfile(e *entry) {
	a.mu.Lock()
	current := e.session
	ident := e.identity
	a.mu.Unlock()

	if current.State != Active {
		return
	}

	ctx, cancel := context.WithTimeout(a.ctx, a.opts.FetchTimeout)
	defer cancel()

	profile, err := a.profiles.GetProfile(ctx, ident.ID)
	if err != nil {
		a.fetchFailed(e, ident, err)
		return
	}
	if profile.IsBanned {
		a.revoke(e, ident)
		return
	}

	current.Profile = profile
	a.transition(e, current)
}

func (a *Authority) signedOut(e *entry, forced bool) {
	if forced {
		return
	}
	a.mu.Lock()
	ident := e.identity
	a.mu.Unlock()
	a.transition(e, Session{Identity: ident, State: Unauthenticated})
}

// await waits until everything queued for the identity so far has run.
func (a *Authority) await(ctx context.Context, ident models.Identity) (Session, error) {
	return a.awaitJob(ctx, ident, job{kind: jobBarrier})
}

func (a *Authority) awaitJob(ctx context.Context, ident models.Identity, j job) (Session, error) {
	j.done = make(chan Session, 1)
	a.enqueue(ident, j)
	select {
	case s := <-j.done:
		return s, nil
	case <-ctx.Done():
		return a.Current(ident.ID), ctx.Err()
	case <-a.ctx.Done():
		return a.Current(ident.ID), errors.New("session: authority closed")
	}
}

// Establish signs in with credentials and returns the resolved session.
func (a *Authority) Establish(ctx context.Context, creds identity.Credentials) (Session, *identity.Grant, error) {
	grant, err := a.provider.Authenticate(ctx, creds)
	if err != nil {
		return Session{State: Unauthenticated}, nil, err
	}
	s, err := a.await(ctx, grant.Identity)
	return s, grant, err
}

// SignUp checks the invite code before the provider is involved.
func (a *Authority) SignUp(ctx context.Context, creds identity.Credentials, inviteCode string, meta identity.Metadata) (Session, *identity.Grant, error) {
	if subtle.ConstantTimeCompare([]byte(inviteCode), []byte(a.opts.InviteCode)) != 1 {
		return Session{State: Unauthenticated}, nil, apperr.ErrInvalidInvite
	}
	grant, err := a.provider.SignUp(ctx, creds, meta)
	if err != nil {
		return Session{State: Unauthenticated}, nil, err
	}
	s, err := a.await(ctx, grant.Identity)
	return s, grant, err
}

func (a *Authority) Refresh(ctx context.Context, refreshToken string) (Session, *identity.Grant, error) {
	grant, err := a.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return Session{State: Unauthenticated}, nil, err
	}
	s, err := a.await(ctx, grant.Identity)
	return s, grant, err
}

func (a *Authority) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if err := a.Require(userID); err != nil {
		return err
	}
	ident := a.Current(userID).Identity
	if err := a.provider.ChangePassword(ctx, ident, current, next); err != nil {
		return err
	}
	_, err := a.await(ctx, ident)
	return err
}

// SignOut ends the identity's session at the provider and waits for the
// resulting transition.
func (a *Authority) SignOut(ctx context.Context, userID uuid.UUID) error {
	ident := a.Current(userID).Identity
	err := a.provider.SignOut(ctx, ident)
	if _, werr := a.await(ctx, ident); werr != nil && err == nil {
		err = werr
	}
	return err
}

// RefreshProfile re-reads only the profile of an Active session.
func (a *Authority) RefreshProfile(ctx context.Context, userID uuid.UUID) (Session, error) {
	return a.awaitJob(ctx, models.Identity{ID: userID}, job{kind: jobProfile})
}

// Recheck queues a full cycle for a signed-in identity. Revoked and
// unauthenticated sessions are left alone: they need a new sign-in.
func (a *Authority) Recheck(userID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[userID]
	if !ok || e.recheckQueued {
		return
	}
	if e.session.State != Active && e.session.State != Pending {
		return
	}
	e.recheckQueued = true
	a.pushLocked(e, job{kind: jobCycle, recheck: true})
}

// Run rechecks every Active and Pending session each interval until ctx is done.
func (a *Authority) Run(ctx context.Context) {
	ticker := time.NewTicker(a.opts.RecheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			for _, id := range a.live() {
				a.Recheck(id)
			}
		}
	}
}

func (a *Authority) live() []uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(a.entries))
	for id, e := range a.entries {
		if e.session.State == Active || e.session.State == Pending {
			ids = append(ids, id)
		}
	}
	return ids
}

func (a *Authority) Current(userID uuid.UUID) Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[userID]; ok {
		return e.session
	}
	return Session{Identity: models.Identity{ID: userID}, State: Unauthenticated}
}

// Resolve returns the session behind a validated access token. An identity
// the authority does not know yet, e.g. after a restart, is resumed through
// the provider when it still holds a live refresh token.
func (a *Authority) Resolve(ctx context.Context, ident models.Identity) (Session, error) {
	s := a.Current(ident.ID)
	switch s.State {
	case Active, Revoked:
		return s, nil
	case Pending:
		a.Recheck(ident.ID)
		return s, nil
	}

	if err := a.provider.Resume(ctx, ident); err != nil {
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			return s, nil
		}
		return s, err
	}
	return a.await(ctx, ident)
}

func (a *Authority) Require(userID uuid.UUID) error {
	if a.Current(userID).State != Active {
		return apperr.ErrUnauthorized
	}
	return nil
}

// RequireAdmin reads the role set at call time. A ban seen here triggers a
// recheck so the session is revoked without waiting for the next tick.
func (a *Authority) RequireAdmin(ctx context.Context, userID uuid.UUID) error {
	if err := a.Require(userID); err != nil {
		return err
	}
	snap, err := a.profiles.RoleSnapshot(ctx, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.ErrUnauthorized
		}
		return apperr.Network(err)
	}
	if snap.Banned {
		a.Recheck(userID)
		return apperr.ErrUnauthorized
	}
	if !snap.Roles.IsAdmin() {
		return apperr.ErrNotAdmin
	}
	return nil
}

// Watch streams the identity's session, starting with the current one. A
// slow reader only sees the latest state. The channel closes with ctx.
func (a *Authority) Watch(ctx context.Context, userID uuid.UUID) <-chan Session {
	ch := make(chan Session, 1)

	a.mu.Lock()
	e := a.entryLocked(models.Identity{ID: userID})
	a.nextWatch++
	id := a.nextWatch
	e.watchers[id] = ch
	ch <- e.session
	a.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-a.ctx.Done():
		}
		a.mu.Lock()
		delete(e.watchers, id)
		close(ch)
		if !e.running && len(e.watchers) == 0 && e.session.State == Unauthenticated {
			if current, ok := a.entries[userID]; ok && current == e {
				delete(a.entries, userID)
			}
		}
		a.mu.Unlock()
	}()
	return ch
}
