package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/identity"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/services"
	"github.com/google/uuid"
)

type fakeAccount struct {
	identity models.Identity
	password string
	live     bool
}

// fakeProvider emits the same events as LocalProvider without a database.
type fakeProvider struct {
	profiles *fakeProfiles

	mu       sync.Mutex
	accounts map[string]*fakeAccount
	handlers map[int]identity.Handler
	nextID   int
	signUps  int
	signOuts int
	// signOutErr makes SignOut fail. It still emits SignedOut when
	// signOutEmits is set, the way LocalProvider does.
	signOutErr   error
	signOutEmits bool
}

func newFakeProvider(profiles *fakeProfiles) *fakeProvider {
	return &fakeProvider{
		profiles: profiles,
		accounts: make(map[string]*fakeAccount),
		handlers: make(map[int]identity.Handler),
	}
}

type fakeSub func()

func (f fakeSub) Unsubscribe() { f() }

func (p *fakeProvider) OnAuthStateChange(h identity.Handler) identity.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.handlers[id] = h
	return fakeSub(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	})
}

func (p *fakeProvider) emit(event identity.Event, ident models.Identity) {
	p.mu.Lock()
	handlers := make([]identity.Handler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()
	for _, h := range handlers {
		h(identity.AuthStateChange{Event: event, Identity: ident})
	}
}

func (p *fakeProvider) grant(ident models.Identity) *identity.Grant {
	return &identity.Grant{Identity: ident, Tokens: &services.TokenPair{
		AccessToken:  "access-" + ident.ID.String(),
		RefreshToken: "refresh-" + ident.ID.String(),
	}}
}

func (p *fakeProvider) Authenticate(_ context.Context, creds identity.Credentials) (*identity.Grant, error) {
	p.mu.Lock()
	acct, ok := p.accounts[creds.Email]
	if !ok || acct.password != creds.Password {
		p.mu.Unlock()
		return nil, apperr.ErrInvalidCredentials
	}
	acct.live = true
	ident := acct.identity
	p.mu.Unlock()

	p.emit(identity.SignedIn, ident)
	return p.grant(ident), nil
}

func (p *fakeProvider) SignUp(_ context.Context, creds identity.Credentials, meta identity.Metadata) (*identity.Grant, error) {
	ident := p.register(creds.Email, creds.Password, meta.DisplayName)
	p.mu.Lock()
	p.signUps++
	p.accounts[creds.Email].live = true
	p.mu.Unlock()

	p.emit(identity.SignedIn, ident)
	return p.grant(ident), nil
}

// register creates an account and its profile without signing in.
func (p *fakeProvider) register(email, password, displayName string) models.Identity {
	ident := models.Identity{ID: uuid.New(), Email: email}
	if displayName == "" {
		displayName = models.DefaultDisplayName
	}
	p.profiles.create(ident.ID, displayName)

	p.mu.Lock()
	p.accounts[email] = &fakeAccount{identity: ident, password: password}
	p.mu.Unlock()
	return ident
}

func (p *fakeProvider) account(id uuid.UUID) *fakeAccount {
	for _, acct := range p.accounts {
		if acct.identity.ID == id {
			return acct
		}
	}
	return nil
}

func (p *fakeProvider) Refresh(_ context.Context, token string) (*identity.Grant, error) {
	p.mu.Lock()
	var ident models.Identity
	found := false
	for _, acct := range p.accounts {
		if acct.live && "refresh-"+acct.identity.ID.String() == token {
			ident, found = acct.identity, true
		}
	}
	p.mu.Unlock()
	if !found {
		return nil, apperr.ErrInvalidCredentials
	}
	p.emit(identity.TokenRefreshed, ident)
	return p.grant(ident), nil
}

func (p *fakeProvider) Resume(_ context.Context, ident models.Identity) error {
	p.mu.Lock()
	acct := p.account(ident.ID)
	live := acct != nil && acct.live
	p.mu.Unlock()
	if !live {
		return apperr.ErrInvalidCredentials
	}
	p.emit(identity.InitialSession, ident)
	return nil
}

func (p *fakeProvider) ChangePassword(_ context.Context, ident models.Identity, current, next string) error {
	p.mu.Lock()
	acct := p.account(ident.ID)
	if acct == nil || acct.password != current {
		p.mu.Unlock()
		return apperr.ErrInvalidCredentials
	}
	acct.password = next
	p.mu.Unlock()
	p.emit(identity.UserUpdated, ident)
	return nil
}

func (p *fakeProvider) SignOut(_ context.Context, ident models.Identity) error {
	p.mu.Lock()
	p.signOuts++
	if err := p.signOutErr; err != nil {
		emits := p.signOutEmits
		p.mu.Unlock()
		if emits {
			p.emit(identity.SignedOut, ident)
		}
		return err
	}
	if acct := p.account(ident.ID); acct != nil {
		acct.live = false
	}
	p.mu.Unlock()
	p.emit(identity.SignedOut, ident)
	return nil
}

func (p *fakeProvider) signOutCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

func (p *fakeProvider) failSignOut(err error, emits bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOutErr = err
	p.signOutEmits = emits
}

type fakeRecord struct {
	profile models.Profile
	roles   []string
}

// fakeProfiles backs ProfileReader with in-memory rows. fail makes every read
// error; hold blocks GetProfile for one identity until released.
type fakeProfiles struct {
	mu       sync.Mutex
	records  map[uuid.UUID]*fakeRecord
	fail     error
	hold     map[uuid.UUID]chan struct{}
	started  chan uuid.UUID
	inFlight map[uuid.UUID]int
	overlap  bool
	reads    int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		records:  make(map[uuid.UUID]*fakeRecord),
		hold:     make(map[uuid.UUID]chan struct{}),
		inFlight: make(map[uuid.UUID]int),
	}
}

func (f *fakeProfiles) create(id uuid.UUID, displayName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id] = &fakeRecord{
		profile: models.Profile{UserID: id, DisplayName: displayName},
		roles:   []string{models.RoleUser},
	}
}

func (f *fakeProfiles) setBanned(id uuid.UUID, banned bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id].profile.IsBanned = banned
}

func (f *fakeProfiles) setRoles(id uuid.UUID, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id].roles = roles
}

func (f *fakeProfiles) setDisplayName(id uuid.UUID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id].profile.DisplayName = name
}

func (f *fakeProfiles) remove(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
}

func (f *fakeProfiles) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeProfiles) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	f.mu.Lock()
	f.reads++
	f.inFlight[id]++
	if f.inFlight[id] > 1 {
		f.overlap = true
	}
	hold := f.hold[id]
	started := f.started
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight[id]--
		f.mu.Unlock()
	}()

	if started != nil {
		started <- id
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, apperr.ErrUserMissing
	}
	p := rec.profile
	return &p, nil
}

func (f *fakeProfiles) RoleSnapshot(_ context.Context, id uuid.UUID) (*models.RoleSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, apperr.ErrUserMissing
	}
	return &models.RoleSnapshot{Roles: models.NewRoleSet(rec.roles), Banned: rec.profile.IsBanned}, nil
}

func (f *fakeProfiles) overlapped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}

var errStoreDown = errors.New("dial tcp: connection refused")

// syncBuffer collects log lines written from several lanes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// transitions lists the logged session transitions for one identity as
// "from->to".
func (b *syncBuffer) transitions(id uuid.UUID) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	dec := json.NewDecoder(bytes.NewReader(b.buf.Bytes()))
	for dec.More() {
		var line struct {
			Message string `json:"message"`
			UserID  string `json:"user_id"`
			From    string `json:"from"`
			To      string `json:"to"`
		}
		if err := dec.Decode(&line); err != nil {
			break
		}
		if line.Message == "session transition" && line.UserID == id.String() {
			out = append(out, line.From+"->"+line.To)
		}
	}
	return out
}
