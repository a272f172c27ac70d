package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/database"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

// LocalProvider keeps identities in the users table with bcrypt password
// hashes and issues JWT pairs whose refresh half is stored hashed.
type LocalProvider struct {
	db     *database.DB
	jwt    *services.JWTService
	tokens *services.TokenService
	cost   int
	log    zerolog.Logger

	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]Handler
}

func NewLocalProvider(db *database.DB, jwt *services.JWTService, tokens *services.TokenService, log zerolog.Logger) *LocalProvider {
	return &LocalProvider{
		db:       db,
		jwt:      jwt,
		tokens:   tokens,
		cost:     bcrypt.DefaultCost,
		log:      log.With().Str("component", "identity").Logger(),
		handlers: make(map[uint64]Handler),
	}
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

func (p *LocalProvider) OnAuthStateChange(h Handler) Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.handlers[id] = h
	return &subscription{cancel: func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}}
}

func (p *LocalProvider) emit(event Event, identity models.Identity) {
	p.mu.RLock()
	handlers := make([]Handler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.RUnlock()

	change := AuthStateChange{Event: event, Identity: identity}
	for _, h := range handlers {
		h(change)
	}
	p.log.Debug().Str("event", string(event)).Str("user_id", identity.ID.String()).Msg("auth state change")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *LocalProvider) Authenticate(ctx context.Context, creds Credentials) (*Grant, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := validate.Struct(creds); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}

	var identity models.Identity
	var hash string
	err := p.db.Pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users WHERE email = $1
	`, creds.Email).Scan(&identity.ID, &identity.Email, &hash, &identity.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Network(fmt.Errorf("failed to load identity: %w", err))
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)) != nil {
		return nil, apperr.ErrInvalidCredentials
	}

	grant, err := p.issue(ctx, identity)
	if err != nil {
		return nil, err
	}
	p.emit(SignedIn, identity)
	return grant, nil
}

// SignUp creates the identity with its profile and the base role in one
// transaction. An empty display name falls back to the default.
func (p *LocalProvider) SignUp(ctx context.Context, creds Credentials, meta Metadata) (*Grant, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := validate.Struct(creds); err != nil {
		return nil, apperr.Invalid("a valid email and a password of 8-72 characters are required")
	}
	meta.DisplayName = strings.TrimSpace(meta.DisplayName)
	if err := validate.Struct(meta); err != nil {
		return nil, apperr.Invalid("display name must be at most 100 characters")
	}
	if meta.DisplayName == "" {
		meta.DisplayName = models.DefaultDisplayName
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := p.db.Pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Network(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	identity := models.Identity{Email: creds.Email}
	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, creds.Email, string(hash)).Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperr.Invalid("email is already registered")
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO profiles (user_id, display_name)
		VALUES ($1, $2)
	`, identity.ID, meta.DisplayName); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role)
		VALUES ($1, $2)
	`, identity.ID, models.RoleUser); err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	grant, err := p.issue(ctx, identity)
	if err != nil {
		return nil, err
	}
	p.emit(SignedIn, identity)
	return grant, nil
}

func (p *LocalProvider) issue(ctx context.Context, identity models.Identity) (*Grant, error) {
	pair, err := p.jwt.GenerateTokenPair(identity)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(p.jwt.RefreshExpiry())
	if err := p.tokens.StoreRefreshToken(ctx, identity.ID, services.HashToken(pair.RefreshToken), expiresAt); err != nil {
		return nil, apperr.Network(err)
	}
	return &Grant{Identity: identity, Tokens: pair}, nil
}

// Refresh rotates a refresh token. Each token is accepted once.
func (p *LocalProvider) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	userID, err := p.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperr.ErrInvalidCredentials
	}

	var identity models.Identity
	err = p.db.Pool.QueryRow(ctx, `
		SELECT id, email, created_at FROM users WHERE id = $1
	`, userID).Scan(&identity.ID, &identity.Email, &identity.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Network(fmt.Errorf("failed to load identity: %w", err))
	}

	pair, err := p.jwt.GenerateTokenPair(identity)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(p.jwt.RefreshExpiry())
	err = p.tokens.RotateRefreshToken(ctx, identity.ID, services.HashToken(refreshToken), services.HashToken(pair.RefreshToken), expiresAt)
	if err != nil {
		return nil, apperr.Network(err)
	}

	p.emit(TokenRefreshed, identity)
	return &Grant{Identity: identity, Tokens: pair}, nil
}

func (p *LocalProvider) Resume(ctx context.Context, identity models.Identity) error {
	live, err := p.tokens.HasLiveToken(ctx, identity.ID)
	if err != nil {
		return apperr.Network(err)
	}
	if !live {
		return apperr.ErrInvalidCredentials
	}
	p.emit(InitialSession, identity)
	return nil
}

func (p *LocalProvider) ChangePassword(ctx context.Context, identity models.Identity, current, next string) error {
	if err := validate.Var(next, "required,min=8,max=72"); err != nil {
		return apperr.Invalid("new password must be 8-72 characters")
	}

	var hash string
	err := p.db.Pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, identity.ID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrInvalidCredentials
	}
	if err != nil {
		return apperr.Network(fmt.Errorf("failed to load identity: %w", err))
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)) != nil {
		return apperr.ErrInvalidCredentials
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(next), p.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if _, err := p.db.Pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, identity.ID, string(newHash)); err != nil {
		return apperr.Network(fmt.Errorf("failed to update password: %w", err))
	}

	p.emit(UserUpdated, identity)
	return nil
}

// SignOut revokes every refresh token of the identity. SignedOut is emitted
// even when revocation fails so in-memory sessions still end.
func (p *LocalProvider) SignOut(ctx context.Context, identity models.Identity) error {
	err := p.tokens.RevokeAllUserTokens(ctx, identity.ID)
	p.emit(SignedOut, identity)
	if err != nil {
		return apperr.Network(fmt.Errorf("failed to revoke tokens: %w", err))
	}
	return nil
}
