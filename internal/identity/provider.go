// Package identity authenticates credentials and reports auth state changes.
// It knows nothing about profiles, roles or bans; the session authority
// resolves those after every change.
package identity

import (
	"context"

	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/services"
)

type Event string

const (
	InitialSession Event = "initial_session"
	SignedIn       Event = "signed_in"
	SignedOut      Event = "signed_out"
	TokenRefreshed Event = "token_refreshed"
	UserUpdated    Event = "user_updated"
)

type AuthStateChange struct {
	Event    Event
	Identity models.Identity
}

type Credentials struct {
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,min=8,max=72"`
}

// Metadata seeds the profile created at sign-up.
type Metadata struct {
	DisplayName string `validate:"omitempty,max=100"`
}

// Grant is the result of a successful sign-in, sign-up or refresh.
type Grant struct {
	Identity models.Identity
	Tokens   *services.TokenPair
}

type Handler func(AuthStateChange)

type Subscription interface {
	Unsubscribe()
}

type Provider interface {
	Authenticate(ctx context.Context, creds Credentials) (*Grant, error)
	SignUp(ctx context.Context, creds Credentials, meta Metadata) (*Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)
	// Resume re-announces an identity that still holds a live refresh token,
	// e.g. after a restart, as InitialSession.
	Resume(ctx context.Context, identity models.Identity) error
	ChangePassword(ctx context.Context, identity models.Identity, current, next string) error
	// SignOut emits any SignedOut for the identity before it returns. It may
	// emit one even when it returns an error.
	SignOut(ctx context.Context, identity models.Identity) error
	// OnAuthStateChange registers h. Handlers run synchronously on the
	// goroutine that caused the change and must not block.
	OnAuthStateChange(h Handler) Subscription
}
