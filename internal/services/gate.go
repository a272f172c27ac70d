package services

import (
	"context"

	"github.com/dimitrije/teamfocus-api/internal/realtime"
	"github.com/google/uuid"
)

// SessionGate is the authorization side of the session authority.
type SessionGate interface {
	// Require fails with AuthzError{Unauthorized} unless the identity's session is Active.
	Require(userID uuid.UUID) error
	// RequireAdmin reads the role set fresh and fails with AuthzError{NotAdmin} when admin is absent.
	RequireAdmin(ctx context.Context, userID uuid.UUID) error
	// Recheck schedules a full session cycle for the identity.
	Recheck(userID uuid.UUID)
	// SignOut ends the identity's session and revokes it at the provider.
	SignOut(ctx context.Context, userID uuid.UUID) error
}

// Realtime is the part of the event bus the message store writes through.
type Realtime interface {
	Serialize(ctx context.Context, room *uuid.UUID, fn func(ctx context.Context) error) error
	Publish(ctx context.Context, n realtime.Notified) error
}
