package handlers

import (
	"context"

	"github.com/dimitrije/teamfocus-api/internal/identity"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/session"
	"github.com/google/uuid"
)

// SessionAuthority defines the methods used by handlers from session.Authority
type SessionAuthority interface {
	Establish(ctx context.Context, creds identity.Credentials) (session.Session, *identity.Grant, error)
	SignUp(ctx context.Context, creds identity.Credentials, inviteCode string, meta identity.Metadata) (session.Session, *identity.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (session.Session, *identity.Grant, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
	SignOut(ctx context.Context, userID uuid.UUID) error
	RefreshProfile(ctx context.Context, userID uuid.UUID) (session.Session, error)
	Watch(ctx context.Context, userID uuid.UUID) <-chan session.Session
}

// ProfileServiceInterface defines the methods used by handlers from ProfileService
type ProfileServiceInterface interface {
	Update(ctx context.Context, userID uuid.UUID, displayName, bio, avatarURL *string) (*models.Profile, error)
}

// RoomServiceInterface defines the methods used by handlers from RoomService
type RoomServiceInterface interface {
	Create(ctx context.Context, name string, creator uuid.UUID) (*models.ChatRoom, error)
	List(ctx context.Context, viewer uuid.UUID) ([]models.ChatRoom, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error)
}

// MessageServiceInterface defines the methods used by handlers from MessageService
type MessageServiceInterface interface {
	Insert(ctx context.Context, author uuid.UUID, room *uuid.UUID, content string) (*models.Message, error)
	Delete(ctx context.Context, id, requester uuid.UUID) (*models.Message, error)
	Backlog(ctx context.Context, room *uuid.UUID, since int64, limit int) ([]models.Message, error)
}

// NoticeServiceInterface defines the methods used by handlers from NoticeService
type NoticeServiceInterface interface {
	List(ctx context.Context, viewer uuid.UUID) ([]models.Notice, error)
	Create(ctx context.Context, author uuid.UUID, title, content string, pinned bool) (*models.Notice, error)
	TogglePin(ctx context.Context, requester, id uuid.UUID) (*models.Notice, error)
	Delete(ctx context.Context, requester, id uuid.UUID) error
}

// AdminServiceInterface defines the methods used by handlers from AdminService
type AdminServiceInterface interface {
	ListUsers(ctx context.Context, admin uuid.UUID) ([]models.UserSummary, error)
	SetBanned(ctx context.Context, admin, target uuid.UUID, banned bool) error
	DeleteUser(ctx context.Context, admin, target uuid.UUID) error
}
