package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/database"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ProfileService struct {
	db *database.DB
}

func NewProfileService(db *database.DB) *ProfileService {
	return &ProfileService{db: db}
}

func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := s.db.Pool.QueryRow(ctx, `
		SELECT user_id, display_name, bio, avatar_url, is_banned, created_at, updated_at
		FROM profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.DisplayName, &p.Bio, &p.AvatarURL, &p.IsBanned, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrUserMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &p, nil
}

// RoleSnapshot reads the role set and the ban flag together.
func (s *ProfileService) RoleSnapshot(ctx context.Context, userID uuid.UUID) (*models.RoleSnapshot, error) {
	var banned bool
	var roles []string
	err := s.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(p.is_banned, FALSE),
		       COALESCE(array_agg(r.role) FILTER (WHERE r.role IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN profiles p ON p.user_id = u.id
		LEFT JOIN user_roles r ON r.user_id = u.id
		WHERE u.id = $1
		GROUP BY p.is_banned
	`, userID).Scan(&banned, &roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrUserMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	return &models.RoleSnapshot{Roles: models.NewRoleSet(roles), Banned: banned}, nil
}

// Update changes the owner-editable fields. Nil leaves a field as it is.
func (s *ProfileService) Update(ctx context.Context, userID uuid.UUID, displayName, bio, avatarURL *string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.Pool.QueryRow(ctx, `
		UPDATE profiles SET
			display_name = COALESCE($2, display_name),
			bio = COALESCE($3, bio),
			avatar_url = COALESCE($4, avatar_url),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id, display_name, bio, avatar_url, is_banned, created_at, updated_at
	`, userID, displayName, bio, avatarURL).Scan(&p.UserID, &p.DisplayName, &p.Bio, &p.AvatarURL, &p.IsBanned, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrUserMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return &p, nil
}
