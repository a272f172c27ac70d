package services

import (
	"context"
	"fmt"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/database"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AdminService is the moderation surface. Every call re-reads the caller's
// role set, so a demoted admin loses access on the next request.
type AdminService struct {
	db   *database.DB
	gate SessionGate
	log  zerolog.Logger
}

func NewAdminService(db *database.DB, gate SessionGate, log zerolog.Logger) *AdminService {
	return &AdminService{
		db:   db,
		gate: gate,
		log:  log.With().Str("component", "admin").Logger(),
	}
}

func (s *AdminService) ListUsers(ctx context.Context, admin uuid.UUID) ([]models.UserSummary, error) {
	if err := s.gate.RequireAdmin(ctx, admin); err != nil {
		return nil, err
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT u.id, u.email, COALESCE(p.display_name, ''), COALESCE(p.is_banned, FALSE),
		       COALESCE(array_agg(r.role) FILTER (WHERE r.role IS NOT NULL), '{}'), u.created_at
		FROM users u
		LEFT JOIN profiles p ON p.user_id = u.id
		LEFT JOIN user_roles r ON r.user_id = u.id
		GROUP BY u.id, p.display_name, p.is_banned
		ORDER BY u.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []models.UserSummary{}
	for rows.Next() {
		var u models.UserSummary
		var roles []string
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.IsBanned, &roles, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Roles = models.NewRoleSet(roles)
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetBanned flips the ban flag and rechecks the target's session so a ban
// takes effect without waiting for the periodic recheck.
func (s *AdminService) SetBanned(ctx context.Context, admin, target uuid.UUID, banned bool) error {
	if err := s.gate.RequireAdmin(ctx, admin); err != nil {
		return err
	}
	if admin == target {
		return apperr.Invalid("cannot change your own ban status")
	}

	result, err := s.db.Pool.Exec(ctx, `
		UPDATE profiles SET is_banned = $2, updated_at = NOW()
		WHERE user_id = $1
	`, target, banned)
	if err != nil {
		return fmt.Errorf("failed to update ban status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.ErrUserMissing
	}

	s.log.Info().Str("admin", admin.String()).Str("target", target.String()).Bool("banned", banned).Msg("ban status changed")
	s.gate.Recheck(target)
	return nil
}

// DeleteUser removes the identity and everything it owns, then ends its session.
func (s *AdminService) DeleteUser(ctx context.Context, admin, target uuid.UUID) error {
	if err := s.gate.RequireAdmin(ctx, admin); err != nil {
		return err
	}
	if admin == target {
		return apperr.Invalid("cannot delete your own account")
	}

	result, err := s.db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, target)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.ErrUserMissing
	}

	s.log.Info().Str("admin", admin.String()).Str("target", target.String()).Msg("user deleted")
	if err := s.gate.SignOut(ctx, target); err != nil {
		s.log.Warn().Err(err).Str("target", target.String()).Msg("failed to end deleted user's session")
	}
	return nil
}
