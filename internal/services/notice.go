package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/database"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	maxNoticeTitleLength   = 200
	maxNoticeContentLength = 5000
)

const noticeColumns = `n.id, n.user_id, COALESCE(p.display_name, ''), n.title, n.content, n.is_pinned, n.created_at, n.updated_at`

type NoticeService struct {
	db   *database.DB
	gate SessionGate
}

func NewNoticeService(db *database.DB, gate SessionGate) *NoticeService {
	return &NoticeService{db: db, gate: gate}
}

func scanNotice(row rowScanner) (*models.Notice, error) {
	var n models.Notice
	if err := row.Scan(&n.ID, &n.UserID, &n.AuthorName, &n.Title, &n.Content, &n.IsPinned, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// List returns pinned notices first, newest first within each group.
func (s *NoticeService) List(ctx context.Context, viewer uuid.UUID) ([]models.Notice, error) {
	if err := s.gate.Require(viewer); err != nil {
		return nil, err
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+noticeColumns+`
		FROM notices n LEFT JOIN profiles p ON p.user_id = n.user_id
		ORDER BY n.is_pinned DESC, n.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notices: %w", err)
	}
	defer rows.Close()

	notices := []models.Notice{}
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		notices = append(notices, *n)
	}
	return notices, rows.Err()
}

func (s *NoticeService) Create(ctx context.Context, author uuid.UUID, title, content string, pinned bool) (*models.Notice, error) {
	if err := s.gate.RequireAdmin(ctx, author); err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if err := validate.Var(title, fmt.Sprintf("required,max=%d", maxNoticeTitleLength)); err != nil {
		return nil, apperr.Invalid("title must be 1-%d characters", maxNoticeTitleLength)
	}
	if err := validate.Var(content, fmt.Sprintf("required,max=%d", maxNoticeContentLength)); err != nil {
		return nil, apperr.Invalid("content must be 1-%d characters", maxNoticeContentLength)
	}

	n, err := scanNotice(s.db.Pool.QueryRow(ctx, `
		WITH n AS (
			INSERT INTO notices (user_id, title, content, is_pinned)
			VALUES ($1, $2, $3, $4)
			RETURNING id, user_id, title, content, is_pinned, created_at, updated_at
		)
		SELECT `+noticeColumns+`
		FROM n LEFT JOIN profiles p ON p.user_id = n.user_id
	`, author, title, content, pinned))
	if err != nil {
		return nil, fmt.Errorf("failed to create notice: %w", err)
	}
	return n, nil
}

// TogglePin flips the pinned flag and returns the updated notice.
func (s *NoticeService) TogglePin(ctx context.Context, requester, id uuid.UUID) (*models.Notice, error) {
	if err := s.gate.RequireAdmin(ctx, requester); err != nil {
		return nil, err
	}

	n, err := scanNotice(s.db.Pool.QueryRow(ctx, `
		WITH n AS (
			UPDATE notices SET is_pinned = NOT is_pinned, updated_at = NOW()
			WHERE id = $1
			RETURNING id, user_id, title, content, is_pinned, created_at, updated_at
		)
		SELECT `+noticeColumns+`
		FROM n LEFT JOIN profiles p ON p.user_id = n.user_id
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNoticeMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update notice: %w", err)
	}
	return n, nil
}

func (s *NoticeService) Delete(ctx context.Context, requester, id uuid.UUID) error {
	if err := s.gate.RequireAdmin(ctx, requester); err != nil {
		return err
	}

	result, err := s.db.Pool.Exec(ctx, `DELETE FROM notices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notice: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.ErrNoticeMissing
	}
	return nil
}
