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

const maxRoomNameLength = 100

type RoomService struct {
	db   *database.DB
	gate SessionGate
}

func NewRoomService(db *database.DB, gate SessionGate) *RoomService {
	return &RoomService{db: db, gate: gate}
}

// Create is admin only; the role set is read at call time.
func (s *RoomService) Create(ctx context.Context, name string, creator uuid.UUID) (*models.ChatRoom, error) {
	if err := s.gate.RequireAdmin(ctx, creator); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if err := validate.Var(name, fmt.Sprintf("required,max=%d", maxRoomNameLength)); err != nil {
		return nil, apperr.Invalid("room name must be 1-%d characters", maxRoomNameLength)
	}

	var room models.ChatRoom
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO chat_rooms (name, created_by)
		VALUES ($1, $2)
		RETURNING id, name, created_by, created_at
	`, name, creator).Scan(&room.ID, &room.Name, &room.CreatedBy, &room.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return &room, nil
}

func (s *RoomService) List(ctx context.Context, viewer uuid.UUID) ([]models.ChatRoom, error) {
	if err := s.gate.Require(viewer); err != nil {
		return nil, err
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, name, created_by, created_at
		FROM chat_rooms
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []models.ChatRoom{}
	for rows.Next() {
		var room models.ChatRoom
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedBy, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *RoomService) Get(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, name, created_by, created_at
		FROM chat_rooms WHERE id = $1
	`, id).Scan(&room.ID, &room.Name, &room.CreatedBy, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrRoomMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	return &room, nil
}
