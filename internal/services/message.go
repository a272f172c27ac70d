package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/dimitrije/teamfocus-api/internal/database"
	"github.com/dimitrije/teamfocus-api/internal/metrics"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/realtime"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const messageColumns = `m.id, m.room_id, m.user_id, COALESCE(p.display_name, ''), m.content, m.seq, m.created_at, m.deleted_at`

// MessageService is the append-only message log. Sequence numbers are
// allocated per room inside the insert transaction and never reused; deletes
// only tombstone.
type MessageService struct {
	db        *database.DB
	gate      SessionGate
	bus       Realtime
	log       zerolog.Logger
	maxLength int
}

func NewMessageService(db *database.DB, gate SessionGate, bus Realtime, log zerolog.Logger, maxLength int) *MessageService {
	return &MessageService{
		db:        db,
		gate:      gate,
		bus:       bus,
		log:       log.With().Str("component", "messages").Logger(),
		maxLength: maxLength,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	if err := row.Scan(&m.ID, &m.RoomID, &m.UserID, &m.AuthorName, &m.Content, &m.Seq, &m.CreatedAt, &m.DeletedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// Insert appends a message to room (nil is the global room) and publishes it
// once committed. The publish runs on the room's writer, so live delivery
// follows seq order. Nothing is published for a failed insert.
func (s *MessageService) Insert(ctx context.Context, author uuid.UUID, room *uuid.UUID, content string) (*models.Message, error) {
	if err := s.gate.Require(author); err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if err := validate.Var(content, fmt.Sprintf("required,max=%d", s.maxLength)); err != nil {
		return nil, apperr.Invalid("message must be 1-%d characters", s.maxLength)
	}

	var msg *models.Message
	err := s.bus.Serialize(ctx, room, func(ctx context.Context) error {
		var err error
		msg, err = s.insert(ctx, author, room, content)
		if err != nil {
			return err
		}
		s.publish(ctx, realtime.MessageNotified(msg))
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesInserted.Inc()
	return msg, nil
}

func (s *MessageService) insert(ctx context.Context, author uuid.UUID, room *uuid.UUID, content string) (*models.Message, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if room != nil {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM chat_rooms WHERE id = $1)`, *room).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check room: %w", err)
		}
		if !exists {
			return nil, apperr.ErrRoomMissing
		}
	}

	// The row lock on room_sequences serializes writers across processes.
	// last_at keeps created_at from going backwards as seq grows.
	var seq int64
	var at time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO room_sequences (room_key, last_seq, last_at)
		VALUES ($1, 1, clock_timestamp())
		ON CONFLICT (room_key) DO UPDATE SET
			last_seq = room_sequences.last_seq + 1,
			last_at = GREATEST(clock_timestamp(), room_sequences.last_at)
		RETURNING last_seq, last_at
	`, models.RoomKey(room)).Scan(&seq, &at)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	msg, err := scanMessage(tx.QueryRow(ctx, `
		WITH m AS (
			INSERT INTO messages (room_id, user_id, content, seq, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, room_id, user_id, content, seq, created_at, deleted_at
		)
		SELECT `+messageColumns+`
		FROM m LEFT JOIN profiles p ON p.user_id = m.user_id
	`, room, author, content, seq, at))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return msg, nil
}

// Delete tombstones a message: content is blanked, deleted_at set, seq kept.
// Only the author or an admin may delete. Deleting a tombstone is a no-op.
func (s *MessageService) Delete(ctx context.Context, id, requester uuid.UUID) (*models.Message, error) {
	if err := s.gate.Require(requester); err != nil {
		return nil, err
	}

	msg, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.UserID != requester {
		if err := s.gate.RequireAdmin(ctx, requester); err != nil {
			return nil, err
		}
	}
	if msg.IsDeleted() {
		return msg, nil
	}

	err = s.bus.Serialize(ctx, msg.RoomID, func(ctx context.Context) error {
		err := s.db.Pool.QueryRow(ctx, `
			UPDATE messages SET content = '', deleted_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL
			RETURNING deleted_at
		`, id).Scan(&msg.DeletedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}
		msg.Content = ""
		s.publish(ctx, realtime.TombstoneNotified(msg))
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg.Content = ""
	return msg, nil
}

func (s *MessageService) publish(ctx context.Context, n realtime.Notified) {
	// The row is committed; subscribers that miss this recover it from the backlog.
	if err := s.bus.Publish(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("message_id", n.ID.String()).Str("kind", string(n.Kind)).Msg("publish failed")
	}
}

// GetByID returns the row with its author's display name, tombstoned or not.
func (s *MessageService) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	msg, err := scanMessage(s.db.Pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m LEFT JOIN profiles p ON p.user_id = m.user_id
		WHERE m.id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrMessageMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return msg, nil
}

// Backlog returns the most recent limit messages of room with seq > since,
// ascending. Tombstones are included so readers can drop ids they already hold.
func (s *MessageService) Backlog(ctx context.Context, room *uuid.UUID, since int64, limit int) ([]models.Message, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m LEFT JOIN profiles p ON p.user_id = m.user_id
		WHERE COALESCE(m.room_id, '00000000-0000-0000-0000-000000000000'::uuid) = $1 AND m.seq > $2
		ORDER BY m.seq DESC
		LIMIT $3
	`, models.RoomKey(room), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load backlog: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}
