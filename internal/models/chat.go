package models

import (
	"time"

	"github.com/google/uuid"
)

// GlobalRoom is the path alias for the implicit room that has no chat_rooms row.
const GlobalRoom = "global"

type ChatRoom struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Message struct {
	ID         uuid.UUID  `json:"id"`
	RoomID     *uuid.UUID `json:"room_id,omitempty"`
	UserID     uuid.UUID  `json:"user_id"`
	AuthorName string     `json:"author_name"`
	Content    string     `json:"content"`
	Seq        int64      `json:"seq"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// RoomKey maps a room reference to the key used by room_sequences and the realtime bus.
// The global room (nil) maps to uuid.Nil.
func RoomKey(room *uuid.UUID) uuid.UUID {
	if room == nil {
		return uuid.Nil
	}
	return *room
}

// RoomRef is the inverse of RoomKey.
func RoomRef(key uuid.UUID) *uuid.UUID {
	if key == uuid.Nil {
		return nil
	}
	k := key
	return &k
}

type Notice struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	AuthorName string    `json:"author_name"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	IsPinned   bool      `json:"is_pinned"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
