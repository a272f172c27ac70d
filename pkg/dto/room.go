package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateRoomRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type RoomResponse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type PostMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type MessageResponse struct {
	ID         uuid.UUID  `json:"id"`
	RoomID     *uuid.UUID `json:"room_id,omitempty"`
	UserID     uuid.UUID  `json:"user_id"`
	AuthorName string     `json:"author_name"`
	Content    string     `json:"content"`
	Seq        int64      `json:"seq"`
	CreatedAt  time.Time  `json:"created_at"`
	Deleted    bool       `json:"deleted"`
}

type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
	LastSeq  int64             `json:"last_seq"`
}

// RemovedEvent tells a stream client to drop messages from its window.
type RemovedEvent struct {
	IDs []uuid.UUID `json:"ids"`
}

type StreamStatusEvent struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
