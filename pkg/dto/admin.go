package dto

import (
	"time"

	"github.com/google/uuid"
)

type SetBannedRequest struct {
	Banned *bool `json:"banned" validate:"required"`
}

type UserSummaryResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	IsBanned    bool      `json:"is_banned"`
	Roles       []string  `json:"roles"`
	CreatedAt   time.Time `json:"created_at"`
}
