package dto

import (
	"time"

	"github.com/google/uuid"
)

// UpdateProfileRequest leaves fields that are absent untouched.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" validate:"omitnil,min=1,max=100"`
	Bio         *string `json:"bio,omitempty" validate:"omitnil,max=500"`
	AvatarURL   *string `json:"avatar_url,omitempty" validate:"omitnil,url,max=2048"`
}

type ProfileResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	IsBanned    bool      `json:"is_banned"`
	UpdatedAt   time.Time `json:"updated_at"`
}
