package dto

import (
	"github.com/google/uuid"
)

type SignUpRequest struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	InviteCode  string `json:"invite_code" validate:"required"`
	DisplayName string `json:"display_name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthResponse struct {
	TokenResponse
	Session SessionResponse `json:"session"`
}

type SessionResponse struct {
	State   string           `json:"state"`
	UserID  uuid.UUID        `json:"user_id"`
	Email   string           `json:"email,omitempty"`
	Profile *ProfileResponse `json:"profile,omitempty"`
	Roles   []string         `json:"roles"`
	IsAdmin bool             `json:"is_admin"`
}
