package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Platform roles. Every identity holds RoleUser; RoleAdmin is granted out-of-band.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const DefaultDisplayName = "User"

type Identity struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Profile struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	IsBanned    bool      `json:"is_banned"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RoleSet []string

// NewRoleSet normalizes roles read from storage. An identity with no rows reads as {user}.
func NewRoleSet(roles []string) RoleSet {
	set := lo.Uniq(append([]string{RoleUser}, roles...))
	return RoleSet(set)
}

func (r RoleSet) Has(role string) bool {
	return lo.Contains(r, role)
}

func (r RoleSet) IsAdmin() bool {
	return r.Has(RoleAdmin)
}

// RoleSnapshot is the roles and ban flag of one identity read in a single query.
type RoleSnapshot struct {
	Roles  RoleSet
	Banned bool
}

type UserSummary struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	IsBanned    bool      `json:"is_banned"`
	Roles       RoleSet   `json:"roles"`
	CreatedAt   time.Time `json:"created_at"`
}
