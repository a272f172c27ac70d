// Package session owns the authoritative view of every identity's session:
// who is signed in, with which profile and roles, and whether they are banned.
package session

import (
	"time"

	"github.com/dimitrije/teamfocus-api/internal/models"
)

type State string

const (
	Unauthenticated State = "unauthenticated"
	Pending         State = "pending"
	Active          State = "active"
	Revoked         State = "revoked"
)

// Session is a snapshot. Profile and Roles are set only while Active; Err is
// set only while Pending after a failed fetch.
type Session struct {
	Identity  models.Identity
	State     State
	Profile   *models.Profile
	Roles     models.RoleSet
	Err       error
	UpdatedAt time.Time
}

func (s Session) IsAdmin() bool {
	return s.State == Active && s.Roles.IsAdmin()
}
