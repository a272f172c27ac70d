package handlers

import (
	"github.com/dimitrije/teamfocus-api/internal/identity"
	"github.com/dimitrije/teamfocus-api/internal/middleware"
	"github.com/dimitrije/teamfocus-api/internal/session"
	"github.com/dimitrije/teamfocus-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

type AuthHandler struct {
	authority SessionAuthority
}

func NewAuthHandler(authority SessionAuthority) *AuthHandler {
	return &AuthHandler{authority: authority}
}

// respond writes the session reached by a sign-in. A banned identity gets no
// tokens back; the provider has already signed it out.
func (h *AuthHandler) respond(c *drift.Context, status int, s session.Session, grant *identity.Grant) {
	switch s.State {
	case session.Revoked:
		c.Forbidden("account is banned")
	case session.Unauthenticated:
		c.Unauthorized("account no longer exists")
	default:
		_ = c.JSON(status, authResponse(s, grant))
	}
}

func (h *AuthHandler) SignUp(c *drift.Context) {
	var req dto.SignUpRequest
	if !bind(c, &req) {
		return
	}

	s, grant, err := h.authority.SignUp(c.Request.Context(),
		identity.Credentials{Email: req.Email, Password: req.Password},
		req.InviteCode,
		identity.Metadata{DisplayName: req.DisplayName},
	)
	if err != nil {
		writeError(c, err, "failed to sign up")
		return
	}

	h.respond(c, 201, s, grant)
}

func (h *AuthHandler) Login(c *drift.Context) {
	var req dto.LoginRequest
	if !bind(c, &req) {
		return
	}

	s, grant, err := h.authority.Establish(c.Request.Context(), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(c, err, "failed to sign in")
		return
	}

	h.respond(c, 200, s, grant)
}

func (h *AuthHandler) RefreshToken(c *drift.Context) {
	var req dto.RefreshTokenRequest
	if !bind(c, &req) {
		return
	}

	s, grant, err := h.authority.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err, "failed to refresh session")
		return
	}

	h.respond(c, 200, s, grant)
}

// Logout only needs a valid access token so revoked sessions can still sign out.
func (h *AuthHandler) Logout(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	if err := h.authority.SignOut(c.Request.Context(), userID); err != nil {
		writeError(c, err, "failed to sign out")
		return
	}

	_ = c.JSON(200, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) ChangePassword(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.ChangePasswordRequest
	if !bind(c, &req) {
		return
	}

	if err := h.authority.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, err, "failed to change password")
		return
	}

	_ = c.JSON(200, map[string]string{"message": "password changed"})
}
