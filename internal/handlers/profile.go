package handlers

import (
	"github.com/dimitrije/teamfocus-api/internal/middleware"
	"github.com/dimitrije/teamfocus-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

type ProfileHandler struct {
	authority      SessionAuthority
	profileService ProfileServiceInterface
}

func NewProfileHandler(authority SessionAuthority, profileService ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{
		authority:      authority,
		profileService: profileService,
	}
}

// GetSession returns the session resolved by the ActiveSession middleware.
func (h *ProfileHandler) GetSession(c *drift.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		c.Unauthorized("not authenticated")
		return
	}

	_ = c.JSON(200, sessionResponse(s))
}

func (h *ProfileHandler) GetProfile(c *drift.Context) {
	s, ok := middleware.GetSession(c)
	if !ok || s.Profile == nil {
		c.Unauthorized("not authenticated")
		return
	}

	_ = c.JSON(200, profileResponse(s.Profile))
}

func (h *ProfileHandler) UpdateProfile(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.UpdateProfileRequest
	if !bind(c, &req) {
		return
	}

	ctx := c.Request.Context()

	profile, err := h.profileService.Update(ctx, userID, req.DisplayName, req.Bio, req.AvatarURL)
	if err != nil {
		writeError(c, err, "failed to update profile")
		return
	}

	// The edit is already committed; a failed refresh only delays the session copy.
	if s, err := h.authority.RefreshProfile(ctx, userID); err == nil && s.Profile != nil {
		profile = s.Profile
	}

	_ = c.JSON(200, profileResponse(profile))
}
