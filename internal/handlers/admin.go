package handlers

import (
	"github.com/dimitrije/teamfocus-api/internal/middleware"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/samber/lo"
)

type AdminHandler struct {
	adminService AdminServiceInterface
}

func NewAdminHandler(adminService AdminServiceInterface) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func (h *AdminHandler) ListUsers(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	users, err := h.adminService.ListUsers(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to list users")
		return
	}

	_ = c.JSON(200, lo.Map(users, func(u models.UserSummary, _ int) dto.UserSummaryResponse {
		return userSummaryResponse(u)
	}))
}

func (h *AdminHandler) SetBanned(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.BadRequest("invalid user id")
		return
	}

	var req dto.SetBannedRequest
	if !bind(c, &req) {
		return
	}

	if err := h.adminService.SetBanned(c.Request.Context(), userID, targetID, *req.Banned); err != nil {
		writeError(c, err, "failed to update user")
		return
	}

	_ = c.JSON(200, map[string]any{"user_id": targetID, "banned": *req.Banned})
}

func (h *AdminHandler) DeleteUser(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.BadRequest("invalid user id")
		return
	}

	if err := h.adminService.DeleteUser(c.Request.Context(), userID, targetID); err != nil {
		writeError(c, err, "failed to delete user")
		return
	}

	_ = c.JSON(200, map[string]string{"message": "user deleted"})
}
