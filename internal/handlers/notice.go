package handlers

import (
	"github.com/dimitrije/teamfocus-api/internal/middleware"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/samber/lo"
)

type NoticeHandler struct {
	noticeService NoticeServiceInterface
}

func NewNoticeHandler(noticeService NoticeServiceInterface) *NoticeHandler {
	return &NoticeHandler{noticeService: noticeService}
}

func (h *NoticeHandler) List(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	notices, err := h.noticeService.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to list notices")
		return
	}

	_ = c.JSON(200, lo.Map(notices, func(n models.Notice, _ int) dto.NoticeResponse {
		return noticeResponse(n)
	}))
}

func (h *NoticeHandler) Create(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.CreateNoticeRequest
	if !bind(c, &req) {
		return
	}

	notice, err := h.noticeService.Create(c.Request.Context(), userID, req.Title, req.Content, req.IsPinned)
	if err != nil {
		writeError(c, err, "failed to create notice")
		return
	}

	_ = c.JSON(201, noticeResponse(*notice))
}

func (h *NoticeHandler) TogglePin(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	noticeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid notice id")
		return
	}

	notice, err := h.noticeService.TogglePin(c.Request.Context(), userID, noticeID)
	if err != nil {
		writeError(c, err, "failed to update notice")
		return
	}

	_ = c.JSON(200, noticeResponse(*notice))
}

func (h *NoticeHandler) Delete(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	noticeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid notice id")
		return
	}

	if err := h.noticeService.Delete(c.Request.Context(), userID, noticeID); err != nil {
		writeError(c, err, "failed to delete notice")
		return
	}

	_ = c.JSON(200, map[string]string{"message": "notice deleted"})
}
