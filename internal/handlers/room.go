package handlers

import (
	"strconv"

	"github.com/dimitrije/teamfocus-api/internal/middleware"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/samber/lo"
)

type RoomHandler struct {
	roomService    RoomServiceInterface
	messageService MessageServiceInterface
	backlogLimit   int
}

func NewRoomHandler(roomService RoomServiceInterface, messageService MessageServiceInterface, backlogLimit int) *RoomHandler {
	return &RoomHandler{
		roomService:    roomService,
		messageService: messageService,
		backlogLimit:   backlogLimit,
	}
}

// lookupRoom resolves :roomId. "global" is the implicit room and maps to nil;
// any other id must name an existing room. It writes the error response itself.
func lookupRoom(c *drift.Context, rooms RoomServiceInterface) (*uuid.UUID, bool) {
	raw := c.Param("roomId")
	if raw == models.GlobalRoom {
		return nil, true
	}

	roomID, err := uuid.Parse(raw)
	if err != nil {
		c.BadRequest("invalid room id")
		return nil, false
	}

	if _, err := rooms.Get(c.Request.Context(), roomID); err != nil {
		writeError(c, err, "failed to load room")
		return nil, false
	}
	return &roomID, true
}

func (h *RoomHandler) List(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	rooms, err := h.roomService.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to list rooms")
		return
	}

	_ = c.JSON(200, lo.Map(rooms, func(r models.ChatRoom, _ int) dto.RoomResponse {
		return roomResponse(r)
	}))
}

func (h *RoomHandler) Create(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.CreateRoomRequest
	if !bind(c, &req) {
		return
	}

	room, err := h.roomService.Create(c.Request.Context(), req.Name, userID)
	if err != nil {
		writeError(c, err, "failed to create room")
		return
	}

	_ = c.JSON(201, roomResponse(*room))
}

func (h *RoomHandler) Get(c *drift.Context) {
	roomID, err := uuid.Parse(c.Param("roomId"))
	if err != nil {
		c.BadRequest("invalid room id")
		return
	}

	room, err := h.roomService.Get(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err, "failed to load room")
		return
	}

	_ = c.JSON(200, roomResponse(*room))
}

// ListMessages returns the backlog after ?since= (default 0), oldest first,
// capped by ?limit= and the configured backlog limit.
func (h *RoomHandler) ListMessages(c *drift.Context) {
	room, ok := lookupRoom(c, h.roomService)
	if !ok {
		return
	}

	since, limit, ok := h.pageParams(c)
	if !ok {
		return
	}

	msgs, err := h.messageService.Backlog(c.Request.Context(), room, since, limit)
	if err != nil {
		writeError(c, err, "failed to load messages")
		return
	}

	lastSeq := since
	if len(msgs) > 0 {
		lastSeq = lo.MaxBy(msgs, func(a, b models.Message) bool { return a.Seq > b.Seq }).Seq
	}

	_ = c.JSON(200, dto.MessageListResponse{
		Messages: messageResponses(msgs),
		LastSeq:  lastSeq,
	})
}

func (h *RoomHandler) pageParams(c *drift.Context) (int64, int, bool) {
	var since int64
	if raw := c.QueryParam("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			c.BadRequest("since must be a non-negative integer")
			return 0, 0, false
		}
		since = n
	}

	limit := h.backlogLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.BadRequest("limit must be a positive integer")
			return 0, 0, false
		}
		limit = min(n, h.backlogLimit)
	}
	return since, limit, true
}

func (h *RoomHandler) PostMessage(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	room, ok := lookupRoom(c, h.roomService)
	if !ok {
		return
	}

	var req dto.PostMessageRequest
	if !bind(c, &req) {
		return
	}

	msg, err := h.messageService.Insert(c.Request.Context(), userID, room, req.Content)
	if err != nil {
		writeError(c, err, "failed to send message")
		return
	}

	_ = c.JSON(201, messageResponse(*msg))
}

func (h *RoomHandler) DeleteMessage(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.BadRequest("invalid message id")
		return
	}

	msg, err := h.messageService.Delete(c.Request.Context(), messageID, userID)
	if err != nil {
		writeError(c, err, "failed to delete message")
		return
	}

	_ = c.JSON(200, messageResponse(*msg))
}
