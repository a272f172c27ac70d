package handlers

import (
	"context"
	"strconv"

	"github.com/dimitrije/teamfocus-api/internal/middleware"
	"github.com/dimitrije/teamfocus-api/internal/realtime"
	"github.com/dimitrije/teamfocus-api/internal/session"
	"github.com/dimitrije/teamfocus-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/rs/zerolog"
)

type StreamOptions struct {
	BacklogLimit int
	MaxRetries   int
}

type StreamHandler struct {
	roomService RoomServiceInterface
	source      realtime.Source
	authority   SessionAuthority
	opts        StreamOptions
	log         zerolog.Logger
}

func NewStreamHandler(roomService RoomServiceInterface, source realtime.Source, authority SessionAuthority, log zerolog.Logger, opts StreamOptions) *StreamHandler {
	return &StreamHandler{
		roomService: roomService,
		source:      source,
		authority:   authority,
		opts:        opts,
		log:         log.With().Str("component", "stream").Logger(),
	}
}

type followerStatus struct {
	status realtime.Status
	err    error
}

// Events streams one room as server-sent events: the backlog after ?since=
// as "message" events, then live "message" and "removed" events, with
// "status" events whenever the underlying subscription reconnects. The
// stream ends with a "revoked" event when the caller's session stops being
// Active.
func (h *StreamHandler) Events(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	room, ok := lookupRoom(c, h.roomService)
	if !ok {
		return
	}

	var since int64
	if raw := c.QueryParam("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			c.BadRequest("since must be a non-negative integer")
			return
		}
		since = n
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	changes := make(chan realtime.Change, 16)
	statuses := make(chan followerStatus, 4)

	follower := realtime.NewFollower(h.source, room, realtime.FollowerOptions{
		Limit:      h.opts.BacklogLimit,
		Since:      since,
		MaxRetries: h.opts.MaxRetries,
		OnChange: func(change realtime.Change) {
			select {
			case changes <- change:
			case <-ctx.Done():
			}
		},
		OnStatus: func(status realtime.Status, err error) {
			select {
			case statuses <- followerStatus{status: status, err: err}:
			case <-ctx.Done():
			}
		},
	})

	done := make(chan error, 1)
	go func() {
		done <- follower.Run(ctx)
	}()

	sessions := h.authority.Watch(ctx, userID)
	stream := c.SSE()

	for {
		select {
		case <-ctx.Done():
			return

		case change := <-changes:
			for _, m := range change.Added {
				if err := stream.SendJSON(messageResponse(m), "message", strconv.FormatInt(m.Seq, 10)); err != nil {
					return
				}
			}
			if len(change.Removed) > 0 {
				if err := stream.SendJSON(dto.RemovedEvent{IDs: change.Removed}, "removed", ""); err != nil {
					return
				}
			}

		case st := <-statuses:
			ev := dto.StreamStatusEvent{Status: string(st.status)}
			if st.err != nil {
				ev.Error = st.err.Error()
			}
			if err := stream.SendJSON(ev, "status", ""); err != nil {
				return
			}

		case s, ok := <-sessions:
			if !ok {
				return
			}
			if s.State == session.Active || s.State == session.Pending {
				continue
			}
			_ = stream.SendJSON(map[string]string{"state": string(s.State)}, "revoked", "")
			return

		case err := <-done:
			if err != nil {
				h.log.Warn().Err(err).Str("user_id", userID.String()).Msg("room stream gave up")
				_ = stream.SendJSON(dto.StreamStatusEvent{Status: string(realtime.StatusDisconnected), Error: err.Error()}, "status", "")
			}
			return
		}
	}
}
