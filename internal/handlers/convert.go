package handlers

import (
	"github.com/dimitrije/teamfocus-api/internal/identity"
	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/session"
	"github.com/dimitrije/teamfocus-api/pkg/dto"
	"github.com/samber/lo"
)

func profileResponse(p *models.Profile) *dto.ProfileResponse {
	if p == nil {
		return nil
	}
	return &dto.ProfileResponse{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		AvatarURL:   p.AvatarURL,
		IsBanned:    p.IsBanned,
		UpdatedAt:   p.UpdatedAt,
	}
}

func sessionResponse(s session.Session) dto.SessionResponse {
	roles := []string(s.Roles)
	if roles == nil {
		roles = []string{}
	}
	return dto.SessionResponse{
		State:   string(s.State),
		UserID:  s.Identity.ID,
		Email:   s.Identity.Email,
		Profile: profileResponse(s.Profile),
		Roles:   roles,
		IsAdmin: s.IsAdmin(),
	}
}

func authResponse(s session.Session, grant *identity.Grant) dto.AuthResponse {
	resp := dto.AuthResponse{Session: sessionResponse(s)}
	if grant != nil && grant.Tokens != nil {
		resp.TokenResponse = dto.TokenResponse{
			AccessToken:  grant.Tokens.AccessToken,
			RefreshToken: grant.Tokens.RefreshToken,
			ExpiresIn:    grant.Tokens.ExpiresIn,
		}
	}
	return resp
}

func roomResponse(r models.ChatRoom) dto.RoomResponse {
	return dto.RoomResponse{
		ID:        r.ID,
		Name:      r.Name,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
	}
}

func messageResponse(m models.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:         m.ID,
		RoomID:     m.RoomID,
		UserID:     m.UserID,
		AuthorName: m.AuthorName,
		Content:    m.Content,
		Seq:        m.Seq,
		CreatedAt:  m.CreatedAt,
		Deleted:    m.IsDeleted(),
	}
}

func messageResponses(msgs []models.Message) []dto.MessageResponse {
	return lo.Map(msgs, func(m models.Message, _ int) dto.MessageResponse {
		return messageResponse(m)
	})
}

func noticeResponse(n models.Notice) dto.NoticeResponse {
	return dto.NoticeResponse{
		ID:         n.ID,
		UserID:     n.UserID,
		AuthorName: n.AuthorName,
		Title:      n.Title,
		Content:    n.Content,
		IsPinned:   n.IsPinned,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
}

func userSummaryResponse(u models.UserSummary) dto.UserSummaryResponse {
	return dto.UserSummaryResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsBanned:    u.IsBanned,
		Roles:       []string(u.Roles),
		CreatedAt:   u.CreatedAt,
	}
}
