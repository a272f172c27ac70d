package middleware

import (
	"context"
	"net/http"

	"github.com/dimitrije/teamfocus-api/internal/models"
	"github.com/dimitrije/teamfocus-api/internal/session"
	"github.com/m1z23r/drift/pkg/drift"
)

const SessionKey = "session"

type SessionResolver interface {
	Resolve(ctx context.Context, ident models.Identity) (session.Session, error)
}

// ActiveSession admits only requests whose identity has an Active session.
// It must run after Auth.
func ActiveSession(resolver SessionResolver) drift.HandlerFunc {
	return func(c *drift.Context) {
		ident := models.Identity{ID: GetUserID(c), Email: GetUserEmail(c)}

		s, err := resolver.Resolve(c.Request.Context(), ident)
		if err != nil {
			_ = c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "session could not be resolved"})
			return
		}

		switch s.State {
		case session.Active:
			c.Set(SessionKey, s)
			c.Next()
		case session.Revoked:
			c.Forbidden("session revoked")
		case session.Pending:
			_ = c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "session is still being established"})
		default:
			c.Unauthorized("not signed in")
		}
	}
}

func GetSession(c *drift.Context) (session.Session, bool) {
	if v, ok := c.Get(SessionKey); ok {
		if s, ok := v.(session.Session); ok {
			return s, true
		}
	}
	return session.Session{}, false
}
