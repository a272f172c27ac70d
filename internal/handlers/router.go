package handlers

import (
	"net/http"

	authmw "github.com/dimitrije/teamfocus-api/internal/middleware"
	"github.com/dimitrije/teamfocus-api/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
)

// Sessions is the authority as both handlers and the ActiveSession middleware see it.
type Sessions interface {
	SessionAuthority
	authmw.SessionResolver
}

type RouterConfig struct {
	Production     bool
	JWT            *services.JWTService
	Sessions       Sessions
	MessageLimiter *authmw.RateLimiter

	Auth    *AuthHandler
	Profile *ProfileHandler
	Rooms   *RoomHandler
	Stream  *StreamHandler
	Notices *NoticeHandler
	Admin   *AdminHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	app := drift.New()

	if cfg.Production {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())

	api := app.Group("/api/v1")

	auth := api.Group("/auth")
	auth.Post("/signup", cfg.Auth.SignUp)
	auth.Post("/login", cfg.Auth.Login)
	auth.Post("/refresh", cfg.Auth.RefreshToken)

	// Token only: revoked sessions must still be able to sign out.
	authed := api.Group("")
	authed.Use(authmw.Auth(cfg.JWT))
	authed.Post("/auth/logout", cfg.Auth.Logout)

	active := api.Group("")
	active.Use(authmw.Auth(cfg.JWT))
	active.Use(authmw.ActiveSession(cfg.Sessions))

	active.Post("/auth/password", cfg.Auth.ChangePassword)
	active.Get("/session", cfg.Profile.GetSession)
	active.Get("/profile", cfg.Profile.GetProfile)
	active.Patch("/profile", cfg.Profile.UpdateProfile)

	active.Get("/rooms", cfg.Rooms.List)
	active.Post("/rooms", cfg.Rooms.Create)
	active.Get("/rooms/:roomId", cfg.Rooms.Get)
	active.Get("/rooms/:roomId/messages", cfg.Rooms.ListMessages)
	active.Get("/rooms/:roomId/events", cfg.Stream.Events)
	active.Delete("/messages/:messageId", cfg.Rooms.DeleteMessage)

	active.Get("/notices", cfg.Notices.List)
	active.Post("/notices", cfg.Notices.Create)
	active.Post("/notices/:id/pin", cfg.Notices.TogglePin)
	active.Delete("/notices/:id", cfg.Notices.Delete)

	active.Get("/admin/users", cfg.Admin.ListUsers)
	active.Post("/admin/users/:userId/ban", cfg.Admin.SetBanned)
	active.Delete("/admin/users/:userId", cfg.Admin.DeleteUser)

	posting := api.Group("")
	posting.Use(authmw.Auth(cfg.JWT))
	posting.Use(authmw.ActiveSession(cfg.Sessions))
	if cfg.MessageLimiter != nil {
		posting.Use(cfg.MessageLimiter.Middleware())
	}
	posting.Post("/rooms/:roomId/messages", cfg.Rooms.PostMessage)

	api.Get("/health", func(c *drift.Context) {
		_ = c.JSON(200, map[string]string{"status": "ok"})
	})

	return app
}
