package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimitrije/teamfocus-api/internal/config"
	"github.com/dimitrije/teamfocus-api/internal/database"
	"github.com/dimitrije/teamfocus-api/internal/handlers"
	"github.com/dimitrije/teamfocus-api/internal/identity"
	"github.com/dimitrije/teamfocus-api/internal/logger"
	"github.com/dimitrije/teamfocus-api/internal/metrics"
	authmw "github.com/dimitrije/teamfocus-api/internal/middleware"
	"github.com/dimitrije/teamfocus-api/internal/realtime"
	"github.com/dimitrije/teamfocus-api/internal/services"
	"github.com/dimitrije/teamfocus-api/internal/session"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.Init(cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	var (
		transport   realtime.Transport
		redisClient *redis.Client
	)
	if cfg.UsesRedis() {
		redisClient, err = realtime.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		transport = realtime.NewRedisTransport(redisClient, log)
		log.Info().Msg("live fan-out shared over redis")
	} else {
		transport = realtime.NewLocalTransport()
	}

	bus := realtime.NewBus(transport, log, realtime.Options{
		BacklogLimit:     cfg.Realtime.BacklogLimit,
		SubscriberBuffer: cfg.Realtime.SubscriberBuffer,
	})

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	tokenService := services.NewTokenService(db)
	profileService := services.NewProfileService(db)

	provider := identity.NewLocalProvider(db, jwtService, tokenService, log)
	authority := session.NewAuthority(provider, profileService, log, session.Options{
		InviteCode:      cfg.InviteCode,
		RecheckInterval: cfg.Session.RecheckInterval,
	})
	go authority.Run(ctx)

	messageService := services.NewMessageService(db, authority, bus, log, cfg.Messages.MaxLength)
	roomService := services.NewRoomService(db, authority)
	noticeService := services.NewNoticeService(db, authority)
	adminService := services.NewAdminService(db, authority, log)
	bus.Bind(messageService)

	limiter := authmw.NewRateLimiter(rate.Limit(cfg.Messages.RatePerSecond), cfg.Messages.RateBurst, 2*time.Minute)

	router := handlers.NewRouter(handlers.RouterConfig{
		Production:     cfg.IsProduction(),
		JWT:            jwtService,
		Sessions:       authority,
		MessageLimiter: limiter,
		Auth:           handlers.NewAuthHandler(authority),
		Profile:        handlers.NewProfileHandler(authority, profileService),
		Rooms:          handlers.NewRoomHandler(roomService, messageService, cfg.Realtime.BacklogLimit),
		Stream: handlers.NewStreamHandler(roomService, bus, authority, log, handlers.StreamOptions{
			BacklogLimit: cfg.Realtime.BacklogLimit,
			MaxRetries:   cfg.Realtime.MaxRetries,
		}),
		Notices: handlers.NewNoticeHandler(noticeService),
		Admin:   handlers.NewAdminHandler(adminService),
	})

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := tokenService.CleanupExpired(ctx)
				if err != nil {
					log.Error().Err(err).Msg("failed to clean up expired refresh tokens")
					continue
				}
				log.Debug().Int64("removed", n).Msg("expired refresh tokens cleaned up")
			}
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	go func() {
		log.Info().Str("addr", metricsSrv.Addr).Msg("metrics server starting")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Live streams only end when their request context does, so cancel the
	// authority and the bus before waiting on the listeners.
	cancel()
	authority.Close()
	bus.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown failed")
	}

	limiter.Stop()
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
