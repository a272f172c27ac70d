package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dimitrije/teamfocus-api/internal/config"
	"github.com/dimitrije/teamfocus-api/internal/database"
	"github.com/dimitrije/teamfocus-api/internal/logger"
	"github.com/dimitrije/teamfocus-api/internal/models"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: promote-admin <email>")
		os.Exit(1)
	}

	email := strings.ToLower(strings.TrimSpace(os.Args[1]))

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	log := logger.Init(cfg.Env, cfg.LogLevel)

	ctx := context.Background()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists); err != nil {
		log.Fatal().Err(err).Msg("failed to look up user")
	}
	if !exists {
		log.Fatal().Str("email", email).Msg("no user found with email")
	}

	result, err := db.Pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role)
		SELECT id, $1 FROM users WHERE email = $2
		ON CONFLICT (user_id, role) DO NOTHING
	`, models.RoleAdmin, email)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to grant admin role")
	}

	if result.RowsAffected() == 0 {
		fmt.Printf("%s already has the admin role\n", email)
		return
	}
	fmt.Printf("Successfully granted the admin role to %s\n", email)
}
