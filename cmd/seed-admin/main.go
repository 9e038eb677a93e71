package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/wolfman30/clinicdesk/internal/accounts"
	appconfig "github.com/wolfman30/clinicdesk/internal/config"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	email := flag.String("email", cfg.SeedAdminEmail, "admin email (SEED_ADMIN_EMAIL)")
	password := flag.String("password", cfg.SeedAdminPassword, "admin password (SEED_ADMIN_PASSWORD)")
	name := flag.String("name", cfg.SeedAdminName, "admin display name (SEED_ADMIN_NAME)")
	flag.Parse()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if *email == "" || *password == "" {
		logger.Error("admin email and password are required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := accounts.NewService(
		accounts.NewPostgresRepository(pool),
		accounts.NewBcryptHasher(cfg.BcryptCost),
		accounts.NewJWTIssuer(cfg.JWTSecret, cfg.TokenTTL),
		logger,
	)
	account, created, err := svc.EnsureAdmin(ctx, accounts.RegisterInput{Name: *name, Email: *email, Password: *password})
	if err != nil {
		logger.Error("seed admin failed", "error", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("created admin %s (%s)\n", account.Email, account.ID)
		return
	}
	fmt.Printf("admin %s already exists (%s)\n", account.Email, account.ID)
}
