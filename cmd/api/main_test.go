package main

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	appconfig "github.com/wolfman30/clinicdesk/internal/config"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

func TestBuildStoresWithoutDatabaseUsesMemory(t *testing.T) {
	cfg := &appconfig.Config{AuditEnabled: true}
	stores, closeFn, err := buildStores(context.Background(), cfg, logging.Default())
	if err != nil {
		t.Fatalf("build stores: %v", err)
	}
	defer closeFn()

	if _, ok := stores.Accounts.(*accounts.InMemoryRepository); !ok {
		t.Fatalf("expected in-memory accounts, got %T", stores.Accounts)
	}
	if stores.Audit == nil {
		t.Fatalf("expected in-memory audit store when audit is enabled")
	}
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	svc := accounts.NewService(repo, accounts.NewBcryptHasher(bcrypt.MinCost), accounts.NewJWTIssuer("s", time.Hour), logging.Default())
	cfg := &appconfig.Config{SeedAdminEmail: "root@clinic.com", SeedAdminPassword: "changeme", SeedAdminName: "Root"}

	seedAdmin(context.Background(), cfg, svc, logging.Default())
	seedAdmin(context.Background(), cfg, svc, logging.Default())

	n, err := repo.CountByRole(context.Background(), access.RoleAdmin)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one admin, got %d", n)
	}
}
