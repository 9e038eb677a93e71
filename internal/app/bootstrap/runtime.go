package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinicdesk/internal/config"
	httpmiddleware "github.com/wolfman30/clinicdesk/internal/http/middleware"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, using per-process rate limiting", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildRateLimiter prefers the shared Redis bucket and falls back to a
// per-process one. A non-positive rate disables limiting. The returned
// close func releases the limiter's resources.
func BuildRateLimiter(cfg *appconfig.Config, redisClient *redis.Client) (httpmiddleware.Limiter, func()) {
	if cfg == nil || cfg.RateLimitRPS <= 0 {
		return nil, func() {}
	}
	if redisClient != nil {
		return httpmiddleware.NewRedisLimiter(redisClient, cfg.RateLimitRPS, cfg.RateLimitBurst), func() {}
	}
	limiter := httpmiddleware.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	return limiter, limiter.Close
}

// OpenAuditDB opens a database/sql handle through the pgx stdlib driver for
// the audit trail.
func OpenAuditDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open audit db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: ping audit db: %w", err)
	}
	return db, nil
}
