package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mindgrove/tenant-auth-service/internal/app"
	"github.com/mindgrove/tenant-auth-service/internal/config"
	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/http/handler"
	"github.com/mindgrove/tenant-auth-service/internal/http/middleware"
	"github.com/mindgrove/tenant-auth-service/internal/http/router"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
	"github.com/mindgrove/tenant-auth-service/internal/repository"
	"github.com/mindgrove/tenant-auth-service/internal/scheduler"
	"github.com/mindgrove/tenant-auth-service/internal/security"
	"github.com/mindgrove/tenant-auth-service/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(
		&domain.Branch{}, &domain.User{}, &domain.Tenant{},
		&domain.RefreshToken{}, &domain.Session{},
		&domain.TenantRole{}, &domain.UserRoleAssignment{},
	); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	users := repository.NewUserRepository(db)
	tenants := repository.NewTenantRepository(db)
	roles := repository.NewRoleAssignmentRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	var redisClient redis.UniversalClient
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WarnContext(ctx, "redis unreachable at startup, continuing", "addr", cfg.RedisAddr, "error", err)
		}
	}

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAccessSecret, cfg.JWTRefreshSecret,
		cfg.AccessTTL(), cfg.RefreshTTL())
	tokenStore := service.NewRefreshTokenStore(tokenRepo, cfg.RefreshTTL(), cfg.BcryptCost, logger)
	registry := service.NewSessionRegistry(sessionRepo, service.SessionPolicy{
		IdleTimeout:           cfg.SessionIdleTimeout(),
		DuplicateCheckEnabled: cfg.DuplicateCheckEnabled,
		AskUserConfirmation:   cfg.AskUserConfirmation,
		TerminateExisting:     cfg.TerminateExisting,
		SuspiciousIPThreshold: int64(cfg.SuspiciousIPThreshold),
	}, logger)
	tenantResolver := service.NewTenantResolver(users, tenants, roles, tokenStore, logger)
	if cfg.CacheTTL() > 0 {
		var missing service.NegativeLookupCacheStore = service.NewInMemoryNegativeLookupCacheStore()
		if redisClient != nil {
			missing = service.NewRedisNegativeLookupCacheStore(redisClient, "auth_negative_lookup")
		}
		tenantResolver.WithMissingTenantCache(missing, cfg.CacheTTL())
	}

	var permissions service.PermissionResolver = service.NewMatrixPermissionResolver()
	if cfg.CacheTTL() > 0 {
		var cache service.PermissionCacheStore = service.NewInMemoryPermissionCacheStore()
		if redisClient != nil {
			cache = service.NewRedisPermissionCacheStore(redisClient, "auth_perm")
		}
		permissions = service.NewCachedPermissionResolver(permissions, cache, cfg.CacheTTL(), logger)
	}

	orchestrator := service.NewAuthOrchestrator(
		security.NewBcryptVerifier(users),
		users,
		permissions,
		jwtMgr,
		tokenStore,
		registry,
		tenantResolver,
		cfg.OperatorRoleList(),
		logger,
	)

	var authLimiter func(http.Handler) http.Handler
	if redisClient != nil {
		rl := middleware.NewRateLimiter(
			middleware.NewRedisLimiter(redisClient, "auth_rl"),
			30, time.Minute, middleware.FailOpen)
		authLimiter = rl.Middleware()
	}

	h := router.New(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(orchestrator, registry),
		JWTManager:       jwtMgr,
		SessionRegistry:  registry,
		Logger:           logger,
		AuthRateLimiter:  authLimiter,
		AuthRateLimitRPM: 30,
		EnableOTelHTTP:   cfg.OTELTracesEnabled || cfg.OTELMetricsEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	sweeper := scheduler.NewSweeper(tokenStore, registry, cfg.SweeperInterval(), logger)

	return app.New(cfg, logger, server, sweeper, runtime).Run(ctx)
}
