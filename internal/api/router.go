// Package api wires together all HTTP routes for the storefront backend.
//
// Route grouping philosophy:
//   - /api/v1/auth and /api/v1/products are public. Login and registration are
//     rate limited more aggressively than the rest of the API.
//   - Everything else under /api/v1 requires a valid session token; mutating
//     requests on authenticated routes are audit logged.
//   - /api/v1/admin additionally requires the admin account type.
//
// Every entitlement decision reads product and subscription state from the
// database; only the public product listing is served through the Redis cache.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/Daziusm/anonbuci-sub001/internal/api/admin"
	"github.com/Daziusm/anonbuci-sub001/internal/audit"
	"github.com/Daziusm/anonbuci-sub001/internal/cache"
	"github.com/Daziusm/anonbuci-sub001/internal/config"
	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/downloads"
	"github.com/Daziusm/anonbuci-sub001/internal/jobs"
	"github.com/Daziusm/anonbuci-sub001/internal/middleware"
	"github.com/Daziusm/anonbuci-sub001/internal/storage"
)

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	tokenSweeper *jobs.TokenSweeper
	rateLimiters []*middleware.RateLimiter
	redisClient  *redis.Client
	auditShipper *audit.MultiShipper
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.tokenSweeper != nil {
		bg.tokenSweeper.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	slog.Info("storage backend initialized", "backend", cfg.Storage.DefaultBackend)

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	productRepo := repositories.NewProductRepository(db)
	subRepo := repositories.NewSubscriptionRepository(db)
	keyRepo := repositories.NewLicenseKeyRepository(db)
	loaderRepo := repositories.NewLoaderRepository(db)
	tokenRepo := repositories.NewDownloadTokenRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Stats queries go through sqlx
	sqlxDB := sqlx.NewDb(db, "postgres")

	// Optional Redis: product listing cache plus distributed rate limiting.
	// The storefront runs fine without it; entitlement reads never depend on
	// Redis either way.
	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.Connect(context.Background(), cfg.Cache.Address, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			log.Fatalf("Failed to initialize redis client: %v", err)
		}
		slog.Info("redis cache enabled", "address", cfg.Cache.Address, "ttl", cfg.Cache.TTL)
	}
	productCache := cache.NewProductCache(redisClient, productRepo, cfg.Cache.TTL)

	// Download token broker. Product state is read from the repository, not
	// the cache: token issuance is an entitlement decision.
	broker := downloads.NewBroker(productRepo, subRepo, loaderRepo, tokenRepo, userRepo, storageBackend, cfg.Downloads.TokenTTL)

	// Background sweep of expired download tokens
	tokenSweeper := jobs.NewTokenSweeper(tokenRepo, cfg.Downloads.SweepInterval)
	tokenSweeper.Start(context.Background())

	// Handlers
	accountHandlers := NewAccountHandlers(cfg, userRepo)
	productHandlers := NewProductHandlers(productCache)
	subscriptionHandlers := NewSubscriptionHandlers(subRepo)
	keyHandlers := NewKeyHandlers(keyRepo, productRepo)
	downloadHandlers := NewDownloadHandlers(broker)

	invalidateProduct := func(c *gin.Context, name string) {
		if err := productCache.Invalidate(c.Request.Context(), name); err != nil {
			slog.Warn("product cache invalidation failed", "product", name, "error", err)
		}
	}
	adminUserHandlers := admin.NewUserHandlers(userRepo)
	adminProductHandlers := admin.NewProductHandlers(productRepo, invalidateProduct)
	adminSubHandlers := admin.NewSubscriptionHandlers(subRepo, userRepo, productRepo)
	adminKeyHandlers := admin.NewKeyHandlers(keyRepo, productRepo)
	adminLoaderHandlers := admin.NewLoaderHandlers(cfg, loaderRepo, productRepo, storageBackend)
	adminStatsHandlers := admin.NewStatsHandlers(sqlxDB)

	// Rate limiters. With Redis available the budget is shared across all
	// server instances; otherwise each instance enforces its own.
	generalConfig := middleware.DefaultRateLimitConfig()
	if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
		generalConfig.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
	}
	if cfg.Security.RateLimiting.Burst > 0 {
		generalConfig.BurstSize = cfg.Security.RateLimiting.Burst
	}

	var generalLimiter, authLimiter middleware.Limiter
	var localLimiters []*middleware.RateLimiter
	if redisClient != nil {
		generalLimiter = middleware.NewRedisLimiter(redisClient, generalConfig)
		authLimiter = middleware.NewRedisLimiter(redisClient, middleware.AuthRateLimitConfig())
	} else {
		general := middleware.NewRateLimiter(generalConfig)
		auth := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
		localLimiters = []*middleware.RateLimiter{general, auth}
		generalLimiter, authLimiter = general, auth
	}

	rateLimit := func(limiter middleware.Limiter) gin.HandlerFunc {
		if !cfg.Security.RateLimiting.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimitMiddleware(limiter)
	}

	// Optional audit shipping destinations beside the database table
	var shippers []audit.Shipper
	if cfg.Audit.ShipFile != "" {
		fileShipper, err := audit.NewFileShipper(cfg.Audit.ShipFile)
		if err != nil {
			log.Fatalf("Failed to open audit ship file: %v", err)
		}
		shippers = append(shippers, fileShipper)
	}
	if cfg.Audit.ShipWebhookURL != "" {
		shippers = append(shippers, audit.NewWebhookShipper(cfg.Audit.ShipWebhookURL, 10*time.Second))
	}
	auditShipper := audit.NewMultiShipper(shippers...)

	auditing := func() gin.HandlerFunc {
		if !cfg.Audit.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.AuditMiddleware(auditRepo, &cfg.Audit, shippers...)
	}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, storageBackend))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	{
		// Public authentication endpoints, strictly rate limited
		authGroup := apiV1.Group("/auth")
		authGroup.Use(rateLimit(authLimiter))
		{
			authGroup.POST("/register", accountHandlers.RegisterHandler())
			authGroup.POST("/login", accountHandlers.LoginHandler())
		}

		// Public product listing
		publicGroup := apiV1.Group("")
		publicGroup.Use(rateLimit(generalLimiter))
		{
			publicGroup.GET("/products", productHandlers.ListHandler())
		}

		// Authenticated self-service endpoints
		authed := apiV1.Group("")
		authed.Use(rateLimit(generalLimiter))
		authed.Use(middleware.AuthMiddleware(userRepo))
		authed.Use(auditing())
		{
			authed.GET("/auth/me", accountHandlers.MeHandler())
			authed.POST("/hwid/reset", accountHandlers.ResetHWIDHandler())
			authed.GET("/subscriptions", subscriptionHandlers.ListHandler())
			authed.POST("/keys/activate", keyHandlers.ActivateHandler())
			authed.POST("/downloads/token", downloadHandlers.IssueTokenHandler())
			authed.GET("/downloads", downloadHandlers.RedeemHandler())

			// Admin endpoints
			adminGroup := authed.Group("/admin")
			adminGroup.Use(middleware.RequireAdmin())
			{
				adminGroup.GET("/stats", adminStatsHandlers.GetHandler())

				usersGroup := adminGroup.Group("/users")
				{
					usersGroup.GET("", adminUserHandlers.ListHandler())
					usersGroup.GET("/search", adminUserHandlers.SearchHandler())
					usersGroup.GET("/:id", adminUserHandlers.GetHandler())
					usersGroup.DELETE("/:id", adminUserHandlers.DeleteHandler())
					usersGroup.POST("/:id/ban", adminUserHandlers.BanHandler())
					usersGroup.POST("/:id/unban", adminUserHandlers.UnbanHandler())
					usersGroup.POST("/:id/hwid/reset", adminUserHandlers.ResetHWIDHandler())
					usersGroup.GET("/:id/subscriptions", adminSubHandlers.ListForUserHandler())
					usersGroup.POST("/:id/subscriptions", adminSubHandlers.GrantHandler())
				}

				adminGroup.POST("/subscriptions/:id/revoke", adminSubHandlers.RevokeHandler())

				productsGroup := adminGroup.Group("/products")
				{
					productsGroup.GET("", adminProductHandlers.ListHandler())
					productsGroup.POST("", adminProductHandlers.CreateHandler())
					productsGroup.PUT("/:id", adminProductHandlers.UpdateHandler())
					productsGroup.PUT("/:id/status", adminProductHandlers.SetStatusHandler())
					productsGroup.DELETE("/:id", adminProductHandlers.DeleteHandler())
				}

				keysGroup := adminGroup.Group("/keys")
				{
					keysGroup.GET("", adminKeyHandlers.ListHandler())
					keysGroup.POST("", adminKeyHandlers.GenerateHandler())
					keysGroup.DELETE("/:id", adminKeyHandlers.DeleteHandler())
				}

				loadersGroup := adminGroup.Group("/loaders")
				{
					loadersGroup.GET("", adminLoaderHandlers.ListHandler())
					loadersGroup.POST("", adminLoaderHandlers.UploadHandler())
					loadersGroup.PUT("/:id/active", adminLoaderHandlers.SetActiveHandler())
					loadersGroup.DELETE("/:id", adminLoaderHandlers.DeleteHandler())
				}
			}
		}
	}

	bg := &BackgroundServices{
		tokenSweeper: tokenSweeper,
		rateLimiters: localLimiters,
		redisClient:  redisClient,
		auditShipper: auditShipper,
	}

	return router, bg
}

// healthCheckHandler returns the health status of the service.
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service. Unlike the
// liveness probe (/health), this also checks the storage backend so that a
// readiness gate fails when loader uploads and downloads would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe the storage backend with a known-absent sentinel path.
		// Exists() exercises authentication and network connectivity without
		// creating any state.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version.
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-HWID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
