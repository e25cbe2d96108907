// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Browser-friendly CORS posture (the SPA and the service worker are the
//     primary clients of every endpoint here)
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/nugsa/go-platform-backend/internal/config"
	"github.com/nugsa/go-platform-backend/internal/domain"
	"github.com/nugsa/go-platform-backend/internal/genai"
	"github.com/nugsa/go-platform-backend/internal/http/handlers"
	"github.com/nugsa/go-platform-backend/internal/http/middleware"
	"github.com/nugsa/go-platform-backend/internal/repo"
	"github.com/nugsa/go-platform-backend/internal/services"
)

// subscriptionRepoShim adapts the repository free functions to the
// services.SubscriptionRepo interface expected by the SubscriptionService.
// This keeps services decoupled from the concrete repo package while reusing
// existing functions.
type subscriptionRepoShim struct{}

// CreateSubscription proxies repo.CreateSubscription.
func (subscriptionRepoShim) CreateSubscription(ctx context.Context, db *gorm.DB, endpoint, p256dh, auth string) (*domain.PushSubscription, error) {
	return repo.CreateSubscription(ctx, db, endpoint, p256dh, auth)
}

// GetSubscriptionByEndpoint proxies repo.GetSubscriptionByEndpoint.
func (subscriptionRepoShim) GetSubscriptionByEndpoint(ctx context.Context, db *gorm.DB, endpoint string) (*domain.PushSubscription, error) {
	return repo.GetSubscriptionByEndpoint(ctx, db, endpoint)
}

// DeleteSubscriptionByEndpoint proxies repo.DeleteSubscriptionByEndpoint.
func (subscriptionRepoShim) DeleteSubscriptionByEndpoint(ctx context.Context, db *gorm.DB, endpoint string) (int64, error) {
	return repo.DeleteSubscriptionByEndpoint(ctx, db, endpoint)
}

// CountSubscriptions proxies repo.CountSubscriptions.
func (subscriptionRepoShim) CountSubscriptions(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountSubscriptions(ctx, db)
}

// ListSubscriptionsPage proxies repo.ListSubscriptionsPage.
func (subscriptionRepoShim) ListSubscriptionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.PushSubscription, error) {
	return repo.ListSubscriptionsPage(ctx, db, offset, limit)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per client IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-Client-Info", // identifies the SPA build; not needed in logs
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 8) CORS posture. The browser contract requires preflights to succeed
	// with status 200 and the headers the SPA and service worker send.
	corsAllowHeaders := []string{"authorization", "x-client-info", "apikey", "content-type"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:           true,
			AllowMethods:              []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:              corsAllowHeaders,
			ExposeHeaders:             []string{"X-Request-ID", "Content-Length"},
			AllowCredentials:          false, // must remain false with AllowAllOrigins
			MaxAge:                    12 * time.Hour,
			OptionsResponseStatusCode: http.StatusOK,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:              cfg.CORS.AllowedOrigins,
			AllowMethods:              []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:              corsAllowHeaders,
			ExposeHeaders:             []string{"X-Request-ID", "Content-Length"},
			AllowCredentials:          false,
			MaxAge:                    12 * time.Hour,
			OptionsResponseStatusCode: http.StatusOK,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (disabled by default)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/provider
	subSvc := services.NewSubscriptionService(db, subscriptionRepoShim{})
	dispatchSvc := &services.DispatchService{
		DB:              db,
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
		TTL:             cfg.Push.TTL,
	}
	provider := &genai.Client{
		APIKey:  cfg.Chat.APIKey,
		BaseURL: cfg.Chat.BaseURL,
		Model:   cfg.Chat.Model,
	}
	chatSvc := &services.ChatService{
		Provider:         provider,
		UpstreamTimeout:  cfg.Chat.UpstreamTimeout,
		MaxDocumentBytes: cfg.Chat.MaxDocumentBytes,
	}
	h := handlers.New(subSvc, dispatchSvc, chatSvc, cfg.Push.VAPIDPublicKey)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)

	// Compression only on the push group. The chat stream stays uncompressed
	// so frames flush to the client as they arrive.
	push := api.Group("/push", gzip.Gzip(gzip.DefaultCompression))
	{
		push.GET("/key", h.GetPushKey)
		push.POST("/subscriptions", h.Subscribe)
		push.DELETE("/subscriptions", h.Unsubscribe)
		push.GET("/subscriptions", h.ListSubscriptions)
		push.GET("/subscriptions/status", h.SubscriptionStatus)
		push.POST("/dispatch", h.Dispatch)
	}

	// Chat (streaming; no gzip)
	api.POST("/chat", h.Chat)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
