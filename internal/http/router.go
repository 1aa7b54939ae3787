// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted logging, panic recovery, compression,
// metrics, idempotency, rate limiting, CORS and security headers.
//
// @title                       Wedding Invitation API
// @version                     1.0
// @description                 Guest invitations with an offline cache and an RSVP outbox.
// @BasePath                    /api/v1
// @securityDefinitions.basic   BasicAuth
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

	"github.com/tbourn/wedding-invite-backend/docs"
	"github.com/tbourn/wedding-invite-backend/internal/config"
	"github.com/tbourn/wedding-invite-backend/internal/http/handlers"
	"github.com/tbourn/wedding-invite-backend/internal/http/middleware"
)

// RSVPService is the RSVP surface the router needs: the handler contract
// plus the idempotency lookup used before rate limiting.
type RSVPService interface {
	handlers.RSVPService
	IdempotencyExists(ctx context.Context, slug, key string, now time.Time) (bool, error)
}

// Services are the dependencies mounted by RegisterRoutes. Admin may be nil
// and Ready may be nil.
type Services struct {
	Invitations handlers.InvitationService
	RSVPs       RSVPService
	Admin       handlers.AdminService
	// Ready reports whether the stores answer; it backs /ready.
	Ready func(ctx context.Context) error
}

const adminRealm = "wedding-admin"

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Access log (redacting outside debug mode)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip (event streams excluded)
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per IP and slug, bypass on replay)
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	if cfg.GinMode == gin.DebugMode {
		r.Use(middleware.Logger())
	} else {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
			MaskQuery:   []string{"q"},
		}))
	}
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/events$`})))

	r.Use(middleware.Metrics(middleware.MetricsOptions{Skip: []string{"/metrics", "/health", "/ready"}}))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{Methods: []string{http.MethodPost}},
		svc.RSVPs.IdempotencyExists,
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientAndSlug())
	r.Use(rl.Handler())

	useCORS(r, cfg.CORS.AllowedOrigins)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{cfg.APIBasePath + "/admin", cfg.APIBasePath + "/sync"},
		EnablePolicy:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", func(c *gin.Context) {
		if svc.Ready != nil {
			if err := svc.Ready(c.Request.Context()); err != nil {
				handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeRemoteUnavailable, "not ready")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Invitations, svc.RSVPs, svc.Admin)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/invitations/:slug", h.GetInvitation)
		api.POST("/invitations/:slug/rsvp", h.SubmitRSVP)
		api.GET("/invitations/:slug/wedding-date", h.GetWeddingDate)
		api.PUT("/invitations/:slug/wedding-date", h.PutWeddingDate)
		api.GET("/invitations/:slug/events", h.InvitationEvents)

		api.GET("/sync/pending", h.ListPending)
		api.POST("/sync/flush", h.FlushPending)
	}

	if svc.Admin == nil || cfg.AdminUser == "" {
		return
	}
	admin := api.Group("/admin", gin.BasicAuthForRealm(gin.Accounts{cfg.AdminUser: cfg.AdminPassword}, adminRealm))
	{
		admin.GET("/invitations", h.ListInvitations)
		admin.GET("/invitations/search", h.SearchInvitations)
		admin.PUT("/invitations/:slug", h.UpsertInvitation)
		admin.GET("/summary", h.Summary)
		admin.POST("/import", h.ImportInvitations)
	}
}

// useCORS installs gin-contrib/cors. With no allowlist every origin is
// allowed without credentials; otherwise allowed origins are echoed.
func useCORS(r *gin.Engine, origins []string) {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "X-Data-Source", "Idempotency-Replayed", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		// ACAO: * even without an Origin header, so plain fetches and health
		// checks see it.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		base.AllowAllOrigins = true
		r.Use(cors.New(base))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
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
	base.AllowOrigins = origins
	r.Use(cors.New(base))
}

// limitBody caps the request body at maxBytes using http.MaxBytesReader.
// Reads past the cap fail in the handler.
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
