// Package httpapi wires the HTTP transport (Gin) to the leaderboard handlers
// and middleware. It centralizes cross-cutting concerns such as tracing,
// correlation IDs, access logging with secret redaction, panic recovery,
// metrics, CORS, security headers, caller identity and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - The live stream is never wrapped by gzip or body-buffering middleware
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-leaderboard-backend/internal/config"
	"github.com/tbourn/go-leaderboard-backend/internal/http/handlers"
	"github.com/tbourn/go-leaderboard-backend/internal/http/middleware"
)

// maxBodyBytes caps request bodies. Score and issuance payloads are tiny.
const maxBodyBytes = 64 << 10

var (
	allowMethods  = []string{"GET", "POST", "OPTIONS"}
	allowHeaders  = []string{"Origin", "Content-Type", "Accept", middleware.HeaderUserID}
	exposeHeaders = []string{"X-Request-ID", "Content-Length", "Retry-After", handlers.HeaderReplayed}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs, tokens and keys redacted
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//  8. Identity: optional X-User-ID for every route
//
// Route-level: the score route requires identity and is rate limited; the
// issuance route requires the internal key; JSON reads are gzip-compressed.
func RegisterRoutes(r *gin.Engine, cfg config.Config, h *handlers.Handlers) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger(middleware.LogOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     allowMethods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					hdr := c.Writer.Header()
					hdr.Set("Access-Control-Allow-Origin", origin)
					hdr.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     allowMethods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// 8) Optional caller identity
	r.Use(middleware.Identity(middleware.IdentityOptions{}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireUser := middleware.Identity(middleware.IdentityOptions{Required: true})
	noStore := middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true})
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	compress := gzip.Gzip(gzip.DefaultCompression)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Scores
		api.POST("/scores", requireUser, rl.Handler(), noStore, h.SubmitScore)
		api.GET("/users/:id/score-events", requireUser, noStore, compress, h.ListScoreEvents)

		// Leaderboard
		api.GET("/leaderboard", compress, h.GetLeaderboard)
		api.GET("/leaderboard/users/:id", compress, h.GetUserRank)
		api.GET("/leaderboard/stream", h.StreamLeaderboard)

		// Trusted issuers
		api.POST("/internal/tokens", middleware.InternalKey(cfg.Token.IssuerAPIKey), noStore, h.IssueToken)
	}
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
