// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-debate-backend/internal/ai"
	"github.com/tbourn/go-debate-backend/internal/config"
	"github.com/tbourn/go-debate-backend/internal/domain"
	"github.com/tbourn/go-debate-backend/internal/http/handlers"
	"github.com/tbourn/go-debate-backend/internal/http/middleware"
	"github.com/tbourn/go-debate-backend/internal/limits"
	"github.com/tbourn/go-debate-backend/internal/notify"
	"github.com/tbourn/go-debate-backend/internal/observability"
	"github.com/tbourn/go-debate-backend/internal/repo"
	"github.com/tbourn/go-debate-backend/internal/services"
)

// debateStoreShim adapts the repository free functions to the
// services.DebateStore interface expected by the DebateService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type debateStoreShim struct{}

// CreateDebate proxies repo.CreateDebate.
func (debateStoreShim) CreateDebate(ctx context.Context, db *gorm.DB, d *domain.Debate) error {
	return repo.CreateDebate(ctx, db, d)
}

// SaveDebate proxies repo.SaveDebate.
func (debateStoreShim) SaveDebate(ctx context.Context, db *gorm.DB, d *domain.Debate) error {
	return repo.SaveDebate(ctx, db, d)
}

// GetDebate proxies repo.GetDebate.
func (debateStoreShim) GetDebate(ctx context.Context, db *gorm.DB, id string) (*domain.Debate, error) {
	return repo.GetDebate(ctx, db, id)
}

// CountDebates proxies repo.CountDebates (pagination support).
func (debateStoreShim) CountDebates(ctx context.Context, db *gorm.DB, orgID string, status domain.DebateStatus) (int64, error) {
	return repo.CountDebates(ctx, db, orgID, status)
}

// ListDebatesPage proxies repo.ListDebatesPage (pagination support).
func (debateStoreShim) ListDebatesPage(ctx context.Context, db *gorm.DB, orgID string, status domain.DebateStatus, offset, limit int) ([]domain.Debate, error) {
	return repo.ListDebatesPage(ctx, db, orgID, status, offset, limit)
}

// CommitTurn proxies repo.CommitTurn.
func (debateStoreShim) CommitTurn(ctx context.Context, db *gorm.DB, d *domain.Debate, t *domain.Turn) error {
	return repo.CommitTurn(ctx, db, d, t)
}

// ListTurns proxies repo.ListTurns.
func (debateStoreShim) ListTurns(ctx context.Context, db *gorm.DB, debateID string) ([]domain.Turn, error) {
	return repo.ListTurns(ctx, db, debateID)
}

// CountTurnsByParticipant proxies repo.CountTurnsByParticipant.
func (debateStoreShim) CountTurnsByParticipant(ctx context.Context, db *gorm.DB, debateID, participantID string) (int64, error) {
	return repo.CountTurnsByParticipant(ctx, db, debateID, participantID)
}

// SaveSummary proxies repo.SaveSummary.
func (debateStoreShim) SaveSummary(ctx context.Context, db *gorm.DB, s *domain.DebateSummary) error {
	return repo.SaveSummary(ctx, db, s)
}

// LatestSummary proxies repo.LatestSummary.
func (debateStoreShim) LatestSummary(ctx context.Context, db *gorm.DB, debateID string) (*domain.DebateSummary, error) {
	return repo.LatestSummary(ctx, db, debateID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, compression, CORS and security headers, health and metrics
// endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter + gzip compression
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per org/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, hub *notify.Hub, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key", // project-specific sensitive header example
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB) and response compression.
	// Websocket upgrades and the Prometheus scrape must stay uncompressed.
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`^/metrics$`, `/events$`}),
	))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, orgID, debateID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, orgID, debateID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per org/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByOrgOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Org-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
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
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Org-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
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

	// Dependency injection: service ← repo/db + optional AI backends
	svc := &services.DebateService{
		DB:    db,
		Store: debateStoreShim{},

		Limiter: limits.NewRateLimiter(cfg.Limits.WindowMax, cfg.Limits.Window),
		Queue:   limits.NewRequestQueue(cfg.Limits.QueueSize),
		Locks:   limits.NewLockManager(cfg.Limits.LockWait),

		Notifier: hub,
		Metrics:  observability.NewMetrics(),

		ContextWindowTokens: cfg.AI.ContextWindowTokens,
		DefaultMaxTokens:    cfg.AI.DefaultMaxTokens,
	}
	if cfg.AI.OpenAIKey != "" {
		svc.Completer = ai.NewOpenAIClient(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL)
	}
	if cfg.AI.WeaviateHost != "" {
		kn, err := ai.NewWeaviateKnowledge(cfg.AI.WeaviateHost, cfg.AI.WeaviateScheme)
		if err != nil {
			log.Warn().Err(err).Str("host", cfg.AI.WeaviateHost).Msg("knowledge retrieval disabled")
		} else {
			svc.Knowledge = kn
		}
	}
	if cfg.AI.ContextURL != "" {
		svc.Contexts = ai.NewHTTPContextClient(cfg.AI.ContextURL, 10*time.Second)
	}

	h := handlers.New(svc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Debates
		api.POST("/debates", h.CreateDebate)
		api.GET("/debates", h.ListDebates)
		api.GET("/debates/:id", h.GetDebate)

		// Lifecycle
		api.POST("/debates/:id/start", h.StartDebate)
		api.POST("/debates/:id/pause", h.PauseDebate)
		api.POST("/debates/:id/resume", h.ResumeDebate)
		api.POST("/debates/:id/archive", h.ArchiveDebate)

		// Turns
		api.POST("/debates/:id/turns", h.AddTurn)
		api.GET("/debates/:id/turns", h.ListTurns)
		api.POST("/debates/:id/turns/next", h.NextTurn)

		// Summaries
		api.POST("/debates/:id/summary", h.Summarize)
		api.GET("/debates/:id/summary", h.GetLatestSummary)

		// Live event stream
		api.GET("/debates/:id/events", func(c *gin.Context) {
			hub.Serve(c.Writer, c.Request)
		})
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
