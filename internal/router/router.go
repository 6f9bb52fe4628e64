package router

import (
	"net/http"
	"time"

	"notifyhub/internal/common"
	"notifyhub/internal/config"
	"notifyhub/internal/domain/notify"
	"notifyhub/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options carries optional router dependencies.
type Options struct {
	// Events streams dispatch results to websocket clients. Nil disables /api/service/ws.
	Events http.Handler
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Snapshots reports the loaded configuration on /health.
	Snapshots notify.SnapshotProvider
}

// New creates and configures the Gin router with all middleware and routes.
func New(
	cfg *config.Config,
	notifyHandler *notify.Handler,
	opts Options,
) *gin.Engine {
	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()

	// Global middleware stack (order matters)
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	// Rate limiter
	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimit.RequestsPerSecond,
		cfg.RateLimit.Burst,
	)
	r.Use(rateLimiter.Middleware())

	r.Use(gin.Logger())

	// Public routes
	r.GET("/health", healthCheck(opts.Snapshots))
	if opts.Gatherer != nil && cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	// Protected API routes (API key required)
	protectedAPI := r.Group("/api/service")
	protectedAPI.Use(middleware.Auth(cfg.Auth.APIKeys))
	{
		notifyHandler.RegisterRoutes(protectedAPI)
		if opts.Events != nil {
			protectedAPI.GET("/ws", gin.WrapH(opts.Events))
		}
	}

	return r
}

// healthCheck handles GET /health
func healthCheck(snapshots notify.SnapshotProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"service": "notifyhub",
		}
		if snapshots != nil {
			if snap := snapshots.Current(); snap != nil {
				body["snapshot"] = gin.H{
					"source":    snap.Source,
					"loaded_at": snap.LoadedAt.Format(time.RFC3339),
					"channels":  len(snap.Channels()),
					"routes":    len(snap.Routes()),
				}
			}
		}
		common.Success(c, http.StatusOK, body)
	}
}
