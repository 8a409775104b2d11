package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tcm-go/internal/catalog"
	"tcm-go/internal/config"
)

// NewRouter builds the HTTP routes. Resource keys contain slashes, so
// clients send them path-escaped (%2F) and routing runs on the raw path.
func NewRouter(cfg config.APIConfig, h *Handler) *gin.Engine {
	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.Use(gin.Recovery())
	r.Use(RequestLogger(h.logger))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/sync", h.Sync)
		v1.GET("/runs", h.ListRuns)

		v1.GET("/resources", h.ListResources)
		v1.POST("/resources/:key/review", h.RecordReview)
		v1.POST("/resources/:key/investment", h.RecordInvestment)
		v1.POST("/classification", h.BulkUpdateClassification)

		v1.GET("/scopes/:name", h.ListScope)
		v1.GET("/metrics", h.ListMetrics)
		v1.GET("/metrics/:name", h.Aggregate)
		v1.GET("/reconcile", h.Reconcile)
	}
	return r
}

// RequestLogger logs one line per request after it completes.
func RequestLogger(logger catalog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if c.Writer.Status() >= 500 {
			logger.Warn("request", args...)
			return
		}
		logger.Debug("request", args...)
	}
}
