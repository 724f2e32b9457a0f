package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/roach88/selfcheckout/internal/engine"
	"github.com/roach88/selfcheckout/internal/metrics"
)

// Options configures the router.
type Options struct {
	// Metrics, when set, records request metrics and serves /metrics.
	Metrics *metrics.Registry

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string

	// MaxUploadBytes caps a multipart request body.
	MaxUploadBytes int64

	// Ready, when set, backs /healthz.
	Ready func(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	engine    *engine.Engine
	maxUpload int64
	ready     func(ctx context.Context) error
}

// NewRouter builds the gin engine serving the checkout API.
func NewRouter(eng *engine.Engine, opts Options) *gin.Engine {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	s := &Server{engine: eng, maxUpload: opts.MaxUploadBytes, ready: opts.Ready}

	r := gin.New()
	r.MaxMultipartMemory = opts.MaxUploadBytes
	r.Use(gin.Recovery(), withRequestID(), withLogging(opts.Metrics), corsMiddleware(opts.CORSOrigins))

	r.GET("/healthz", s.healthz)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	r.POST("/sessions", s.createSession)
	sessions := r.Group("/sessions/:id")
	{
		sessions.GET("", s.getSession)
		sessions.POST("/frames", s.ingestFrame)
		sessions.GET("/cart", s.getCart)
		sessions.POST("/confirm", s.confirm)
		sessions.POST("/pay", s.pay)
		sessions.POST("/cancel", s.cancel)
	}

	r.POST("/scan", s.scan)
	r.POST("/scan3", s.scan3)

	r.NoRoute(func(c *gin.Context) {
		writeJSONError(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", headerRequestID},
		ExposeHeaders: []string{"Content-Length", headerRequestID, headerReplayed},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cors.New(cfg)
}
