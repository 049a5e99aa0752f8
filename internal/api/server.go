// Package api assembles the gin HTTP server: the Publish Endpoint (C8),
// the median and on-chain query routes (C4/C6), the WebSocket subscribe
// upgrade (C7), and liveness/metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/pragma-network/pragma-node/config"
	"github.com/pragma-network/pragma-node/internal/apierr"
	"github.com/pragma-network/pragma-node/internal/pairid"
	"github.com/pragma-network/pragma-node/internal/pricing"
	"github.com/pragma-network/pragma-node/internal/queue"
	"github.com/pragma-network/pragma-node/internal/routing"
	"github.com/pragma-network/pragma-node/internal/signing"
	"github.com/pragma-network/pragma-node/internal/store"
	"github.com/pragma-network/pragma-node/pkg/logger"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pragma_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pragma_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	publishAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pragma_publish_accepted_total",
		Help: "Total number of entries accepted by the publish endpoint",
	})
	publishRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pragma_publish_rejected_total",
			Help: "Total number of publish requests rejected, by error kind",
		},
		[]string{"kind"},
	)
)

// Server is the HTTP surface for Pragma Node.
type Server struct {
	cfg         config.APIConfig
	db          *store.DB
	cache       *store.Cache
	indexPricer *pricing.Pricer
	resolver    *routing.Resolver
	decimals    *pairid.DecimalTable
	signer      *signing.Signer
	producer    queue.Producer
	log         *logger.Logger
	router      *gin.Engine
	httpServer  *http.Server
	publishRL   *perIPLimiter
	wsConfig    config.WSConfig
}

// Deps bundles the Server's collaborators.
type Deps struct {
	DB          *store.DB
	Cache       *store.Cache
	IndexPricer *pricing.Pricer
	Resolver    *routing.Resolver
	Decimals    *pairid.DecimalTable
	Signer      *signing.Signer
	Producer    queue.Producer
	Log         *logger.Logger
}

// NewServer constructs the gin router with the full Pragma Node route set.
func NewServer(cfg config.APIConfig, wsCfg config.WSConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		db:          deps.DB,
		cache:       deps.Cache,
		indexPricer: deps.IndexPricer,
		resolver:    deps.Resolver,
		decimals:    deps.Decimals,
		signer:      deps.Signer,
		producer:    deps.Producer,
		log:         deps.Log,
		router:      router,
		publishRL:   newPerIPLimiter(rate.Limit(cfg.PublishRate), cfg.PublishBurst),
		wsConfig:    wsCfg,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	corsConfig := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = s.cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	s.router.Use(cors.New(corsConfig))

	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		s.log.Info("api request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
		)

		apiRequestsTotal.WithLabelValues(c.Request.Method, path, fmt.Sprintf("%d", status)).Inc()
		apiRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration.Seconds())
	})

	s.router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.router.GET("/node", s.handleLiveness)

	v1 := s.router.Group("/node/v1")
	{
		data := v1.Group("/data")
		{
			data.POST("/publish", s.publishRateLimit(), s.handlePublish)
			data.GET("/:base/:quote", s.handleGetMedian)
			data.GET("/subscribe", s.handleSubscribe)
		}
		v1.GET("/onchain/:base/:quote", s.handleGetOnchain)
	}
}

func (s *Server) handleLiveness(c *gin.Context) {
	c.String(http.StatusOK, "Server is running!")
}

// writeAPIError renders the taxonomy error JSON body {resource, message,
// happened_at} at the appropriate HTTP status.
func writeAPIError(c *gin.Context, err error) {
	if apiErr, ok := err.(*apierr.Error); ok {
		c.JSON(apiErr.StatusCode(), apiErr.ToBody(time.Now()))
		return
	}
	c.JSON(http.StatusInternalServerError, apierr.Body{
		Resource:   "Unknown",
		Message:    err.Error(),
		HappenedAt: time.Now(),
	})
}

// Start runs the HTTP server until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.router,
	}
	s.log.Info("starting API server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("stopping API server")
	return s.httpServer.Shutdown(ctx)
}
