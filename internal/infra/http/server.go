package http

import (
	"net/http"
	"time"

	"ledgerd/internal/config"
	"ledgerd/internal/domain"
	"ledgerd/internal/infra/db"
	"ledgerd/internal/infra/metrics"
	"ledgerd/internal/infra/ratelimit"
	"ledgerd/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	cfg config.Config
	r   *gin.Engine

	ingest      *usecase.IngestService
	policies    *usecase.PolicyService
	rehydrate   *usecase.RehydrateService
	revocations *usecase.RevocationService

	anchors domain.AnchorRepository
	proofs  domain.ProofRepository

	metrics  *metrics.Metrics
	registry *prometheus.Registry

	adminAPIKey string
	healthCheck func() error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Ingest      *usecase.IngestService
	Policies    *usecase.PolicyService
	Rehydrate   *usecase.RehydrateService
	Revocations *usecase.RevocationService
	Anchors     domain.AnchorRepository
	Proofs      domain.ProofRepository
	Metrics     *metrics.Metrics
	Registry    *prometheus.Registry
	AdminAPIKey string
	HealthCheck func() error
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		r:           r,
		ingest:      deps.Ingest,
		policies:    deps.Policies,
		rehydrate:   deps.Rehydrate,
		revocations: deps.Revocations,
		anchors:     deps.Anchors,
		proofs:      deps.Proofs,
		metrics:     deps.Metrics,
		registry:    deps.Registry,
		adminAPIKey: deps.AdminAPIKey,
		healthCheck: deps.HealthCheck,
	}
	if s.adminAPIKey == "" {
		s.adminAPIKey = cfg.AdminAPIKey
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

// NewServer wires the server from a live store, the production path.
func NewServer(cfg config.Config, store *db.Store, deps ServerDeps) *Server {
	if store != nil && store.DB != nil {
		if deps.Anchors == nil {
			deps.Anchors = db.NewAnchorRepository(store.DB)
		}
		if deps.Proofs == nil {
			deps.Proofs = db.NewProofRepository(store.DB)
		}
		if deps.HealthCheck == nil {
			deps.HealthCheck = store.Ping
		}
	}
	return NewServerWithDeps(cfg, deps)
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(ratelimit.RedisLimiterConfig{
				Addr:     s.cfg.RedisAddr,
				Password: s.cfg.RedisPassword,
				DB:       s.cfg.RedisDB,
			}); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealthz)
	if s.registry != nil {
		s.r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	s.r.PUT("/receipts", s.observe("receipts_put", s.handlePutReceipts))
	s.r.PUT("/policy", s.observe("policy_put", s.handlePutPolicy))
	s.r.GET("/policy/:tenant_id", s.observe("policy_get", s.handleGetPolicy))
	s.r.GET("/audit/rehydrate", s.observe("rehydrate", s.handleRehydrate))
	s.r.POST("/revocations", s.observe("revocations_post", s.handlePostRevocation))
	s.r.GET("/anchors/:anchor_id", s.observe("anchors_get", s.handleGetAnchor))

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) observe(endpoint string, handler gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		handler(c)
		if s.metrics != nil {
			s.metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	if s.healthCheck != nil {
		if err := s.healthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}
