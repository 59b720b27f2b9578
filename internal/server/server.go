// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/AuraquanTech/paytrust/internal/checkout"
	"github.com/AuraquanTech/paytrust/internal/circuitbreaker"
	"github.com/AuraquanTech/paytrust/internal/config"
	"github.com/AuraquanTech/paytrust/internal/fraud"
	"github.com/AuraquanTech/paytrust/internal/health"
	"github.com/AuraquanTech/paytrust/internal/logging"
	"github.com/AuraquanTech/paytrust/internal/metrics"
	"github.com/AuraquanTech/paytrust/internal/ratelimit"
	"github.com/AuraquanTech/paytrust/internal/realtime"
	"github.com/AuraquanTech/paytrust/internal/review"
	"github.com/AuraquanTech/paytrust/internal/security"
	"github.com/AuraquanTech/paytrust/internal/traces"
	"github.com/AuraquanTech/paytrust/internal/validation"
	"github.com/AuraquanTech/paytrust/internal/webhook"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	db          *sql.DB // nil if using in-memory
	engine      *fraud.Engine
	windows     fraud.WindowStore
	audit       fraud.AuditStore
	guard       *checkout.Guard
	queue       *review.Queue
	hub         *realtime.Hub
	charger     checkout.Charger
	rateLimiter *ratelimit.Limiter
	checks      *health.Registry
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCharger sets a custom charger (for testing)
func WithCharger(c checkout.Charger) Option {
	return func(s *Server) {
		s.charger = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		checks: health.NewRegistry(),
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.shutdownTraces = shutdownTraces

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var reviewStore review.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.windows = fraud.NewPostgresWindowStore(db)
		s.audit = fraud.NewPostgresAuditStore(db)
		reviewStore = review.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.checks.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.windows = fraud.NewMemoryWindowStore()
		s.audit = fraud.NewMemoryAuditStore()
		reviewStore = review.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Fraud engine
	analyzer := fraud.NewEmailAnalyzer(cfg.DisposableDomains)
	s.engine = fraud.NewEngine(s.windows, s.audit, analyzer, policyFromConfig(cfg))
	s.logger.Info("fraud scoring enabled",
		"velocity_per_minute", cfg.VelocityLimitPerMinute,
		"velocity_per_hour", cfg.VelocityLimitPerHour,
		"spending_limit_cents", cfg.SpendingLimitCents,
	)

	// Review queue
	s.queue = review.NewQueue(reviewStore)

	// Decision feed
	s.hub = realtime.NewHub(s.logger)
	s.logger.Info("decision feed enabled")

	// Charger: Stripe when credentials are configured, otherwise no-op.
	// Real chargers sit behind a circuit breaker so a provider outage
	// sheds load instead of stacking up timeouts.
	if s.charger == nil {
		if cfg.StripeSecretKey != "" {
			breaker := circuitbreaker.New(5, 30*time.Second)
			s.charger = checkout.NewBreakerCharger(
				checkout.NewStripeCharger(cfg.StripeSecretKey, cfg.Currency),
				breaker,
				"stripe",
			)
			s.logger.Info("stripe charging enabled", "currency", cfg.Currency)
		} else {
			s.charger = checkout.NoopCharger{}
			s.logger.Warn("no payment credentials configured, checkouts proceed uncharged")
		}
	}

	s.guard = checkout.NewGuard(s.engine, s.charger, s.queue, s.hub)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// policyFromConfig maps the environment-driven config onto the engine policy.
func policyFromConfig(cfg *config.Config) fraud.Policy {
	return fraud.Policy{
		VelocityLimitPerMinute: cfg.VelocityLimitPerMinute,
		VelocityLimitPerHour:   cfg.VelocityLimitPerHour,
		SpendingLimitCents:     cfg.SpendingLimitCents,
		MicroAmountCents:       cfg.MicroAmountCents,
		LargeAmountCents:       cfg.LargeAmountCents,

		WeightVelocityMinute: cfg.WeightVelocityMinute,
		WeightVelocityHour:   cfg.WeightVelocityHour,
		WeightMicroAmount:    cfg.WeightMicroAmount,
		WeightLargeAmount:    cfg.WeightLargeAmount,
		WeightSpendingLimit:  cfg.WeightSpendingLimit,
		WeightDisposable:     cfg.WeightDisposable,
		WeightEmailPattern:   cfg.WeightEmailPattern,
		WeightRoundAmount:    cfg.WeightRoundAmount,

		ThresholdLow:  cfg.ScoreThresholdLow,
		ThresholdHigh: cfg.ScoreThresholdHigh,
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/", s.infoHandler)

	// WebSocket decision feed
	s.router.GET("/ws/decisions", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")

	// Gateway webhook intake. The fulfiller dedupes by event ID for as
	// long as the replay guard accepts a timestamp on either side of now.
	verifier := webhook.NewVerifier(s.cfg.WebhookSecret)
	guard := webhook.NewReplayGuard(s.cfg.ReplayTolerance)
	fulfiller := checkout.NewFulfiller(s.hub, 2*guard.Tolerance())
	webhook.NewHandler(verifier, guard, fulfiller, s.cfg.SignatureHeader).RegisterRoutes(v1)

	// Merchant checkout API
	checkout.NewHandler(s.guard).RegisterRoutes(v1)

	// Fraud operations surface
	fraud.NewHandler(s.engine, s.audit, s.hub).RegisterRoutes(v1)

	// Manual review queue
	review.NewHandler(s.queue, s.hub).RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Paytrust",
		"description": "Payment-event trust layer: webhook verification, replay protection, and fraud scoring",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start decision feed hub
	go s.hub.Run(runCtx)

	// Runtime metrics collection
	go metrics.CollectRuntime(runCtx, s.db, 15*time.Second)

	// Periodic window pruning (Postgres only; memory windows prune inline)
	if pruner, ok := s.windows.(*fraud.PostgresWindowStore); ok {
		go s.runWindowPruner(runCtx, pruner)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// runWindowPruner deletes expired window events on an interval.
func (s *Server) runWindowPruner(ctx context.Context, store *fraud.PostgresWindowStore) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PruneExpired(ctx)
			if err != nil {
				s.logger.Warn("window prune failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("pruned expired window events", "deleted", n)
			}
		}
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, pruner, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
