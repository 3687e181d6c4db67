// Package server wires configuration, storage, the ledger adapter, and the
// HTTP API together.
package server

import (
	"context"
	"database/sql"
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

	"github.com/agrilock/agrilock/internal/config"
	"github.com/agrilock/agrilock/internal/escrow"
	"github.com/agrilock/agrilock/internal/farmer"
	"github.com/agrilock/agrilock/internal/health"
	"github.com/agrilock/agrilock/internal/idgen"
	"github.com/agrilock/agrilock/internal/logging"
	"github.com/agrilock/agrilock/internal/metrics"
	"github.com/agrilock/agrilock/internal/ratelimit"
	"github.com/agrilock/agrilock/internal/retry"
	"github.com/agrilock/agrilock/internal/security"
	"github.com/agrilock/agrilock/internal/traces"
	"github.com/agrilock/agrilock/internal/validation"
	"github.com/agrilock/agrilock/internal/verification"
	"github.com/agrilock/agrilock/internal/xrpl"
)

// ledgerStatus is the read side of the ledger used by status and health
// endpoints. Both the real adapter and the demo stub satisfy it.
type ledgerStatus interface {
	IsConnected() bool
	Balance(ctx context.Context, address string) (int64, error)
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db         *sql.DB // nil when using in-memory stores
	xrplClient *xrpl.Client
	ledger     escrow.Ledger
	status     ledgerStatus

	escrows       *escrow.Service
	farmers       *farmer.Service
	verifications *verification.Service
	sweeper       *escrow.Sweeper

	rateLimiter   *ratelimit.Limiter
	healthReg     *health.Registry
	router        *gin.Engine
	httpSrv       *http.Server
	shutdownTrace func(context.Context) error
	cancelRunCtx  context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithLedger injects a ledger implementation (for testing).
func WithLedger(l escrow.Ledger) Option {
	return func(s *Server) { s.ledger = l }
}

// New creates a server instance: storage, ledger connection, services, and
// routes. It does not start listening; call Run.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	shutdownTrace, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	s.shutdownTrace = shutdownTrace

	var (
		escrowStore escrow.Store
		farmerStore farmer.Store
		verifyStore verification.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}

		s.db = db
		escrowStore = escrow.NewPostgresStore(db)
		farmerStore = farmer.NewPostgresStore(db)
		verifyStore = verification.NewPostgresStore(db)
		s.healthReg.Register("postgres", s.checkPostgres)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		escrowStore = escrow.NewMemoryStore()
		farmerStore = farmer.NewMemoryStore()
		verifyStore = verification.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	if s.ledger == nil {
		if cfg.LedgerEnabled() {
			client := xrpl.NewClient(cfg.XRPLURL, cfg.LedgerTimeout)
			err := retry.Do(ctx, 5, time.Second, func() error {
				return client.Connect(ctx)
			})
			if err != nil {
				return nil, fmt.Errorf("connect to xrpl: %w", err)
			}
			adapter := xrpl.NewAdapter(client, xrpl.Wallet{
				Address: cfg.NGOWalletAddress,
				Seed:    cfg.NGOWalletSeed,
			}, cfg.LedgerTimeout)

			s.xrplClient = client
			s.ledger = adapter
			s.status = adapter
			s.healthReg.Register("xrpl", s.checkXRPL)
			s.logger.Info("xrpl ledger enabled", "url", cfg.XRPLURL, "wallet", cfg.NGOWalletAddress)
		} else {
			stub := newStubLedger()
			s.ledger = stub
			s.status = stub
			s.logger.Warn("no NGO wallet configured; using simulated ledger")
		}
	}
	if s.status == nil {
		if st, ok := s.ledger.(ledgerStatus); ok {
			s.status = st
		}
	}

	// The directory closes the farmer<->escrow loop without a package cycle:
	// its service pointer is filled in once both sides exist.
	dir := &farmerDirectory{}
	s.verifications = verification.NewService(verifyStore)
	s.escrows = escrow.NewService(escrowStore, dir, s.ledger, s.verifications, cfg.FinishGrace, cfg.CancelBuffer)
	s.farmers = farmer.NewService(farmerStore, s.escrows)
	dir.svc = s.farmers

	s.sweeper = escrow.NewSweeper(s.escrows, time.Minute)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// farmerDirectory adapts farmer.Service to the escrow engine's directory
// interface.
type farmerDirectory struct {
	svc *farmer.Service
}

func (d *farmerDirectory) FindPayee(ctx context.Context, farmerID string) (*escrow.Payee, error) {
	if d.svc == nil {
		return nil, escrow.ErrFarmerNotFound
	}
	f, err := d.svc.Get(ctx, farmerID)
	if errors.Is(err, farmer.ErrNotFound) {
		return nil, escrow.ErrFarmerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &escrow.Payee{ID: f.ID, PayoutAddress: f.WalletAddress}, nil
}

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

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         20,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
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
				"method", c.Request.Method, "path", path, "status", status,
				"latency_ms", latency.Milliseconds(), "client_ip", c.ClientIP())
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method, "path", path, "status", status,
				"latency_ms", latency.Milliseconds())
		default:
			logger.Info("request completed",
				"method", c.Request.Method, "path", path, "status", status,
				"latency_ms", latency.Milliseconds())
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	escrow.NewHandler(s.escrows).RegisterRoutes(v1)
	farmer.NewHandler(s.farmers).RegisterRoutes(v1)
	verification.NewHandler(s.verifications).RegisterRoutes(v1)

	v1.GET("/ledger/status", s.ledgerStatusHandler)
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
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

// ledgerStatusHandler reports XRPL connectivity and the NGO wallet balance.
func (s *Server) ledgerStatusHandler(c *gin.Context) {
	out := gin.H{
		"enabled":   s.cfg.LedgerEnabled(),
		"connected": s.status.IsConnected(),
		"endpoint":  s.cfg.XRPLURL,
	}

	if s.status.IsConnected() && s.cfg.NGOWalletAddress != "" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if drops, err := s.status.Balance(ctx, s.cfg.NGOWalletAddress); err == nil {
			out["walletAddress"] = s.cfg.NGOWalletAddress
			out["balanceDrops"] = drops
			out["balance"] = xrpl.FormatXRP(drops)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) checkPostgres(ctx context.Context) health.Status {
	if err := s.db.PingContext(ctx); err != nil {
		return health.Status{Name: "postgres", Healthy: false, Detail: err.Error()}
	}
	return health.Status{Name: "postgres", Healthy: true}
}

func (s *Server) checkXRPL(ctx context.Context) health.Status {
	if !s.status.IsConnected() {
		return health.Status{Name: "xrpl", Healthy: false, Detail: "websocket disconnected"}
	}
	return health.Status{Name: "xrpl", Healthy: true}
}

// Run starts the HTTP server and background workers, blocking until a
// shutdown signal or fatal error.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.sweeper.Start(logging.WithLogger(runCtx, s.logger))

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

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

// Shutdown gracefully stops the server and its background workers.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.sweeper.Stop()
	s.logger.Info("expiry sweeper stopped")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.xrplClient != nil {
		if err := s.xrplClient.Close(); err != nil {
			s.logger.Error("xrpl close error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	if s.shutdownTrace != nil {
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
