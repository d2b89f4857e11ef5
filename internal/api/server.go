package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"custody-platform/internal/accounts"
	"custody-platform/internal/auth"
	"custody-platform/internal/database"
	"custody-platform/internal/funds"
	"custody-platform/internal/gift"
	"custody-platform/internal/notification"
	"custody-platform/internal/settlement"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	repo        *database.Repository
	accounts    *accounts.Service
	funds       *funds.Manager
	gifts       *gift.Manager
	engine      *settlement.Engine
	hub         *notification.Hub // nil when websocket notifications are disabled
	jwtManager  *auth.JWTManager
	config      ServerConfig
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins string
	ProductionMode bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	repo *database.Repository,
	accountService *accounts.Service,
	fundManager *funds.Manager,
	giftManager *gift.Manager,
	engine *settlement.Engine,
	hub *notification.Hub, // Can be nil if websocket notifications are disabled
	jwtManager *auth.JWTManager,
	logger zerolog.Logger,
) *Server {
	// Set Gin mode
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if config.AllowedOrigins == "" || config.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(config.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		repo:        repo,
		accounts:    accountService,
		funds:       fundManager,
		gifts:       giftManager,
		engine:      engine,
		hub:         hub,
		jwtManager:  jwtManager,
		config:      config,
		rateLimiter: NewRateLimiter(120, time.Minute), // 120 requests per minute per endpoint
		logger:      logger.With().Str("component", "api").Logger(),
	}

	server.setupRoutes()

	return server
}

// rateLimitMiddleware creates a middleware that rate limits requests by endpoint
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests to this endpoint. Please slow down.",
				"path":    path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Public routes (no authentication required)
	public := s.router.Group("/api")
	public.Use(s.rateLimitMiddleware())
	{
		public.POST("/accounts/register", s.handleRegister)
		public.POST("/auth/login", s.handleLogin)
	}

	// Protected routes
	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	api.Use(auth.Middleware(s.jwtManager))
	{
		// Account endpoints
		api.GET("/accounts/me", s.handleGetAccount)
		api.DELETE("/accounts/me", s.handleCloseAccount)
		api.GET("/accounts/me/balances", s.handleGetBalances)

		// Fund endpoints
		api.POST("/funds/deposit", s.handleDeposit)
		api.POST("/funds/withdraw", s.handleWithdraw)

		// Gift balance endpoints
		api.GET("/gift/balance", s.handleGetGiftBalance)

		// Settlement endpoints
		api.POST("/settlement/accrue", s.handleAccrue)
		api.POST("/settlement/settle", s.handleSettle)
		api.GET("/settlement/history", s.handleGetSettlementHistory)

		// Ledger endpoints
		api.GET("/ledger/history", s.handleGetLedgerHistory)

		// Websocket notifications
		if s.hub != nil {
			api.GET("/ws/notifications", s.handleWebSocket)
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	readTimeout := s.config.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := s.config.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 15 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.repo.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "healthy",
		"time":     time.Now().Format(time.RFC3339),
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
