package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/rc4-stream-go/internal/auth"
	"github.com/rc4-stream-go/internal/cache"
	"github.com/rc4-stream-go/internal/config"
	"github.com/rc4-stream-go/internal/dao"
	"github.com/rc4-stream-go/internal/handler"
	"github.com/rc4-stream-go/internal/storage"
	"github.com/rc4-stream-go/web"
)

// Server is the HTTP front end of the cipher engine
type Server struct {
	cfg        *config.Config
	store      *storage.Store
	journal    storage.Journal
	attempts   *cache.Attempts
	router     *gin.Engine
	httpServer *http.Server
}

// New creates a new server instance
func New(cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	// bbolt is opened once and shared by the user store and a bolt journal
	if cfg.Auth.Enable || (cfg.Journal.Enable && cfg.Journal.Driver == "bolt") {
		store, err := storage.OpenStore(cfg.DataDir, cfg.Journal.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		s.store = store
		log.Info().Str("path", store.Path()).Msg("Store opened")
	}

	journal, err := storage.Open(cfg, s.store)
	if err != nil {
		s.closeStore()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	s.journal = journal

	if err := s.setupRoutes(); err != nil {
		s.journal.Close()
		s.closeStore()
		return nil, err
	}
	return s, nil
}

func (s *Server) setupRoutes() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	s.router = r

	r.Use(TraceMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gzip.Gzip(gzip.BestSpeed, gzip.WithExcludedPaths([]string{"/api/rc4/transform"})))

	r.GET("/health", HealthHandler)
	r.GET("/ready", s.ReadyHandler)

	r.StaticFS("/public", web.GetFileSystem())
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/public/")
	})

	rc4Handler := handler.NewRC4Handler(s.cfg, s.journal)

	api := r.Group("/api")
	if s.cfg.Auth.Enable {
		jwtAuth := auth.NewJWTAuth(s.cfg.JWTSecret, s.jwtExpire())
		userDAO := dao.NewUserDAO(s.store)
		if err := userDAO.EnsureDefaultUser(s.cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("failed to ensure default user: %w", err)
		}
		s.attempts = cache.NewAttempts(5*time.Minute, handler.MaxLoginFailures)
		authHandler := handler.NewAuthHandler(jwtAuth, userDAO, s.attempts)

		api.POST("/login", authHandler.Login)
		api.Use(handler.RequireToken(jwtAuth))
		api.POST("/password", authHandler.ChangePassword)
	}

	api.GET("/rc4/algorithms", rc4Handler.Algorithms)
	api.POST("/rc4/encrypt", rc4Handler.Encrypt)
	api.POST("/rc4/decrypt", rc4Handler.Decrypt)
	api.POST("/rc4/transform", rc4Handler.Transform)
	api.GET("/journal", rc4Handler.Journal)
	return nil
}

func (s *Server) jwtExpire() time.Duration {
	hours := s.cfg.JWTExpire
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// Handler returns the root handler, wrapped for h2c when enabled
func (s *Server) Handler() http.Handler {
	if !s.cfg.IsH2CEnabled() {
		return s.router
	}
	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          120 * time.Second,
	}
	return h2c.NewHandler(s.router, h2s)
}

// Start listens until the server is shut down
func (s *Server) Start() error {
	addr := s.cfg.GetHTTPAddr()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Bool("h2c", s.cfg.IsH2CEnabled()).
		Bool("auth", s.cfg.Auth.Enable).
		Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server...")

	var lastErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			lastErr = err
		}
	}
	if s.attempts != nil {
		s.attempts.Close()
	}
	if err := s.journal.Close(); err != nil {
		lastErr = err
	}
	if err := s.closeStore(); err != nil {
		lastErr = err
	}
	return lastErr
}

func (s *Server) closeStore() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
