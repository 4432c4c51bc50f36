// Package api exposes the focusmunk configuration service over HTTP.
// The routes and JSON shapes match what the browser extension speaks.
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/focusmunk/focusmunkd/internal/accountant"
	"github.com/focusmunk/focusmunkd/internal/config"
	"github.com/focusmunk/focusmunkd/internal/youtube"
)

// Server is the public API HTTP server.
type Server struct {
	accountant *accountant.Service
	youtube    *youtube.Client
	setupCode  string
	server     *http.Server
	router     *gin.Engine
	logger     zerolog.Logger
	listener   net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates the API server with all routes and middleware wired.
func NewServer(
	cfg config.Config,
	svc *accountant.Service,
	yt *youtube.Client,
	logger zerolog.Logger,
) (*Server, error) {
	if logger.GetLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	window, err := time.ParseDuration(cfg.API.RateLimitWindow)
	if err != nil {
		window = time.Minute
	}

	componentLogger := logger.With().Str("component", "api").Logger()

	// Router without default middleware; we log through zerolog.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggingMiddleware(componentLogger))
	router.Use(MetricsMiddleware())
	router.Use(CORSMiddleware(cfg.API.CORSAllowedOrigins))
	router.Use(RateLimitMiddleware(NewRateLimiter(cfg.API.RateLimit, window)))

	s := &Server{
		accountant: svc,
		youtube:    yt,
		setupCode:  cfg.Auth.SetupCode,
		router:     router,
		logger:     componentLogger,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.HTTPPort)),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.POST("/config", s.handleCreateConfig)
	s.router.GET("/config/:id", s.handleGetConfig)
	s.router.PUT("/config/:id", s.handleUpdateConfig)
	s.router.POST("/config/:id/verify", s.handleVerifyPassword)
	s.router.POST("/config/:id/change-password", s.handleChangePassword)
	s.router.POST("/config/:id/start-free-time", s.handleStartFreeTime)
	s.router.POST("/config/:id/end-free-time", s.handleEndFreeTime)
	s.router.POST("/config/:id/temporary-disable", s.handleTemporaryDisable)
	s.router.POST("/config/:id/cancel-disable", s.handleCancelDisable)
	s.router.POST("/setup-code/verify", s.handleVerifySetupCode)
	s.router.GET("/youtube-info", s.handleYouTubeInfo)
	s.router.GET("/health", s.handleHealth)
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Fatal().Err(err).Msg("API server failed")
		}
	}()
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}
