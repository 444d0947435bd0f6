package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/threadline/internal/api/auth"
	"github.com/threadline/internal/config"
	"github.com/threadline/internal/database"
	"github.com/threadline/internal/jobqueue"
	"github.com/threadline/internal/notification"
	"github.com/threadline/internal/ratelimit"
	"github.com/threadline/internal/realtime"
	"github.com/threadline/internal/thread"
)

// Server wires the HTTP surface over the thread and notification services.
type Server struct {
	echo  *echo.Echo
	port  int
	db    *sql.DB
	queue *jobqueue.Queue

	threads       *thread.Service
	notifications *notification.Repository
	authHandlers  *auth.Handlers
	tokenService  *auth.TokenService

	threadPageSize       int
	notificationPageSize int
}

// NewServer builds the full service graph from the configuration: database,
// schema, Redis dispatcher, River publish queue, repositories, and routes.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}

	notificationRepo := notification.NewRepository(db)

	// Realtime delivery is best-effort: a dead Redis degrades to polling, so
	// a failed connection logs and the server still comes up.
	var dispatcher realtime.Dispatcher
	redisClient, err := realtime.NewRedisClient(ctx, realtime.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).
			Msg("redis unavailable, realtime delivery disabled")
	} else {
		dispatcher = realtime.NewRedisDispatcher(redisClient)
	}

	var queue *jobqueue.Queue
	if dispatcher != nil {
		queue, err = jobqueue.NewQueue(cfg.Database.URL, notificationRepo, dispatcher)
		if err != nil {
			return nil, fmt.Errorf("failed to create publish queue: %w", err)
		}
	}

	threadRepo := thread.NewRepository(db)
	fanout := notification.NewFanout(notificationRepo, threadRepo, cfg.Notifications.FanoutLimit)
	limiter := ratelimit.NewSlidingWindow()

	var publishQueue thread.PublishQueue
	if queue != nil {
		publishQueue = queue
	}
	threadService := thread.NewService(threadRepo, fanout, limiter, publishQueue, cfg.Limits.NodesPerMinute)

	tokenService := auth.NewTokenService(db, cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	authHandlers := auth.NewHandlers(db, tokenService, limiter,
		cfg.Limits.RegistrationsPerHour, cfg.Limits.LoginsPerMinute)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:                 e,
		port:                 cfg.Server.Port,
		db:                   db,
		queue:                queue,
		threads:              threadService,
		notifications:        notificationRepo,
		authHandlers:         authHandlers,
		tokenService:         tokenService,
		threadPageSize:       cfg.Threads.PageSize,
		notificationPageSize: cfg.Notifications.PageSize,
	}

	server.setupRoutes()

	return server, nil
}

// setupRoutes configures all API endpoints.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	v1.POST("/auth/register", s.authHandlers.Register)
	v1.POST("/auth/login", s.authHandlers.Login)

	protected := v1.Group("", auth.RequireAuth(s.tokenService))

	protected.GET("/threads/:subjectId/nodes", s.listNodes)
	protected.POST("/threads/:subjectId/nodes", s.createNode)
	protected.PUT("/nodes/:id", s.updateNode)
	protected.DELETE("/nodes/:id", s.deleteNode)

	protected.GET("/notifications", s.listNotifications)
	protected.GET("/notifications/unread_count", s.unreadCount)
	protected.PUT("/notifications/:id/read", s.markNotificationRead)
}

// Start runs the queue workers and the HTTP listener, then blocks until an
// interrupt triggers graceful shutdown.
func (s *Server) Start() error {
	ctx := context.Background()

	if s.queue != nil {
		if err := s.queue.Start(ctx); err != nil {
			return fmt.Errorf("failed to start publish queue: %w", err)
		}
	}

	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Int("port", s.port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if s.queue != nil {
		if err := s.queue.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("queue shutdown failed")
		}
	}

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return s.db.Close()
}
