package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mpetrenko/authgate/internal/blacklist"
	"github.com/mpetrenko/authgate/internal/db"
	"github.com/mpetrenko/authgate/internal/handlers"
	"github.com/mpetrenko/authgate/internal/logger"
	"github.com/mpetrenko/authgate/internal/repository/postgres"
	"github.com/mpetrenko/authgate/internal/service/auth"
	"github.com/mpetrenko/authgate/internal/service/auth/tokenmanager"
	"github.com/mpetrenko/authgate/internal/service/sweeper"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	sweeper *sweeper.Sweeper
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Connect to redis that backs the access token blacklist
	redisClient := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
	}

	// Initialize repositories and stores
	storage := postgres.NewStorage(pool)
	tokenBlacklist := blacklist.NewStore(redisClient, "")

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey}, storage.Refresh())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	authService, err := auth.NewService(auth.Config{}, tokenManager, storage.User(), tokenBlacklist)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	// Schedule the expired refresh token sweep
	tokenSweeper := sweeper.New(storage.Refresh(), logger)
	if err := tokenSweeper.Start(c.SweepSchedule); err != nil {
		return nil, fmt.Errorf("error while starting token sweeper. Err: %w", err)
	}

	mux := handlers.NewRouter(authService, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		sweeper:    tokenSweeper,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server")
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if s.sweeper != nil {
		s.sweeper.Stop()
	}

	return err
}
