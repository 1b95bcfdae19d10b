package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/angelzd27/api-ruptela/internal/admin"
	"github.com/angelzd27/api-ruptela/internal/config"
	"github.com/angelzd27/api-ruptela/internal/fanout"
	"github.com/angelzd27/api-ruptela/internal/normalize"
	"github.com/angelzd27/api-ruptela/internal/server"
	"github.com/angelzd27/api-ruptela/internal/session"
)

func main() {
	level := slog.LevelInfo
	cfg := config.Load()
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting gateway", "config", cfg.String())

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL, DB: 0})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to redis")

	natsConn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logger.Error("failed to connect to nats", "error", err)
		os.Exit(1)
	}
	defer natsConn.Close()
	logger.Info("connected to nats")

	registry := session.NewRegistry()
	subs := fanout.NewSubscriberSet()
	window := normalize.NewRecentWindow()

	gw := server.New(cfg, registry, subs, window, redisClient, natsConn, logger)
	if err := gw.Start(); err != nil {
		logger.Error("failed to start listeners", "error", err)
		os.Exit(1)
	}

	adminHandler := admin.NewHandler(cfg.GatewayID, registry, subs)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: adminHandler.Mux(),
	}
	go func() {
		logger.Info("admin http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin http server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	gw.Stop()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	httpServer.Shutdown(shutdownCtx)
}
