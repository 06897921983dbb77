package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"github.com/shanjith1316/Capstone-Project/internal/config"
	"github.com/shanjith1316/Capstone-Project/internal/server"
	"github.com/shanjith1316/Capstone-Project/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components and manages the server lifecycle so that
// deferred cleanup executes before the process exits.
func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("closing BadgerDB")
		_ = db.Close()
	}()

	st := store.NewStore(db, log)
	registry := server.NewRegistry()
	presence := server.NewPresence(registry, log)
	names := server.NewUsernameCache(st, log)
	router := server.NewRouter(st, names, registry, log)
	hub := server.NewHub(registry, presence, router, server.Limits{
		MaxMessageSize: cfg.MaxMessageSize,
		RateBurst:      cfg.RateLimitBurst,
		RateRefill:     cfg.RateLimitRefill,
	}, log)

	api := server.NewAPI(st, hub, names, server.APIConfig{
		JWTSecret:      cfg.JWTSecret,
		TokenTTL:       cfg.TokenTTL,
		AllowedOrigins: cfg.Origins(),
	}, log)

	go hub.Run()
	log.Info("hub started")

	httpServer := server.CreateServer(cfg.Port, api.Routes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Port)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn("hub shutdown incomplete", "error", err)
	}
	return nil
}
