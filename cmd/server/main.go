package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/machiavelli/internal/auth"
	"github.com/freeeve/machiavelli/internal/config"
	"github.com/freeeve/machiavelli/internal/handler"
	"github.com/freeeve/machiavelli/internal/logger"
	"github.com/freeeve/machiavelli/internal/middleware"
	redisrepo "github.com/freeeve/machiavelli/internal/repository/redis"
	"github.com/freeeve/machiavelli/internal/repository/store"
	"github.com/freeeve/machiavelli/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(logger.Options{})
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Dev: cfg.Dev})
	log.Info().Str("backend", cfg.StoreBackend).Dur("schedulerInterval", cfg.SchedulerInterval).
		Dur("leaseTTL", cfg.LeaseTTL).Bool("seededDice", cfg.DiceSeed != 0).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Game store
	gameStore, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Game store connection failed")
	}
	defer closeStore()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	if err := redisClient.EnableExpiryEvents(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications, relying on the poller")
	}

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	turnSvc := service.NewTurnService(gameStore, redisClient, wsHub)
	turnSvc.SetDice(service.SeededDice(cfg.DiceSeed))
	turnSvc.SetLeaseTTL(cfg.LeaseTTL)
	orderSvc := service.NewOrderService(gameStore, wsHub)

	// Deadline scheduler
	timerListener := service.NewTimerListener(redisClient.Underlying(), turnSvc, gameStore, cfg.SchedulerInterval)

	// Handlers
	gameHandler := handler.NewGameHandler(turnSvc)
	orderHandler := handler.NewOrderHandler(orderSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, turnSvc)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	api := http.NewServeMux()
	api.HandleFunc("GET /games/{id}", gameHandler.GetGame)
	api.HandleFunc("GET /games/{id}/history", gameHandler.History)
	api.HandleFunc("POST /games/{id}/advance", gameHandler.ForceAdvance)
	api.HandleFunc("POST /games/{id}/orders", orderHandler.SubmitOrders)
	api.HandleFunc("POST /games/{id}/votes", orderHandler.CastVote)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	root := middleware.Chain(mux, middleware.Recover, middleware.Logger, middleware.CORS(cfg.CORSOrigins), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
