package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/KiritiVelivela/chess-multiplayer/internal/archive"
	"github.com/KiritiVelivela/chess-multiplayer/internal/auth"
	"github.com/KiritiVelivela/chess-multiplayer/internal/challenge"
	appcfg "github.com/KiritiVelivela/chess-multiplayer/internal/config"
	"github.com/KiritiVelivela/chess-multiplayer/internal/game"
	"github.com/KiritiVelivela/chess-multiplayer/internal/msgcat"
	"github.com/KiritiVelivela/chess-multiplayer/internal/notify"
	"github.com/KiritiVelivela/chess-multiplayer/internal/obslog"
	"github.com/KiritiVelivela/chess-multiplayer/internal/presence"
	"github.com/KiritiVelivela/chess-multiplayer/internal/registry"
	"github.com/KiritiVelivela/chess-multiplayer/internal/store"
	"github.com/KiritiVelivela/chess-multiplayer/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	rdb, err := store.Dial(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis_connect_error", zap.Error(err))
	}
	st := store.New(rdb, cfg.RecordTTL)

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		logger.Fatal("auth_init_error", zap.Error(err))
	}
	cat, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		logger.Fatal("msgcat_init_error", zap.Error(err))
	}

	reg := registry.New(logger)
	notifier := notify.New(st, reg, logger)
	presenceB := presence.NewBroadcaster(st, reg, logger)
	games := game.NewCoordinator(st, reg, notifier, logger)
	challenges := challenge.NewCoordinator(st, notifier, logger)

	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive_init_error", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
		games.AttachArchive(repo)
	}

	server := ws.NewServer(ws.Deps{
		Verifier:      verifier,
		Registry:      reg,
		Games:         games,
		Challenges:    challenges,
		Presence:      presenceB,
		Notifier:      notifier,
		Catalog:       cat,
		Logger:        logger,
		SendQueueSize: cfg.SendQueueSize,
	})

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	})
	server.Routes(r)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listen", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_error", zap.Error(err))
	}
	_ = rdb.Close()
	logger.Info("stopped")
}
