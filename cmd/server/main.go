package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/auth"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/chatapi"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/config"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/handlers"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/logger"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/services"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/session"
	"github.com/Monica-b-mb/mentorpulse-sub000/internal/websocket"
)

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.LogDev)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	for _, w := range cfg.Warnings() {
		zl.Warn(w)
	}

	self, err := auth.Identity(cfg.AuthToken)
	if err != nil {
		zl.Fatal("cannot identify current user", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := chatapi.NewClient(chatapi.Options{
		BaseURL:         cfg.APIBaseURL,
		Token:           cfg.AuthToken,
		Timeout:         cfg.APITimeout,
		RetryMaxElapsed: cfg.APIRetryMaxElapsed,
		Logger:          zl.Named("chatapi"),
	})

	conn := websocket.NewManager(websocket.Options{
		URL:          cfg.WSURL,
		MaxAttempts:  cfg.MaxReconnectAttempts,
		InitialDelay: cfg.ReconnectDelay,
		MaxDelay:     cfg.ReconnectMaxDelay,
		Logger:       zl.Named("websocket"),
	})

	sess := session.New(self, api, conn, session.Options{
		MatchTolerance: cfg.MatchTolerance,
		ResyncInterval: cfg.ResyncInterval,
		Services: services.Options{
			GuardGrace:  cfg.SendGuardGrace,
			SendTimeout: cfg.SendTimeout,
			QuietPeriod: cfg.TypingQuietPeriod,
			PageSize:    cfg.PageSize,
		},
		Logger: zl,
	})
	defer sess.Close()

	if err := sess.Start(ctx, cfg.AuthToken); err != nil {
		// The local API still serves; the UI shows the connection state.
		zl.Error("failed to start session", zap.Error(err))
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handlers.NewRouter(sess, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("chat client API starting", zap.String("addr", addr), zap.String("user_id", self.ID), zap.Strings("cors_origins", cfg.CORSOrigins))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("server shutdown", zap.Error(err))
	}
}
