package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pongmatch/backend/internal/config"
	"github.com/pongmatch/backend/internal/httpapi"
	"github.com/pongmatch/backend/internal/session"
	"github.com/pongmatch/backend/internal/store"
	"github.com/pongmatch/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := newLogger(cfg.Debug)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	db, err := store.Open(cfg.DatabaseURL, log.Named("store"))
	if err != nil {
		log.Fatal("store open failed", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := session.NewRegistry(ctx, log.Named("registry"))
	gate := ws.NewGate(registry, db, db, log.Named("ws"))
	api := httpapi.NewAPI(registry, db, log.Named("api"))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(api, gate),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", zap.Error(err))
		}
		registry.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
