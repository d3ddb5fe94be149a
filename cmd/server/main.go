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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/skio-race/internal/archive"
	"github.com/DoyleJ11/skio-race/internal/config"
	"github.com/DoyleJ11/skio-race/internal/engine"
	"github.com/DoyleJ11/skio-race/internal/httpapi"
	"github.com/DoyleJ11/skio-race/internal/hub"
	"github.com/DoyleJ11/skio-race/internal/logging"
	"github.com/DoyleJ11/skio-race/internal/metrics"
	"github.com/DoyleJ11/skio-race/internal/room"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, cfgErr := config.Load(".env")

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if cfgErr != nil {
		logger.Warn("config values fell back to defaults", zap.Error(cfgErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	reg := &metrics.Registry{}

	var recorder archive.Recorder = archive.Nop{}
	if cfg.DatabaseURL != "" {
		db, err := archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		w := archive.NewWriter(db, logger.Named("archive"), reg, 0)
		recorder = w
		g.Go(func() error { return w.Run(ctx) })
		logger.Info("race archive enabled")
	}

	h := hub.NewHub(ctx, hub.Options{
		SweepInterval: cfg.SweepInterval,
		Logger:        logger,
		Room: room.Options{
			Rules: engine.Rules{
				CountdownMs: cfg.Countdown.Milliseconds(),
				GraceMs:     cfg.Grace.Milliseconds(),
			},
			ProgressPerSec: cfg.ProgressPerSec,
			Metrics:        reg,
			Archive:        recorder,
		},
	})

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:              h,
			Metrics:          reg,
			Logger:           logger,
			OriginPatterns:   cfg.AllowedOrigins,
			WSMessagesPerSec: cfg.WSMessagesPerSec,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-h.Done()
		return err
	})
	return g.Wait()
}
