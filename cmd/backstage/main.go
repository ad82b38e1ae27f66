package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"backstage/internal/store"
	"backstage/internal/telemetry"
	"backstage/shared/go/config"
	"backstage/shared/go/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Config{Level: "info", Format: "text"}).Fatal(err, "failed to load config")
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.SetGlobalLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "backstage", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		logger.Fatal(err, "failed to set up tracing")
	}

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	dataStore := store.New(db)

	app, err := newApp(cfg, dataStore)
	if err != nil {
		logger.Fatal(err, "failed to wire services")
	}

	if cfg.BootstrapDemo {
		if err := bootstrapDemoData(ctx, app); err != nil {
			logger.Fatal(err, "failed to bootstrap demo data")
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl := logger.Zerolog()
		zl.Info().Str("addr", srv.Addr).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srvErr := srv.Shutdown(shutdownCtx)
		traceErr := shutdownTracing(shutdownCtx)
		return errors.Join(srvErr, traceErr)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal(err, "server error")
	}
	app.close()
}
