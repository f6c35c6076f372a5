package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kkkkikiki/referral/internal/config"
	"github.com/kkkkikiki/referral/internal/database"
	"github.com/kkkkikiki/referral/internal/repository"
	"github.com/kkkkikiki/referral/internal/server"
	"github.com/kkkkikiki/referral/internal/service"
	"github.com/kkkkikiki/referral/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting referral service", "environment", cfg.App.Environment, "driver", cfg.Database.Driver)

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, cfg.Telemetry.Insecure)
	if err != nil {
		return err
	}

	db, err := database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		return err
	}

	attribution := repository.NewAttributionRepository(db.SQL, cfg.Database.QueryTimeout)
	campaigns := repository.NewCampaignRepository(db.SQL, cfg.Database.QueryTimeout)
	users := repository.NewUserRepository(db.SQL, cfg.Database.QueryTimeout)

	srv := server.New(server.Services{
		Referrals: service.NewReferralIssuer(attribution, cfg.App.ReferralBaseURL),
		QRCodes:   service.NewQRTokenIssuer(attribution),
		Scans:     service.NewScanHandler(attribution, cfg.App.DashboardURL),
		Query:     service.NewQueryFacade(attribution, campaigns, users),
		Campaigns: service.NewCampaignService(campaigns),
	}, db, logger, cfg.App.MaxImageBytes)

	httpServer := server.NewHTTPServer(&cfg.Server, srv.Handler())

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", "error", err)
	}

	logger.Info("server exited gracefully")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.App.SlogLevel()}
	if cfg.App.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
