// Package main wires together the kleinsuche gateway binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kleinsuche/kleinsuche/internal/api"
	"github.com/kleinsuche/kleinsuche/internal/cache"
	"github.com/kleinsuche/kleinsuche/internal/config"
	"github.com/kleinsuche/kleinsuche/internal/geo"
	"github.com/kleinsuche/kleinsuche/internal/logging"
	"github.com/kleinsuche/kleinsuche/internal/rategate"
	"github.com/kleinsuche/kleinsuche/internal/scraper"
	"github.com/kleinsuche/kleinsuche/internal/stats"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cache.New(cfg.Cache, logger.Named("cache"))
	if err != nil {
		logger.Fatal("cache init failed", zap.Error(err))
	}

	gate := rategate.New(time.Duration(cfg.RateGate.IntervalMs) * time.Millisecond)

	browser := scraper.NewChromedp(scraper.Config{
		UserAgent:  cfg.Scraper.UserAgent,
		NavTimeout: time.Duration(cfg.Scraper.NavTimeoutSeconds) * time.Second,
	}, logger.Named("scraper"))
	if cfg.Scraper.Autostart {
		if err := browser.Start(ctx); err != nil {
			// Scraper endpoints answer 503 until a restart fixes this.
			logger.Warn("browser start failed", zap.Error(err))
		}
	}
	defer browser.Close()

	geoClient := geo.NewClient(cfg.Geo, store, logger.Named("geo"))
	router := geo.NewRouter(geoClient, browser, logger.Named("router"))
	tracker := stats.New(cfg.Stats.File, logger.Named("stats"))

	apiServer := api.NewServer(api.Deps{
		Config:      cfg,
		Searcher:    browser,
		Cache:       store,
		RouteSearch: router,
		ORS:         geoClient,
		Stats:       tracker,
		Gate:        gate,
		Logger:      logger.Named("api"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
