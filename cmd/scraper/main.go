package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/morket/scraper/internal/app"
	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/server"
)

var (
	serverPort  = flag.Int("port", 0, "Server port (overrides SCRAPER_PORT)")
	serverHost  = flag.String("host", "", "Server host (overrides SCRAPER_HOST)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Scraper version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence: config (defaults -> env -> flags), logger, banner.
	config, err := common.Load()
	if err != nil {
		common.GetLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(config, *serverPort, *serverHost)

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("environment", config.Environment).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Msg("Configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
		os.Exit(1)
	}

	httpServer := server.New(application)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	// Stop accepting requests first, then drain the queue and close the
	// browser layer, all within the configured grace period.
	ctx, cancel := context.WithTimeout(context.Background(), config.Server.GracefulShutdown)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := application.Close(ctx); err != nil {
		logger.Warn().Err(err).Msg("Application shutdown failed")
	}
}
