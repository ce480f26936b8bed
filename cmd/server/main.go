// Package main is the entry point for the time estimator server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (env vars, optionally a .env file)
// 2. Create the logger
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/time-estimator/internal/config"
	"github.com/sakif/time-estimator/internal/logger"
	"github.com/sakif/time-estimator/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Config errors happen before there is a logger, so they go to stderr.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, cfg.LogFormat, level)

	if !cfg.GitHubEnabled() {
		log.Info("GITHUB_CLIENT_ID not set, GitHub sign-in is disabled")
	}

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
