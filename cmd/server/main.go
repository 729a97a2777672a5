// GigVault escrow - payments and dispute resolution for the marketplace
package main

import (
	"context"
	"os"

	"github.com/gigvault/escrow/internal/config"
	"github.com/gigvault/escrow/internal/logging"
	"github.com/gigvault/escrow/internal/metrics"
	"github.com/gigvault/escrow/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting escrow engine",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"gateway_mode", cfg.GatewayMode,
		"fee_percent", cfg.PlatformFeePercent,
	)

	metrics.Register()

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
