// ABOUTME: Entry point for the vsync feed daemon
// ABOUTME: Loads config, builds the logger, and runs the feed server
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/config"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/server"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/version"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "", "Config file path (YAML). Built-in defaults apply when omitted")
	listen     = flag.String("listen", "", "Override the websocket listen address")
	name       = flag.String("name", "", "Override the daemon name")
	verbose    = flag.Bool("verbose", false, "Enable per-sample trace counters and debug logging")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := buildLogger(cfg.Trace)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting vsyncd",
		zap.String("version", version.Version),
		zap.String("name", cfg.Server.Name),
		zap.String("listen", cfg.Server.Listen),
		zap.Int("displays", len(cfg.Displays)))

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("server setup failed", zap.Error(err))
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutting down", zap.String("signal", sig.String()))
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("stopped")
}

// loadConfig reads the config file when given and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *name != "" {
		cfg.Server.Name = *name
	}
	if *verbose {
		cfg.Trace.Verbose = true
		cfg.Trace.Level = "debug"
	}
	return cfg, nil
}

// buildLogger constructs the daemon logger at the configured level.
func buildLogger(tc config.TraceConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(tc.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", tc.Level, err)
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
