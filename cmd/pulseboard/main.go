package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/pulseboard/internal/config"
	"github.com/HerbHall/pulseboard/internal/device"
	"github.com/HerbHall/pulseboard/internal/history"
	"github.com/HerbHall/pulseboard/internal/ingest"
	"github.com/HerbHall/pulseboard/internal/journal"
	"github.com/HerbHall/pulseboard/internal/logs"
	"github.com/HerbHall/pulseboard/internal/server"
	"github.com/HerbHall/pulseboard/internal/stream"
	"github.com/HerbHall/pulseboard/internal/telemetry"
	"github.com/HerbHall/pulseboard/internal/version"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	v, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Pulseboard server starting", zap.String("version", version.Short()))

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	cfg := &server.Config{
		Host:    v.GetString("server.host"),
		Port:    v.GetInt("server.port"),
		DataDir: v.GetString("server.data_dir"),
	}

	// Shared services.
	registry := device.NewRegistry(logger.Named("device"))
	registry.SetOnlineThreshold(v.GetDuration("presence.online_threshold"))
	buffer := telemetry.NewBuffer(v.GetInt("buffer.capacity"))
	bus := telemetry.NewBus(logger.Named("bus"))

	jrnl := journal.New(cfg.MetricsDir(), v.GetInt64("journal.max_file_bytes"), logger.Named("journal"))
	defer jrnl.Close()

	logger.Info("journal initialized",
		zap.String("component", "journal"),
		zap.String("dir", cfg.MetricsDir()),
	)

	gateway := ingest.NewGateway(registry, buffer, jrnl, bus, logger.Named("ingest"))

	hist := history.NewHandler(jrnl, logger.Named("history"))
	hist.SetMaxSamples(v.GetInt("history.max_samples"))

	srv := server.New(cfg.Addr(), logger.Named("server"), nil,
		device.NewHandler(registry, logger.Named("device")),
		gateway,
		telemetry.NewHandler(buffer, jrnl, logger.Named("telemetry")),
		hist,
		stream.NewSSEHandler(bus, logger.Named("sse")),
		stream.NewWSHandler(bus, logger.Named("ws")),
		logs.NewHandler(v.GetString("logs.agent_log_path"), logger.Named("logs")),
		ingest.NewAgentConfigWriter(
			v.GetString("agent_config.path"),
			v.GetBool("agent_config.apply_enabled"),
			logger.Named("agentconfig"),
		),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("Pulseboard server stopped")
}
