package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/truthguard/truthguard/internal/app"
	"github.com/truthguard/truthguard/internal/config"
	"github.com/truthguard/truthguard/internal/logging"
	"github.com/truthguard/truthguard/internal/server"
	"github.com/truthguard/truthguard/internal/telemetry"
)

var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "truthguard.yaml", "Path to TruthGuard config file")
	flag.Parse()

	if err := run(*configPath, *addrFlag); err != nil {
		logging.Error().Err(err).Msg("truthguard exited")
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.Info().Str("version", version).Str("config", configPath).Msg("starting TruthGuard")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  cfg.Telemetry.Service,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	tg, err := app.Build(ctx, cfg, tel)
	if err != nil {
		return err
	}
	defer tg.Close()

	srv := server.New(cfg.Server, tg.Analyzer)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
