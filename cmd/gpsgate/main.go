package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/app"
	"github.com/cradlepoint/sdk-samples-sub000/internal/config"
)

func main() {
	configPath := flag.String("config", "", "configuration file (yaml, json or toml); GPSGATE_* environment overrides it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("load config")
		os.Exit(1)
	}
	log.DefaultLogger = app.NewLogger(cfg)

	a, err := app.New(cfg, log.DefaultLogger)
	if err != nil {
		log.Error().Err(err).Msg("startup")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Info().Str("gps_gate", cfg.Upstream().Addr).Str("source", cfg.GPS.Source).Msg("gpsgate forwarder starting")
	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("gpsgate forwarder stopped")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("gpsgate forwarder stopped")
}
