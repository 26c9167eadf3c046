package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rc4-stream-go/internal/config"
	"github.com/rc4-stream-go/internal/logging"
	"github.com/rc4-stream-go/internal/server"
)

func main() {
	configFile := flag.String("config", os.Getenv("RC4_STREAM_CONFIG"), "path to a JSON config file")
	flag.Parse()

	logging.Setup(config.LogConfig{Level: "info"}, os.Stderr)
	cfg := config.Load(*configFile)
	logging.Setup(cfg.Log, os.Stderr)

	log.Info().Str("version", config.Version).Msg("Starting rc4-stream server")
	log.Info().
		Str("http_addr", cfg.GetHTTPAddr()).
		Bool("h2c", cfg.IsH2CEnabled()).
		Bool("auth", cfg.Auth.Enable).
		Bool("journal", cfg.Journal.Enable).
		Str("journal_driver", cfg.Journal.Driver).
		Msg("Configuration loaded")

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Received shutdown signal")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
