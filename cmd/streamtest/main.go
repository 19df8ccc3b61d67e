// streamtest is a standalone connectivity check for internal/stream,
// adapted from the trading bot's cmd/wstest: connect, subscribe to one
// address, print whatever arrives, exit on Ctrl+C.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/config"
	"solana-tx-tracker/internal/stream"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	log.Info().Msg("stream connection test")

	configPath := "config/config.yaml"
	if p := os.Getenv("TRACKER_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.NewManager(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	address := os.Getenv("STREAMTEST_ADDRESS")
	if address == "" {
		log.Fatal().Msg("set STREAMTEST_ADDRESS to the wallet address to subscribe to")
	}

	client := stream.New(cfg.Get().Stream.URL, cfg.StreamToken())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		filter := stream.Filter{
			IncludeAddresses: []string{address},
			Commitment:       stream.Commitment(cfg.Get().Stream.Commitment),
		}
		if err := client.Run(ctx, filter, func(ev stream.Event) {
			log.Info().Str("signature", ev.Signature).Uint64("slot", ev.Slot).Msg("event received")
		}); err != nil {
			log.Error().Err(err).Msg("stream run exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	client.Stop()
	time.Sleep(200 * time.Millisecond)
	log.Info().Msg("stream closed")
}
