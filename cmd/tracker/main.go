package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/chainrpc"
	"solana-tx-tracker/internal/config"
	"solana-tx-tracker/internal/control"
	"solana-tx-tracker/internal/enrich"
	"solana-tx-tracker/internal/health"
	"solana-tx-tracker/internal/metadata"
	"solana-tx-tracker/internal/metrics"
	"solana-tx-tracker/internal/poolmonitor"
	"solana-tx-tracker/internal/priceoracle"
	"solana-tx-tracker/internal/registry"
	"solana-tx-tracker/internal/router"
	"solana-tx-tracker/internal/runner"
	"solana-tx-tracker/internal/storage"
	"solana-tx-tracker/internal/stream"
	"solana-tx-tracker/internal/tokenqueue"
)

func main() {
	setupLogger()
	log.Info().Msg("solana-tx-tracker starting")

	cfg, err := config.NewManager(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := storage.NewSQLiteStore(cfg.Get().Storage.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	rpc := chainrpc.NewClient(cfg.Get().RPC.PrimaryURL, cfg.Get().RPC.FallbackURL, cfg.RPCPrimaryAPIKey())

	oracleFetcher := priceoracle.NewJupiterFetcher(
		cfg.Get().PriceOracle.QuoteAPIURL,
		time.Duration(cfg.Get().PriceOracle.TimeoutSeconds)*time.Second,
	)
	oracle := priceoracle.New(oracleFetcher, store, time.Duration(cfg.Get().PriceOracle.RefreshSeconds)*time.Second)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	oracle.Start(rootCtx)
	defer oracle.Stop()

	quoter := priceoracle.NewTokenQuoter(
		cfg.Get().PriceOracle.QuoteAPIURL,
		time.Duration(cfg.Get().PriceOracle.TimeoutSeconds)*time.Second,
	)

	metadataClient := metadata.NewClient(
		cfg.Get().Metadata.BaseURL,
		cfg.MetadataAPIKey(),
		time.Duration(cfg.Get().Metadata.TimeoutSeconds)*time.Second,
	)

	reg := registry.New(store)

	queue := tokenqueue.New(func(ctx context.Context, mint string) {
		if !metadataClient.Enabled() {
			return
		}
		log.Debug().Str("mint", mint).Msg("token queue worker tick (metadata warmup)")
	})
	queue.Start(rootCtx)
	defer queue.Stop()

	pipeline := enrich.New(store, rpc, oracle, metadataClient, reg, queue)

	monitor := poolmonitor.New(store, rpc, oracle, cfg.PoolMonitoringMaxDuration())
	monitor.SetQuoter(quoter)

	eventRouter := router.New(unwiredDecoder{}, store, queue, pipeline, monitor)

	streamClient := stream.New(cfg.Get().Stream.URL, cfg.StreamToken())

	commitment := stream.Commitment(cfg.Get().Stream.Commitment)
	trackerRunner := runner.New(streamClient, eventRouter, monitor, commitment)

	checker := health.NewChecker(store, rpc, streamClient)
	checker.Start(rootCtx)

	controlServer := control.New(cfg.Get().Control.Host, cfg.Get().Control.Port, trackerRunner, checker)

	go func() {
		if err := controlServer.Start(); err != nil {
			log.Error().Err(err).Msg("control server stopped")
		}
	}()

	metricsServer := &http.Server{Addr: cfg.Get().Metrics.ListenAddr, Handler: metricsMux()}
	go func() {
		log.Info().Str("addr", cfg.Get().Metrics.ListenAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if trackerRunner.Running() {
		if err := trackerRunner.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("error stopping tracker runner")
		}
	}
	if err := controlServer.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("error shutting down control server")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("error shutting down metrics server")
	}

	log.Info().Msg("goodbye")
}

func configPath() string {
	if p := os.Getenv("TRACKER_CONFIG"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func setupLogger() {
	log.Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"},
	).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
