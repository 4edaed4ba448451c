// Package main runs the streaming copy engine: one task per active watch
// subscription, copying detected trades until the process is stopped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"stellar-copy-engine/internal/classifier"
	"stellar-copy-engine/internal/config"
	"stellar-copy-engine/internal/engine"
	"stellar-copy-engine/internal/horizon"
	"stellar-copy-engine/internal/observability"
	"stellar-copy-engine/internal/referral"
	"stellar-copy-engine/internal/rescale"
	"stellar-copy-engine/internal/rewriter"
	"stellar-copy-engine/internal/signing"
	"stellar-copy-engine/internal/soroban"
	"stellar-copy-engine/internal/storage/clickhouse"
	"stellar-copy-engine/internal/storage/migrations"
	"stellar-copy-engine/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to postgres failed")
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("postgres migrations failed")
	}
	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.Database.ClickHouseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("clickhouse migrations failed")
	}
	defer chConn.Close()

	subs := postgres.NewSubscriptionStore(pool)
	cursors := postgres.NewCursorStore(pool)
	users := postgres.NewUserStore(pool)
	referrals := postgres.NewReferralStore(pool)
	rewards := postgres.NewRewardStore(pool)
	sessions := postgres.NewSessionStore(pool)
	volumes := clickhouse.NewVolumeStore(chConn)

	gw := horizon.NewClient(cfg.Network.HorizonURL, horizon.WithLogger(log))
	rpc := soroban.NewClient(cfg.Network.SorobanRPCURL)

	signer, err := buildSigner(cfg, sessions, users, log)
	if err != nil {
		log.Fatal().Err(err).Msg("building signer failed")
	}

	table := config.BuildRouterTable(cfg.Routers)
	lines := engine.NewTrustlines(gw, signer, cfg.Network.Passphrase, log)
	metrics := observability.NewMetrics("")

	eng := engine.New(engine.Options{
		Gateway:        gw,
		Classifier:     classifier.New(gw, table, log),
		Planner:        rescale.New(gw, lines, log),
		Rewriter:       rewriter.New(table, rpc, gw, lines, cfg.Engine.TradeMemo, log),
		Signer:         signer,
		Ledger:         referral.NewLedger(users, referrals, rewards, volumes, log),
		Housekeeper:    lines,
		Subscriptions:  subs,
		Cursors:        cursors,
		Users:          users,
		Passphrase:     cfg.Network.Passphrase,
		TradeMemo:      cfg.Engine.TradeMemo,
		FeeAccount:     cfg.Engine.FeeAccount,
		RestartBackoff: cfg.Engine.RestartBackoff,
		MaxRestarts:    cfg.Engine.MaxRestarts,
		Metrics:        metrics,
		Logger:         log,
	})

	var metricsSrv *http.Server
	if cfg.Engine.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Engine.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		log.Info().Str("addr", cfg.Engine.MetricsAddr).Msg("metrics server listening")
	}

	if err := eng.StartAll(ctx); err != nil {
		log.Fatal().Err(err).Msg("starting wallet tasks failed")
	}
	log.Info().Str("horizon", cfg.Network.HorizonURL).Msg("copy engine started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	eng.StopAll()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Info().Msg("stopped")
}

// buildSigner wires the custody mode: remote stamp protocol or the
// in-process test signer.
func buildSigner(cfg *config.Config, sessions *postgres.SessionStore, users *postgres.UserStore, log zerolog.Logger) (signing.Signer, error) {
	switch cfg.Custody.Mode {
	case "remote":
		apiKey, err := signing.ParseAPIKey(cfg.Custody.APIKeyHex)
		if err != nil {
			return nil, err
		}
		return signing.NewRemoteSigner(cfg.Custody.Endpoint, sessions, users, apiKey, signing.WithLogger(log)), nil
	case "local":
		return signing.NewLocalSigner(), nil
	default:
		return nil, fmt.Errorf("unknown custody mode %q", cfg.Custody.Mode)
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr)
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
