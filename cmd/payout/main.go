// Package main runs one referral payout cycle: it aggregates unpaid reward
// entries, pays eligible beneficiaries in batches from the disbursing
// account and exports the payout list. Meant for a daily scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"stellar-copy-engine/internal/config"
	"stellar-copy-engine/internal/horizon"
	"stellar-copy-engine/internal/referral"
	"stellar-copy-engine/internal/signing"
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
	if cfg.Payout.DisbursingAccount == "" || cfg.Payout.DisbursingOwnerID == "" {
		log.Fatal().Msg("payout.disbursing_account and payout.disbursing_owner_id are required")
	}

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

	users := postgres.NewUserStore(pool)
	rewards := postgres.NewRewardStore(pool)
	sessions := postgres.NewSessionStore(pool)

	gw := horizon.NewClient(cfg.Network.HorizonURL, horizon.WithLogger(log))
	signer, err := buildSigner(cfg, sessions, users, log)
	if err != nil {
		log.Fatal().Err(err).Msg("building signer failed")
	}

	payout := referral.NewPayout(
		rewards,
		users,
		gw,
		signer,
		cfg.Network.Passphrase,
		cfg.Payout.DisbursingAccount,
		cfg.Payout.DisbursingOwnerID,
		cfg.Payout.ExportDir,
		log,
	)
	if err := payout.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("payout run failed")
	}
	log.Info().Msg("payout run completed")
}

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
