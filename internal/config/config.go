// Package config loads the engine's YAML configuration with environment
// overrides for connection strings and secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root engine configuration.
type Config struct {
	Network  NetworkConfig  `yaml:"network"`
	Custody  CustodyConfig  `yaml:"custody"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Payout   PayoutConfig   `yaml:"payout"`
	Logging  LoggingConfig  `yaml:"logging"`
	Routers  []RouterConfig `yaml:"routers"`
}

// NetworkConfig names the chain endpoints.
type NetworkConfig struct {
	HorizonURL    string `yaml:"horizon_url"`
	SorobanRPCURL string `yaml:"soroban_rpc_url"`
	Passphrase    string `yaml:"passphrase"`
}

// CustodyConfig configures the remote signing service.
type CustodyConfig struct {
	// Mode is "remote" or "local" (local signs with in-process test seeds).
	Mode     string `yaml:"mode"`
	Endpoint string `yaml:"endpoint"`
	// APIKeyHex is the P-256 scalar stamping session-recovery requests.
	APIKeyHex string `yaml:"api_key_hex"`
}

// DatabaseConfig holds the backing store connection strings.
type DatabaseConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// EngineConfig tunes the streaming engine.
type EngineConfig struct {
	// RestartBackoff is the wait between wallet-task restarts after a
	// stream error.
	RestartBackoff time.Duration `yaml:"restart_backoff"`
	// MaxRestarts bounds consecutive restarts per wallet task; 0 means
	// unbounded.
	MaxRestarts int `yaml:"max_restarts"`
	// TradeMemo is attached to every copied trade.
	TradeMemo string `yaml:"trade_memo"`
	// FeeAccount receives usage fees; empty disables fee collection.
	FeeAccount string `yaml:"fee_account"`
	// MetricsAddr serves prometheus metrics when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`
}

// PayoutConfig configures the daily referral payout job.
type PayoutConfig struct {
	// DisbursingAccount is the G-address rewards are paid from.
	DisbursingAccount string `yaml:"disbursing_account"`
	// DisbursingOwnerID names the custody owner that signs payout batches.
	DisbursingOwnerID string `yaml:"disbursing_owner_id"`
	// ExportDir receives the CSV payout report; empty disables export.
	ExportDir string `yaml:"export_dir"`
}

// LoggingConfig tunes zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace..error
	Format string `yaml:"format"` // "json" or "console"
}

// Defaults applied before the file is read.
const (
	DefaultRestartBackoff = 5 * time.Second
	DefaultTradeMemo      = "copied with t.me/lumenbrobot"
)

// Load reads the YAML file, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Engine: EngineConfig{
			RestartBackoff: DefaultRestartBackoff,
			TradeMemo:      DefaultTradeMemo,
		},
		Custody: CustodyConfig{Mode: "remote"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Routers: DefaultRouters(),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv lets deployment environments override secrets and endpoints
// without editing the file.
func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Network.HorizonURL, "HORIZON_URL")
	override(&c.Network.SorobanRPCURL, "SOROBAN_RPC_URL")
	override(&c.Network.Passphrase, "NETWORK_PASSPHRASE")
	override(&c.Custody.Endpoint, "CUSTODY_ENDPOINT")
	override(&c.Custody.APIKeyHex, "CUSTODY_API_KEY")
	override(&c.Database.PostgresDSN, "POSTGRES_DSN")
	override(&c.Database.ClickHouseDSN, "CLICKHOUSE_DSN")
}

// Validate checks the fields every run needs.
func (c *Config) Validate() error {
	if c.Network.HorizonURL == "" {
		return fmt.Errorf("network.horizon_url is required")
	}
	if c.Network.Passphrase == "" {
		return fmt.Errorf("network.passphrase is required")
	}
	switch c.Custody.Mode {
	case "remote":
		if c.Custody.Endpoint == "" {
			return fmt.Errorf("custody.endpoint is required in remote mode")
		}
	case "local":
	default:
		return fmt.Errorf("custody.mode %q must be remote or local", c.Custody.Mode)
	}
	if c.Engine.RestartBackoff <= 0 {
		return fmt.Errorf("engine.restart_backoff must be positive")
	}
	for _, r := range c.Routers {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
