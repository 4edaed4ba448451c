package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
network:
  horizon_url: https://horizon.example.org
  passphrase: Test SDF Network ; September 2015
custody:
  mode: local
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.RestartBackoff != DefaultRestartBackoff {
		t.Errorf("restart backoff = %v, want %v", cfg.Engine.RestartBackoff, DefaultRestartBackoff)
	}
	if cfg.Engine.TradeMemo != DefaultTradeMemo {
		t.Errorf("trade memo = %q", cfg.Engine.TradeMemo)
	}
	if len(cfg.Routers) != 3 {
		t.Errorf("default routers = %d, want 3", len(cfg.Routers))
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
engine:
  restart_backoff: 30s
  trade_memo: custom memo
logging:
  level: debug
  format: console
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.RestartBackoff != 30*time.Second {
		t.Errorf("restart backoff = %v", cfg.Engine.RestartBackoff)
	}
	if cfg.Engine.TradeMemo != "custom memo" {
		t.Errorf("trade memo = %q", cfg.Engine.TradeMemo)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://env-host/engine")
	cfg, err := Load(writeConfig(t, minimalConfig+`
database:
  postgres_dsn: postgres://file-host/engine
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.PostgresDSN != "postgres://env-host/engine" {
		t.Errorf("postgres dsn = %q", cfg.Database.PostgresDSN)
	}
}

func TestValidateMissingHorizon(t *testing.T) {
	_, err := Load(writeConfig(t, `
network:
  passphrase: p
custody:
  mode: local
`))
	if err == nil || !strings.Contains(err.Error(), "horizon_url") {
		t.Fatalf("err = %v, want horizon_url failure", err)
	}
}

func TestValidateRemoteNeedsEndpoint(t *testing.T) {
	_, err := Load(writeConfig(t, `
network:
  horizon_url: https://horizon.example.org
  passphrase: p
custody:
  mode: remote
`))
	if err == nil || !strings.Contains(err.Error(), "custody.endpoint") {
		t.Fatalf("err = %v, want endpoint failure", err)
	}
}

func TestValidateBadCustodyMode(t *testing.T) {
	_, err := Load(writeConfig(t, `
network:
  horizon_url: https://horizon.example.org
  passphrase: p
custody:
  mode: hardware
`))
	if err == nil || !strings.Contains(err.Error(), "custody.mode") {
		t.Fatalf("err = %v, want mode failure", err)
	}
}
