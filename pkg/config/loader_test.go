package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("owner: alice\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Owner != "alice" {
		t.Errorf("owner = %s, want alice", cfg.Owner)
	}
	if cfg.Engine.ChallengePeriod != 300 {
		t.Errorf("challenge period = %d, want default 300", cfg.Engine.ChallengePeriod)
	}
	if cfg.Ledger.Treasury != "treasury" {
		t.Errorf("treasury = %s, want default treasury", cfg.Ledger.Treasury)
	}
	if cfg.Telemetry.ServiceName != "keeper" {
		t.Errorf("service name = %s, want keeper", cfg.Telemetry.ServiceName)
	}
}

func TestParseOverrides(t *testing.T) {
	yaml := `
owner: alice
engine:
  challenge_period: 50
  execution_window: 1000
ledger:
  min_executor_stake: 500
  min_condition_stake: 25
  treasury: "0xvault"
store:
  path: ":memory:"
telemetry:
  logging:
    level: debug
  redis:
    enabled: true
    address: "redis:6379"
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Engine.ChallengePeriod != 50 || cfg.Engine.ExecutionWindow != 1000 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Ledger.MinExecutorStake != 500 || cfg.Ledger.Treasury != "0xvault" {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Store.Path != ":memory:" {
		t.Errorf("store path = %s", cfg.Store.Path)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("log level = %s, want debug", cfg.Telemetry.Logging.Level)
	}
	if !cfg.Telemetry.Redis.Enabled || cfg.Telemetry.Redis.Address != "redis:6379" {
		t.Errorf("redis = %+v", cfg.Telemetry.Redis)
	}
	// Defaults survive a partial telemetry section.
	if cfg.Telemetry.Metrics.ListenAddress != ":9090" {
		t.Errorf("metrics address = %s, want default :9090", cfg.Telemetry.Metrics.ListenAddress)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing owner", yaml: "engine:\n  challenge_period: 10\n"},
		{name: "zero challenge period", yaml: "owner: alice\nengine:\n  challenge_period: 0\n"},
		{name: "empty treasury", yaml: "owner: alice\nledger:\n  treasury: \"\"\n"},
		{name: "bad log level", yaml: "owner: alice\ntelemetry:\n  logging:\n    level: loud\n"},
		{name: "malformed yaml", yaml: "owner: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse() accepted invalid config")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "keeper.yaml")
	if err := os.WriteFile(path, []byte("owner: alice\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Owner != "alice" {
		t.Errorf("owner = %s, want alice", cfg.Owner)
	}

	if _, err := Load(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("Load() on missing file did not fail")
	}
}
