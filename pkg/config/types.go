package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/openkeeper/openkeeper/pkg/telemetry"
)

// Config is the daemon configuration loaded from YAML.
type Config struct {
	// Owner is the protocol owner principal.
	Owner string `yaml:"owner" validate:"required"`

	// Engine holds the condition lifecycle parameters.
	Engine EngineConfig `yaml:"engine"`

	// Ledger holds the collateral thresholds.
	Ledger LedgerConfig `yaml:"ledger"`

	// Store configures the SQLite persistence layer.
	Store StoreConfig `yaml:"store"`

	// Policy configures admission policy loading.
	Policy PolicyConfig `yaml:"policy"`

	// Telemetry configures logging, metrics, tracing and the event bus.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// EngineConfig holds the condition lifecycle parameters.
type EngineConfig struct {
	// ChallengePeriod is the number of blocks after an execution during
	// which a challenge is accepted. The deadline block itself is inside
	// the window.
	ChallengePeriod uint64 `yaml:"challenge_period" validate:"gte=1"`

	// ExecutionWindow bounds how many blocks after activation an execution
	// proof is accepted. Zero disables the bound.
	ExecutionWindow uint64 `yaml:"execution_window"`
}

// LedgerConfig holds the collateral thresholds.
type LedgerConfig struct {
	// MinExecutorStake is the balance an executor must hold to be active.
	MinExecutorStake uint64 `yaml:"min_executor_stake" validate:"gte=1"`

	// MinConditionStake is the minimum one-shot escrow per condition.
	MinConditionStake uint64 `yaml:"min_condition_stake" validate:"gte=1"`

	// Treasury receives forfeited collateral.
	Treasury string `yaml:"treasury" validate:"required"`
}

// StoreConfig configures the SQLite persistence layer.
type StoreConfig struct {
	// Path is the database file path, ":memory:" for ephemeral runs.
	Path string `yaml:"path" validate:"required"`
}

// PolicyConfig configures admission policy loading.
type PolicyConfig struct {
	// Enabled turns policy evaluation on.
	Enabled bool `yaml:"enabled"`

	// Paths lists .rego/.json files or directories loaded on top of the
	// built-in policies.
	Paths []string `yaml:"paths,omitempty"`

	// Watch enables hot-reload of the policy paths.
	Watch bool `yaml:"watch"`
}

// DefaultConfig returns a configuration with sensible defaults for a local
// deployment.
func DefaultConfig() *Config {
	return &Config{
		Owner: "owner",
		Engine: EngineConfig{
			ChallengePeriod: 300,
		},
		Ledger: LedgerConfig{
			MinExecutorStake:  100,
			MinConditionStake: 10,
			Treasury:          "treasury",
		},
		Store: StoreConfig{
			Path: "keeper.db",
		},
		Policy: PolicyConfig{
			Enabled: true,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Validate checks the configuration against its struct tags and the
// telemetry section's own rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}
