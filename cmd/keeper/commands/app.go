package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openkeeper/openkeeper/pkg/authz"
	"github.com/openkeeper/openkeeper/pkg/chain"
	"github.com/openkeeper/openkeeper/pkg/collateral"
	"github.com/openkeeper/openkeeper/pkg/config"
	"github.com/openkeeper/openkeeper/pkg/policy"
	"github.com/openkeeper/openkeeper/pkg/protocol"
	"github.com/openkeeper/openkeeper/pkg/relay"
	"github.com/openkeeper/openkeeper/pkg/stores"
	"github.com/openkeeper/openkeeper/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// app is the runtime every command operates on: the store-backed engine, the
// manual head clock fed from --block/--timestamp, and the optional policy
// and telemetry layers.
type app struct {
	cfg      *config.Config
	store    *stores.SQLiteStore
	engine   *protocol.Engine
	clock    *chain.ManualClock
	relay    *relay.Recorder
	policies *policy.Engine
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
}

// newApp builds the runtime for one command invocation: open and migrate the
// store, rebuild the engine from it, and re-grant the executor role to every
// actively staked principal.
func newApp(ctx context.Context) (*app, error) {
	return buildApp(ctx, false)
}

// newServeApp is newApp plus the full telemetry stack for the daemon.
func newServeApp(ctx context.Context) (*app, error) {
	return buildApp(ctx, true)
}

func buildApp(ctx context.Context, withTelemetry bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	if verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	gate, err := authz.NewGate(cfg.Owner)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ledger := collateral.NewLedger(collateral.Params{
		MinExecutorStake:  cfg.Ledger.MinExecutorStake,
		MinConditionStake: cfg.Ledger.MinConditionStake,
		Treasury:          cfg.Ledger.Treasury,
	}, nil, logger)

	ts := time.Now()
	if blockTime != 0 {
		ts = time.Unix(blockTime, 0)
	}
	clock := chain.NewManualClock(blockHeight, ts)

	eng := protocol.NewEngine(protocol.Params{
		ChallengePeriod: cfg.Engine.ChallengePeriod,
		ExecutionWindow: cfg.Engine.ExecutionWindow,
	}, clock, gate, ledger).WithPersister(store)

	a := &app{
		cfg:    cfg,
		store:  store,
		engine: eng,
		clock:  clock,
		relay:  relay.NewRecorder(),
		logger: logger,
	}

	// One-shot commands run a quiet telemetry stack: synchronous events so
	// the store sink sees everything before exit, no exporters.
	telCfg := cfg.Telemetry
	if !withTelemetry {
		telCfg.Tracing.Enabled = false
		telCfg.Metrics.Enabled = false
		telCfg.Redis.Enabled = false
		telCfg.Events.EnableAsync = false
		telCfg.Logging.Output = "stderr"
	}
	tel, err := telemetry.NewTelemetry(&telCfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.tel = tel
	eng.WithTelemetry(tel)

	// Events feed the history command through the store.
	sinkCtx := context.WithoutCancel(ctx)
	tel.Events.Subscribe(func(e telemetry.Event) {
		if err := store.AppendEvent(sinkCtx, e); err != nil {
			logger.Error().Err(err).Str("event", e.ID).Msg("Failed to persist event")
		}
	}, nil)

	if err := stores.Load(ctx, store, eng); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	// A live stake is the executor credential; re-grant roles from it.
	for _, principal := range ledger.ExecutorIndex() {
		if stake, ok := ledger.ExecutorStakeOf(principal); ok && stake.Active {
			_ = gate.AddExecutor(cfg.Owner, principal)
		}
	}

	if cfg.Policy.Enabled {
		pol, err := policy.NewEngine(logger)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		if len(cfg.Policy.Paths) > 0 {
			if err := pol.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
				a.Close(ctx)
				return nil, err
			}
		}
		a.policies = pol
	}

	return a, nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close(ctx context.Context) {
	if a.tel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.tel.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Store close failed")
	}
}

// caller resolves the acting principal: --as when given, the owner otherwise.
func (a *app) caller() string {
	if asPrincipal != "" {
		return asPrincipal
	}
	return a.cfg.Owner
}

// checkPolicy runs the admission policies and fails on blocking violations.
// Warning violations are logged and let the request through.
func (a *app) checkPolicy(ctx context.Context, input *policy.Input) error {
	if a.policies == nil {
		return nil
	}

	result, err := a.policies.Evaluate(ctx, input)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	for _, v := range result.Violations {
		if v.Severity == policy.SeverityWarning || v.Severity == policy.SeverityInfo {
			a.logger.Warn().
				Str("policy", v.Policy).
				Str("principal", v.Principal).
				Msg(v.Message)
		}
	}

	if !result.Allowed {
		var msgs []string
		for _, v := range result.Violations {
			if v.Severity == policy.SeverityError || v.Severity == policy.SeverityCritical {
				msgs = append(msgs, fmt.Sprintf("%s: %s", v.Policy, v.Message))
			}
		}
		return fmt.Errorf("denied by policy: %s", strings.Join(msgs, "; "))
	}

	return nil
}

// registrantInput builds the per-registrant aggregates policies consume.
func (a *app) registrantInput(registrant string) *policy.RegistrantInput {
	live := 0
	today := 0
	now := time.Now().UTC()
	for _, c := range a.engine.ConditionsByRegistrant(registrant) {
		if !c.Status.IsTerminal() {
			live++
		}
		if !c.LastExecutedAt.IsZero() {
			y1, m1, d1 := c.LastExecutedAt.UTC().Date()
			y2, m2, d2 := now.Date()
			if y1 == y2 && m1 == m2 && d1 == d2 {
				today++
			}
		}
	}
	return &policy.RegistrantInput{
		Principal:        registrant,
		ActiveConditions: live,
		ExecutionsToday:  today,
	}
}

// saveExecutorStake writes one executor account through to the store.
func (a *app) saveExecutorStake(ctx context.Context, principal string) {
	stake, ok := a.engine.Ledger().ExecutorStakeOf(principal)
	if !ok {
		return
	}
	if err := a.store.SaveExecutorStake(ctx, stake); err != nil {
		a.logger.Error().Err(err).Str("principal", principal).Msg("Failed to persist executor stake")
	}
}

// saveConditionStake writes one escrow account through to the store.
func (a *app) saveConditionStake(ctx context.Context, conditionID uint64) {
	stake, ok := a.engine.Ledger().ConditionStakeOf(conditionID)
	if !ok {
		return
	}
	if err := a.store.SaveConditionStake(ctx, stake); err != nil {
		a.logger.Error().Err(err).Uint64("condition_id", conditionID).Msg("Failed to persist condition stake")
	}
}

// appendLatestSlashRecord persists the newest slash log entry.
func (a *app) appendLatestSlashRecord(ctx context.Context) {
	entries := a.engine.Ledger().SlashHistory().Entries()
	if len(entries) == 0 {
		return
	}
	rec := entries[len(entries)-1]
	if err := a.store.AppendSlashRecord(ctx, rec); err != nil {
		a.logger.Error().Err(err).Uint64("sequence", rec.Sequence).Msg("Failed to persist slash record")
	}
}

// output prints v as indented JSON with --json, or via the fallback printer.
func output(v interface{}, plain func()) error {
	if jsonOutput {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	}
	plain()
	return nil
}

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid condition id %q: %w", arg, err)
	}
	return id, nil
}

func parseAmount(arg string) (uint64, error) {
	amount, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", arg, err)
	}
	return amount, nil
}
