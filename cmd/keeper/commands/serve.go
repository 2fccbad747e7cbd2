package commands

import (
	"time"

	"github.com/openkeeper/openkeeper/pkg/config"
	"github.com/openkeeper/openkeeper/pkg/policy"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var gaugeInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the keeper daemon",
		Long: `Run the long-lived daemon: the Prometheus metrics endpoint, the
Redis event sink when configured, hot-reload of the configuration file
and policy paths, and periodic collateral gauge refresh.

Protocol mutations still arrive through the CLI against the shared
database; the daemon is the observability surface.`,
		Example: `  keeper serve -c keeper.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newServeApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if a.cfg.Telemetry.Metrics.Enabled {
				if err := a.tel.StartMetricsServer(); err != nil {
					return err
				}
				a.logger.Info().
					Str("address", a.cfg.Telemetry.Metrics.ListenAddress).
					Msg("Metrics endpoint up")
			}

			if configPath != "" {
				watcher := config.NewWatcher(configPath, a.logger)
				if err := watcher.Start(ctx, func(next *config.Config) error {
					// Engine and ledger parameters are fixed at boot; apply
					// what is runtime-tunable.
					a.cfg.Policy = next.Policy
					a.logger.Info().Msg("Runtime configuration applied; engine parameters need a restart")
					return nil
				}); err != nil {
					return err
				}
				defer func() { _ = watcher.Stop() }()
			}

			if a.policies != nil && a.cfg.Policy.Watch && len(a.cfg.Policy.Paths) > 0 {
				loader := policy.NewLoader(a.logger)
				if err := loader.Watch(ctx, a.cfg.Policy.Paths, func(policies []policy.Policy) error {
					return a.policies.ReplacePolicies(ctx, policies)
				}); err != nil {
					return err
				}
				defer func() { _ = loader.StopWatching() }()
			}

			a.logger.Info().Msg("Keeper daemon running")

			ticker := time.NewTicker(gaugeInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					a.logger.Info().Msg("Keeper daemon stopping")
					return nil
				case <-ticker.C:
					refreshGauges(a)
				}
			}
		},
	}

	cmd.Flags().DurationVar(&gaugeInterval, "gauge-interval", 15*time.Second, "collateral gauge refresh interval")

	return cmd
}

func refreshGauges(a *app) {
	ledger := a.engine.Ledger()
	a.tel.Metrics.SetTotalStaked(ledger.TotalStaked())
	a.tel.Metrics.SetTotalEscrow(ledger.TotalEscrow())
	a.tel.Metrics.SetExecutorCount(ledger.ExecutorCount())
	a.tel.Metrics.SetActiveConditions(a.engine.Counters().Active)
}
