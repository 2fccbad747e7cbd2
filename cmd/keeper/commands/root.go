package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath  string
	asPrincipal string
	blockHeight uint64
	blockTime   int64
	jsonOutput  bool
	verbose     bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "keeper",
		Short: "Keeper - Optimistic Condition Automation Protocol",
		Long: `Keeper runs an optimistic, economically secured automation protocol.

Registrants declare trigger conditions bound to callback targets. Staked
executors record execution proofs optimistically; anyone may challenge a
proof inside the fraud-proof window, and an arbiter resolves challenges,
slashing collateral on fraud.

State lives in an embedded SQLite database; every command rebuilds the
in-memory engine from it and persists its mutations back.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&asPrincipal, "as", "", "principal acting as the caller (defaults to the owner)")
	rootCmd.PersistentFlags().Uint64Var(&blockHeight, "block", 0, "current chain head block number")
	rootCmd.PersistentFlags().Int64Var(&blockTime, "timestamp", 0, "current chain head unix time (defaults to wall clock)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newRegisterCommand())
	rootCmd.AddCommand(newActivateCommand())
	rootCmd.AddCommand(newCancelCommand())
	rootCmd.AddCommand(newExecuteCommand())
	rootCmd.AddCommand(newChallengeCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newStakeCommand())
	rootCmd.AddCommand(newUnstakeCommand())
	rootCmd.AddCommand(newEscrowCommand())
	rootCmd.AddCommand(newReleaseCommand())
	rootCmd.AddCommand(newSlashCommand())
	rootCmd.AddCommand(newForfeitCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}
