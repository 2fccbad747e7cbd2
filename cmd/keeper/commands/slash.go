package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSlashCommand() *cobra.Command {
	var (
		reason      string
		conditionID uint64
	)

	cmd := &cobra.Command{
		Use:   "slash <principal> <amount>",
		Short: "Slash executor collateral",
		Long: `Remove collateral from an executor account and forward it to the
treasury. Only the slasher (or the owner) may slash.

The requested amount is capped at the executor's balance: the balance
never goes negative, and the effective amount is what lands in the
hash-chained slash history. An account pushed below the minimum stake is
deactivated.`,
		Example: `  keeper slash bob 500 --reason "fraudulent proof" --condition 1 --as arbiter`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			principal := args[0]
			effective, err := a.engine.SlashExecutor(ctx, a.caller(), principal, amount, reason, conditionID)
			if err != nil {
				return err
			}

			a.saveExecutorStake(ctx, principal)
			a.appendLatestSlashRecord(ctx)

			stake, _ := a.engine.Ledger().ExecutorStakeOf(principal)
			result := struct {
				Principal string `json:"principal"`
				Requested uint64 `json:"requested"`
				Effective uint64 `json:"effective"`
				Remaining uint64 `json:"remaining"`
				Active    bool   `json:"active"`
			}{principal, amount, effective, stake.Amount, stake.Active}
			return output(result, func() {
				fmt.Printf("Slashed %d from %s (requested %d, remaining %d)\n",
					effective, principal, amount, stake.Amount)
				if !stake.Active {
					fmt.Printf("Executor %s deactivated\n", principal)
				}
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the slash history")
	cmd.Flags().Uint64Var(&conditionID, "condition", 0, "related condition id")
	cmd.MarkFlagRequired("reason")

	return cmd
}

func newForfeitCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "forfeit <id>",
		Short: "Forfeit a condition's escrow to the treasury",
		Long: `Take a condition's escrow in full for the treasury. Only the slasher
(or the owner) may forfeit. Like release, forfeiture is terminal.`,
		Example: `  keeper forfeit 1 --reason "registrant abandoned dispute" --as arbiter`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			forfeited, err := a.engine.SlashConditionStake(ctx, id, reason, a.caller())
			if err != nil {
				return err
			}

			a.saveConditionStake(ctx, id)

			result := struct {
				ConditionID uint64 `json:"condition_id"`
				Forfeited   uint64 `json:"forfeited"`
			}{id, forfeited}
			return output(result, func() {
				fmt.Printf("Forfeited %d escrow from condition %d\n", forfeited, id)
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason logged with the forfeiture")
	cmd.MarkFlagRequired("reason")

	return cmd
}
