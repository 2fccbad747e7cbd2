package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStakeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stake <amount>",
		Short: "Stake executor collateral",
		Long: `Deposit executor collateral for the calling principal. The deposit
must meet the minimum executor stake; topping up an existing account is a
second deposit, not a replacement. An actively staked principal is an
authorized executor.`,
		Example: `  keeper stake 1000 --as bob`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			principal := a.caller()
			if err := a.engine.StakeExecutor(ctx, principal, amount); err != nil {
				return err
			}

			// The stake is the executor credential.
			_ = a.engine.Gate().AddExecutor(a.cfg.Owner, principal)
			a.saveExecutorStake(ctx, principal)

			stake, _ := a.engine.Ledger().ExecutorStakeOf(principal)
			return output(stake, func() {
				fmt.Printf("Executor %s staked %d (balance %d)\n", principal, amount, stake.Amount)
			})
		},
	}

	return cmd
}

func newUnstakeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unstake",
		Short: "Withdraw executor collateral",
		Long: `Withdraw the calling principal's full executor stake and deactivate
the account. The executor role lapses with the stake.`,
		Example: `  keeper unstake --as bob`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			principal := a.caller()
			refunded, err := a.engine.UnstakeExecutor(ctx, principal)
			if err != nil {
				return err
			}

			a.saveExecutorStake(ctx, principal)

			result := struct {
				Principal string `json:"principal"`
				Refunded  uint64 `json:"refunded"`
			}{principal, refunded}
			return output(result, func() {
				fmt.Printf("Executor %s unstaked, %d refunded\n", principal, refunded)
			})
		},
	}

	return cmd
}

func newEscrowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escrow <id> <amount>",
		Short: "Escrow collateral on a condition",
		Long: `Escrow one-shot collateral against a condition. The deposit must meet
the minimum condition stake, and each condition takes exactly one escrow
for its lifetime.`,
		Example: `  keeper escrow 1 50 --as alice`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			owner := a.caller()
			if err := a.engine.StakeCondition(ctx, owner, id, amount); err != nil {
				return err
			}

			a.saveConditionStake(ctx, id)

			stake, _ := a.engine.Ledger().ConditionStakeOf(id)
			return output(stake, func() {
				fmt.Printf("Escrowed %d on condition %d for %s\n", amount, id, owner)
			})
		},
	}

	return cmd
}

func newReleaseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release <id>",
		Short: "Release a condition's escrow to its owner",
		Long: `Refund a condition's escrow in full to the principal that staked it.
The stake owner or the protocol owner may release. Release is terminal:
the same escrow can never pay out twice.`,
		Example: `  keeper release 1 --as alice`,
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

			refunded, err := a.engine.ReleaseConditionStake(ctx, id, a.caller())
			if err != nil {
				return err
			}

			a.saveConditionStake(ctx, id)

			result := struct {
				ConditionID uint64 `json:"condition_id"`
				Refunded    uint64 `json:"refunded"`
			}{id, refunded}
			return output(result, func() {
				fmt.Printf("Released %d escrow from condition %d\n", refunded, id)
			})
		},
	}

	return cmd
}
