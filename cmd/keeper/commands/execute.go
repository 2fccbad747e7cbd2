package commands

import (
	"fmt"

	"github.com/openkeeper/openkeeper/pkg/policy"
	"github.com/spf13/cobra"
)

func newExecuteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute <id>",
		Short: "Execute a condition and record the proof",
		Long: `Dispatch the condition's callback through the relay and record the
execution proof optimistically. Only authorized executors (actively staked
principals and the owner) may execute.

The proof stands unless challenged before the challenge deadline. For
chain-evaluable triggers the readiness check is advisory: recording is
optimistic and a premature execution is exactly what the fraud-proof
window exists to catch.`,
		Example: `  keeper execute 1 --as bob --block 5000`,
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

			executor := a.caller()

			c, err := a.engine.Condition(id)
			if err != nil {
				return err
			}

			executorInput := &policy.ExecutorInput{Principal: executor}
			if stake, ok := a.engine.Ledger().ExecutorStakeOf(executor); ok {
				executorInput.Staked = stake.Amount
				executorInput.Slashed = stake.Slashed
				executorInput.Misses = stake.Misses
			}
			if err := a.checkPolicy(ctx, &policy.Input{
				Condition: &policy.ConditionInput{
					ID:     c.ID,
					Type:   string(c.Type),
					Value:  c.Value,
					Target: c.Target.Address,
				},
				Registrant: a.registrantInput(c.Registrant),
				Executor:   executorInput,
				Context: &policy.Context{
					Operation: "execute",
					Block:     a.clock.Head().Number,
					Timestamp: a.clock.Head().Time,
				},
			}); err != nil {
				return err
			}

			if ready, err := a.engine.IsReady(id); err == nil && !ready {
				a.logger.Warn().
					Uint64("condition_id", id).
					Uint64("block", a.clock.Head().Number).
					Msg("Trigger not met at the given head; recording optimistically")
			}

			result, err := a.relay.Dispatch(ctx, id, c.Target.Address, c.Target.Payload)
			if err != nil {
				return fmt.Errorf("relay dispatch failed: %w", err)
			}

			updated, err := a.engine.RecordExecution(ctx, id, executor, result.Ref)
			if err != nil {
				return err
			}

			// The success counter moved; write the account through.
			a.saveExecutorStake(ctx, executor)

			return output(updated, func() {
				fmt.Printf("Condition %d executed by %s at block %d (proof %s)\n",
					id, executor, updated.LastExecutedBlock, updated.LastProofRef)
				fmt.Printf("Challenge window open through block %d\n", updated.ChallengeDeadline)
			})
		},
	}

	return cmd
}
