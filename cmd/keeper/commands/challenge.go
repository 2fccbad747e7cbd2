package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newChallengeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "challenge <id>",
		Short: "Challenge the most recent execution proof",
		Long: `Open a fraud dispute against a condition's most recent execution
proof. Any principal may challenge; no bond is required. A challenge must
land at or before the challenge deadline block, and each execution cycle
admits at most one.`,
		Example: `  keeper challenge 1 --as carol --block 5100`,
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

			if err := a.engine.Challenge(ctx, id, a.caller()); err != nil {
				return err
			}

			p, err := a.engine.Proof(id)
			if err != nil {
				return err
			}
			return output(p, func() {
				fmt.Printf("Challenge opened against condition %d (executor %s, block %d)\n",
					id, p.Executor, p.Block)
			})
		},
	}

	return cmd
}

func newResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <id> <valid|fraud>",
		Short: "Resolve an open challenge",
		Long: `Rule on an open challenge. Only the slasher (or the owner) may resolve.

A "valid" verdict upholds the execution. A "fraud" verdict marks the proof
invalid and moves the condition to slashed, but does not touch collateral:
slashing is a separate, explicit step.`,
		Example: `  # Uphold the execution
  keeper resolve 1 valid --as arbiter

  # Rule fraud, then take the executor's stake
  keeper resolve 1 fraud --as arbiter
  keeper slash bob 500 --reason "fraudulent proof" --condition 1 --as arbiter`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var valid bool
			switch args[1] {
			case "valid":
				valid = true
			case "fraud", "invalid":
				valid = false
			default:
				return fmt.Errorf("verdict must be 'valid' or 'fraud', got %q", args[1])
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if err := a.engine.Resolve(ctx, id, valid, a.caller()); err != nil {
				return err
			}

			if !valid {
				p, perr := a.engine.Proof(id)
				if perr == nil {
					a.logger.Warn().
						Uint64("condition_id", id).
						Str("executor", p.Executor).
						Msg("Fraud ruled; executor collateral is untouched until `keeper slash` is applied")
				}
			}

			c, err := a.engine.Condition(id)
			if err != nil {
				return err
			}
			return output(c, func() {
				if valid {
					fmt.Printf("Challenge on condition %d resolved: execution upheld\n", id)
				} else {
					fmt.Printf("Challenge on condition %d resolved: fraud, condition slashed\n", id)
				}
			})
		},
	}

	return cmd
}
