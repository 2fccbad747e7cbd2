package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newActivateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <id>",
		Short: "Activate a registered condition",
		Long: `Arm a registered condition. Only the registrant may activate.

An active condition is executable once its trigger is met.`,
		Example: `  keeper activate 1 --as alice`,
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

			if err := a.engine.Activate(ctx, id, a.caller()); err != nil {
				return err
			}

			c, err := a.engine.Condition(id)
			if err != nil {
				return err
			}
			return output(c, func() {
				fmt.Printf("Condition %d active\n", id)
			})
		},
	}

	return cmd
}

func newCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a condition",
		Long: `Cancel a condition before it reaches a terminal state. The registrant
or the protocol owner may cancel. Cancellation is terminal.

Any escrow staked on the condition stays held until released or forfeited.`,
		Example: `  keeper cancel 1 --as alice`,
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

			if err := a.engine.Cancel(ctx, id, a.caller()); err != nil {
				return err
			}

			c, err := a.engine.Condition(id)
			if err != nil {
				return err
			}
			return output(c, func() {
				fmt.Printf("Condition %d cancelled\n", id)
			})
		},
	}

	return cmd
}
