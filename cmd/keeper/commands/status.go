package commands

import (
	"fmt"

	"github.com/openkeeper/openkeeper/pkg/collateral"
	"github.com/openkeeper/openkeeper/pkg/protocol"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	var registrant string

	cmd := &cobra.Command{
		Use:   "status [id]",
		Short: "Show condition or protocol status",
		Long: `With an id, show one condition: its record, the latest execution
proof, and whether its trigger is met at the given head. Without an id,
show the protocol aggregates: lifecycle counters, collateral totals, the
executor set, and the slash history head.`,
		Example: `  # One condition at a given head
  keeper status 1 --block 5000

  # Protocol aggregates
  keeper status

  # One registrant's conditions
  keeper status --registrant alice`,
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return conditionStatus(a, id)
			}

			if registrant != "" {
				conditions := a.engine.ConditionsByRegistrant(registrant)
				return output(conditions, func() {
					for _, c := range conditions {
						fmt.Printf("%4d  %-18s %-10s value=%d target=%s\n",
							c.ID, c.Type, c.Status, c.Value, c.Target.Address)
					}
				})
			}

			return protocolStatus(a)
		},
	}

	cmd.Flags().StringVar(&registrant, "registrant", "", "list one registrant's conditions")

	return cmd
}

func conditionStatus(a *app, id uint64) error {
	c, err := a.engine.Condition(id)
	if err != nil {
		return err
	}

	ready, _ := a.engine.IsReady(id)
	proof, perr := a.engine.Proof(id)

	status := struct {
		Condition *protocol.Condition      `json:"condition"`
		Proof     *protocol.ExecutionProof `json:"proof,omitempty"`
		Ready     bool                     `json:"ready"`
		Block     uint64                   `json:"block"`
	}{c, nil, ready, a.clock.Head().Number}
	if perr == nil {
		status.Proof = proof
	}

	return output(status, func() {
		fmt.Printf("Condition %d: %s %s (value %d, target %s, repeatable %v)\n",
			c.ID, c.Type, c.Status, c.Value, c.Target.Address, c.Repeatable)
		fmt.Printf("  Ready at block %d: %v\n", status.Block, ready)
		if status.Proof != nil && status.Proof.Block > 0 {
			p := status.Proof
			fmt.Printf("  Last proof: executor %s at block %d (ref %s)\n", p.Executor, p.Block, p.Ref)
			fmt.Printf("  Challenged %v, valid %v, resolved %v; window through block %d\n",
				p.Challenged, p.Valid, p.Resolved, c.ChallengeDeadline)
		}
	})
}

func protocolStatus(a *app) error {
	ledger := a.engine.Ledger()

	var executors []collateral.ExecutorStake
	for _, principal := range ledger.ExecutorIndex() {
		if stake, ok := ledger.ExecutorStakeOf(principal); ok {
			executors = append(executors, stake)
		}
	}

	status := struct {
		Counters    protocol.Counters          `json:"counters"`
		TotalStaked uint64                     `json:"total_staked"`
		TotalEscrow uint64                     `json:"total_escrow"`
		Executors   []collateral.ExecutorStake `json:"executors,omitempty"`
		SlashHead   string                     `json:"slash_head"`
		SlashCount  int                        `json:"slash_count"`
	}{
		Counters:    a.engine.Counters(),
		TotalStaked: ledger.TotalStaked(),
		TotalEscrow: ledger.TotalEscrow(),
		Executors:   executors,
		SlashHead:   ledger.SlashHistory().Head(),
		SlashCount:  ledger.SlashHistory().Length(),
	}

	return output(status, func() {
		c := status.Counters
		fmt.Printf("Conditions: %d registered, %d active, %d executed, %d cancelled, %d slashed, %d challenged\n",
			c.Registered, c.Active, c.Executed, c.Cancelled, c.Slashed, c.Challenged)
		fmt.Printf("Collateral: %d staked across %d executors, %d in escrow\n",
			status.TotalStaked, len(status.Executors), status.TotalEscrow)
		for _, e := range status.Executors {
			fmt.Printf("  %-20s balance=%d slashed=%d executions=%d misses=%d active=%v\n",
				e.Principal, e.Amount, e.Slashed, e.Executions, e.Misses, e.Active)
		}
		fmt.Printf("Slash history: %d entries, head %s\n", status.SlashCount, status.SlashHead)
	})
}
