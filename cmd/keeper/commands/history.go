package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		eventType   string
		conditionID uint64
		executor    string
		slashes     bool
		limit       int
		offset      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the protocol event log",
		Long: `List persisted protocol events, newest first. Filter by event type or
condition id. With --slashes, list the hash-chained slash history instead,
optionally filtered by executor.`,
		Example: `  # Everything that happened to condition 1
  keeper history --condition 1

  # All executions
  keeper history --type condition.executed

  # The slash audit trail for one executor
  keeper history --slashes --executor bob`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if slashes {
				records, err := a.store.ListSlashRecords(ctx, executor, limit, offset)
				if err != nil {
					return err
				}
				return output(records, func() {
					for _, r := range records {
						fmt.Printf("#%d  %s  executor=%s amount=%d condition=%d reason=%q\n",
							r.Sequence, r.Timestamp.Format(time.RFC3339), r.Executor, r.Amount, r.ConditionID, r.Reason)
					}
				})
			}

			events, err := a.store.ListEvents(ctx, eventType, conditionID, limit, offset)
			if err != nil {
				return err
			}
			return output(events, func() {
				for _, e := range events {
					fmt.Printf("%s  %-24s condition=%d principal=%s %s\n",
						e.Timestamp.Format(time.RFC3339), e.Type, e.ConditionID, e.Principal, e.Message)
				}
			})
		},
	}

	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().Uint64Var(&conditionID, "condition", 0, "filter by condition id")
	cmd.Flags().StringVar(&executor, "executor", "", "filter slash records by executor")
	cmd.Flags().BoolVar(&slashes, "slashes", false, "list the slash history instead of events")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")

	return cmd
}
