package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/velmie/worklog"
	"github.com/velmie/worklog/sqlite"
)

func newAttemptsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts <db>",
		Short: "Show the SQLite attempt journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			logName, _ := cmd.Flags().GetString("log")
			out := cmd.OutOrStdout()

			if logName != "" {
				counts, err := store.CountByOutcome(cmd.Context(), logName)
				if err != nil {
					return err
				}
				for _, o := range []worklog.Outcome{worklog.OutcomeSucceeded, worklog.OutcomeRetry, worklog.OutcomeDead} {
					fmt.Fprintf(out, "%-10s %d\n", o, counts[o])
				}
			}

			attempts, err := store.ListAttempts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tLOG\tTX\tOFFSET\tATTEMPT\tOUTCOME\tDURATION\tERROR")
			for _, a := range attempts {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
					a.CreatedAt.Format(time.RFC3339), a.Log, a.TxID, a.Offset, a.Attempt, a.Outcome, a.Duration, a.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 50, "Maximum attempts to list, newest first")
	cmd.Flags().String("log", "", "Also print outcome counts for this work log")
	return cmd
}
