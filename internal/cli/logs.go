package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/velmie/worklog"
)

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <log>",
		Short: "Count records by status without modifying the file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hook, err := layoutHook(cmd)
			if err != nil {
				return err
			}
			summary, err := worklog.ScanFile[worklog.Item](args[0], hook, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:        %s\n", args[0])
			fmt.Fprintf(out, "layout:      %s (%d bytes)\n", hook.Layout(), hook.EntrySize())
			fmt.Fprintf(out, "records:     %d\n", summary.Records)
			fmt.Fprintf(out, "complete:    %d\n", summary.Complete)
			fmt.Fprintf(out, "incomplete:  %d\n", summary.Incomplete)
			fmt.Fprintf(out, "corrupt:     %d\n", summary.Corrupt)
			fmt.Fprintf(out, "torn bytes:  %d\n", summary.TornBytes)
			return nil
		},
	}
	addLayoutFlag(cmd)
	return cmd
}

func newDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <log>",
		Short: "Print every record of a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hook, err := layoutHook(cmd)
			if err != nil {
				return err
			}
			incompleteOnly, _ := cmd.Flags().GetBool("incomplete")

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OFFSET\tSTATUS\tTX\tITEM")
			_, err = worklog.ScanFile[worklog.Item](args[0], hook, func(rec worklog.RecordView[worklog.Item]) error {
				if incompleteOnly && rec.Status != worklog.StatusIncomplete {
					return nil
				}
				item := rec.Item.String()
				if rec.Err != nil {
					item = fmt.Sprintf("<%v> %x", rec.Err, rec.Payload)
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", rec.Offset, rec.Status, rec.TxID, item)
				return nil
			})
			if ferr := tw.Flush(); err == nil {
				err = ferr
			}
			return err
		},
	}
	addLayoutFlag(cmd)
	cmd.Flags().Bool("incomplete", false, "Only print INCOMPLETE records")
	return cmd
}

func newRecoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <log>",
		Short: "Truncate a torn trailing record and report the log state",
		Long: `Opens the log the way a worker does on startup: a partially written
trailing record is cut off and the file is synced. The log is kept on disk.
Do not run this against a log a worker currently owns.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hook, err := layoutHook(cmd)
			if err != nil {
				return err
			}
			wl := worklog.NewWorkLog[worklog.Item](args[0], hook,
				worklog.WithDisposal(worklog.DisposalNone),
				worklog.WithLogLogger(commandLogger(cmd)),
			)
			if err := wl.Start(); err != nil {
				return err
			}
			st := wl.Stats()
			if err := wl.Close(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "recovered:   %t\n", st.Recovered)
			fmt.Fprintf(out, "records:     %d\n", st.Records)
			fmt.Fprintf(out, "size:        %d\n", st.AppendOffset)
			return nil
		},
	}
	addLayoutFlag(cmd)
	return cmd
}

func newRequeueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue <fail-log> <log>",
		Short: "Append dead-lettered entries back into a work log",
		Long: `Copies every decodable record of a fail log into the target work log
with its original transaction id, then archives the fail log as
<fail-log>.<unix-millis>. The target must not be open by a running worker.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hook, err := layoutHook(cmd)
			if err != nil {
				return err
			}
			keep, _ := cmd.Flags().GetBool("keep")
			logger := commandLogger(cmd)
			failPath, target := args[0], args[1]

			var entries []txEntry
			summary, err := worklog.ScanFile[worklog.Item](failPath, hook, func(rec worklog.RecordView[worklog.Item]) error {
				if rec.Err != nil {
					logger.Warn("worklogctl skipping undecodable record", "offset", rec.Offset, "err", rec.Err)
					return nil
				}
				entries = append(entries, txEntry{txID: rec.TxID, item: rec.Item})
				return nil
			})
			if err != nil {
				return err
			}
			if summary.TornBytes > 0 {
				logger.Warn("worklogctl fail log has a torn tail", "bytes", summary.TornBytes)
			}

			wl := worklog.NewWorkLog[worklog.Item](target, hook,
				worklog.WithDisposal(worklog.DisposalNone),
				worklog.WithLogLogger(logger),
			)
			if err := wl.Start(); err != nil {
				return err
			}
			for _, b := range groupByTx(entries) {
				if err := wl.Add(b.txID, b.items...); err != nil {
					return errors.Join(err, wl.Close())
				}
			}
			if err := wl.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d entries into %s\n", len(entries), target)
			if keep {
				return nil
			}
			archived := fmt.Sprintf("%s.%d", failPath, time.Now().UnixMilli())
			if err := os.Rename(failPath, archived); err != nil {
				return fmt.Errorf("archive fail log: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %s to %s\n", failPath, archived)
			return nil
		},
	}
	addLayoutFlag(cmd)
	cmd.Flags().Bool("keep", false, "Leave the fail log in place")
	return cmd
}

type txEntry struct {
	txID worklog.TxID
	item worklog.Item
}

type txBatch struct {
	txID  worklog.TxID
	items []worklog.Item
}

// groupByTx merges consecutive entries of the same transaction, keeping log order.
func groupByTx(entries []txEntry) []txBatch {
	var batches []txBatch
	for _, e := range entries {
		if n := len(batches); n > 0 && batches[n-1].txID == e.txID {
			batches[n-1].items = append(batches[n-1].items, e.item)
			continue
		}
		batches = append(batches, txBatch{txID: e.txID, items: []worklog.Item{e.item}})
	}
	return batches
}
