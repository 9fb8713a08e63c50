package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"github.com/velmie/worklog"
	"github.com/velmie/worklog/mysql"
)

func newDeadLettersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dl"},
		Short:   "Operate on the MySQL dead-letter mirror",
	}
	cmd.PersistentFlags().String("dsn", "", "MySQL DSN, e.g. user:pass@tcp(host:3306)/db?parseTime=true")
	cmd.PersistentFlags().String("table", "worklog_dead_letters", "Dead-letter table name")
	_ = cmd.MarkPersistentFlagRequired("dsn")

	cmd.AddCommand(
		newDeadLettersSchemaCommand(),
		newDeadLettersListCommand(),
		newDeadLettersResolveCommand(),
		newDeadLettersCleanupCommand(),
	)
	return cmd
}

func openDeadLetterDB(cmd *cobra.Command) (*sql.DB, string, error) {
	dsn, _ := cmd.Flags().GetString("dsn")
	table, _ := cmd.Flags().GetString("table")
	if dsn == "" {
		return nil, "", errors.New("--dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open db: %w", err)
	}
	return db, table, nil
}

func newDeadLettersSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the dead-letter table if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, table, err := openDeadLetterDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			schema, err := mysql.Schema(table)
			if err != nil {
				return err
			}
			if _, err := db.ExecContext(cmd.Context(), schema); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
			return nil
		},
	}
}

func newDeadLettersListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open dead letters, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, table, err := openDeadLetterDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			store, err := mysql.NewStore(db, mysql.WithTable(table))
			if err != nil {
				return err
			}
			logName, _ := cmd.Flags().GetString("log")
			limit, _ := cmd.Flags().GetInt("limit")

			records, err := store.ListOpen(cmd.Context(), logName, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLOG\tTX\tOFFSET\tATTEMPTS\tFAILED AT\tERROR")
			for _, rec := range records {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n",
					rec.ID, rec.Log, rec.TxID, rec.Offset, rec.Attempts, rec.FailedAt.Format(time.RFC3339), rec.LastError)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("log", "", "Only list letters of this work log")
	cmd.Flags().Int("limit", 100, "Maximum rows to list")
	return cmd
}

func newDeadLettersResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>...",
		Short: "Mark dead letters resolved",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, len(args))
			for i, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q", arg)
				}
				ids[i] = id
			}
			db, table, err := openDeadLetterDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			store, err := mysql.NewStore(db, mysql.WithTable(table))
			if err != nil {
				return err
			}
			n, err := store.Resolve(cmd.Context(), ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d\n", n)
			return nil
		},
	}
}

func newDeadLettersCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old dead letters, once or periodically",
		Long: `Wraps the cleanup maintainer for cron jobs: rows older than --retention
are deleted in batches of --limit under a MySQL advisory lock, so several
instances can run without deleting concurrently.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, table, err := openDeadLetterDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			retention, _ := cmd.Flags().GetDuration("retention")
			checkEvery, _ := cmd.Flags().GetDuration("check-every")
			limit, _ := cmd.Flags().GetInt("limit")
			lockName, _ := cmd.Flags().GetString("lock-name")
			includeOpen, _ := cmd.Flags().GetBool("include-open")
			openRetention, _ := cmd.Flags().GetDuration("open-retention")
			logName, _ := cmd.Flags().GetString("log")
			once, _ := cmd.Flags().GetBool("once")

			logger := commandLogger(cmd)
			maintainer, err := mysql.NewCleanupMaintainer(db, mysql.CleanupMaintainerConfig{
				Table:         table,
				Retention:     retention,
				CheckEvery:    checkEvery,
				Limit:         limit,
				IncludeOpen:   includeOpen,
				OpenRetention: openRetention,
				Log:           logName,
				LockName:      lockName,
				Clock:         worklog.SystemClock{},
				Logger:        logger,
			})
			if err != nil {
				return fmt.Errorf("init maintainer: %w", err)
			}

			ctx := cmd.Context()
			if once {
				result, err := maintainer.Ensure(ctx)
				if err != nil {
					return fmt.Errorf("cleanup: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted resolved=%d open=%d\n", result.Resolved, result.Open)
				return nil
			}
			if err := maintainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run maintainer: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Duration("retention", 0, "Delete rows older than this duration")
	cmd.Flags().Duration("check-every", time.Hour, "How often to run cleanup")
	cmd.Flags().Int("limit", 0, "Max rows deleted per run (0 uses default)")
	cmd.Flags().String("lock-name", "", "Advisory lock name (optional)")
	cmd.Flags().Bool("include-open", false, "Delete unresolved rows as well")
	cmd.Flags().Duration("open-retention", 0, "Retention of unresolved rows (0 uses --retention)")
	cmd.Flags().String("log", "", "Only clean up dead letters of this work log")
	cmd.Flags().Bool("once", false, "Run once and exit")
	return cmd
}
