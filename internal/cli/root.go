// Package cli implements the worklogctl commands.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/velmie/worklog"
)

// DefaultLayout is the field layout of worklogd index updates.
const DefaultLayout = "u64,u32,u64,u8"

// NewRoot constructs the worklogctl root command.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "worklogctl",
		Short:         "Inspect and repair worklog files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	root.AddCommand(
		newInspectCommand(),
		newDumpCommand(),
		newRecoverCommand(),
		newRequeueCommand(),
		newDeadLettersCommand(),
		newAttemptsCommand(),
	)
	return root
}

func layoutHook(cmd *cobra.Command) (*worklog.LayoutHook, error) {
	spec, _ := cmd.Flags().GetString("layout")
	layout, err := worklog.ParseLayout(spec)
	if err != nil {
		return nil, fmt.Errorf("--layout: %w", err)
	}
	return worklog.NewLayoutHook(layout...)
}

func addLayoutFlag(cmd *cobra.Command) {
	cmd.Flags().String("layout", DefaultLayout, "Comma separated field kinds of one entry (i8..i64, u8..u64, f32, f64)")
}

func commandLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
