// Copyright (c) 2025 DataSender
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the datasender CLI.
// Invoked without a subcommand it runs the export pipeline once, which is how
// the scheduler calls it. The remaining subcommands inspect the configuration
// and manage secrets in the OS keychain.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"datasender/cli/internal/errors"
	"datasender/cli/internal/logging"
)

var (
	configPath string
	logDir     string
	verbose    bool

	// exitCode is set by commands that report their own outcome.
	exitCode = errors.ExitOK
)

// rootCmd runs one pipeline cycle when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "datasender",
	Short: "Export updated items and hand them off to the downstream consumer",
	Long: `datasender runs one export cycle: it consumes a completion acknowledgment
from the mailbox (when configured), checks that the output folder is empty,
exports the query result to a new file and mails it (when configured).

A non-empty output folder skips the export. Every run writes a log file
named after its start time into the log folder.

Exit codes: 0 done, 10 skipped, 11 another run in progress,
65 export error, 69 connectivity error, 78 configuration error.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		exitCode = runOnce(cmd.Context(), configPath, logDir, verbose)
		return nil
	},
}

// Execute runs the CLI application and exits with the run's exit code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		pterm.Error.Println(logging.PresentError("", err))
		if exitCode == errors.ExitOK {
			exitCode = errors.ExitCode(err)
		}
	}
	os.Exit(exitCode)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration document (default: ./config.xml)")
	rootCmd.Flags().StringVar(&logDir, "log-dir", "", "Folder for the run log (overrides Log.Folder)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Echo the run log to stderr")
}
