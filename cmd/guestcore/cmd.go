package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/touchstone-hle/guestcore/pkg/logging"
)

// cliLogger is the root of the CLI's own logging namespace, kept distinct
// from the sublogger each core package creates for itself (e.g. "macho",
// "posixio") so that CLI-level diagnostics are tagged "cli" rather than
// attributed to whichever core package happened to be running.
var cliLogger = logging.RootLogger.Sublogger("cli")

// warnf reports a recoverable anomaly found while running a subcommand
// (e.g. a bundle with no readable Info.plist) without aborting it.
func warnf(format string, v ...interface{}) {
	cliLogger.Warnf(format, v...)
}

// fatalf reports a subcommand's terminal error and exits with a non-zero
// status, since a failed mount or load has nothing further to do.
func fatalf(err error) {
	cliLogger.Error(err)
	os.Exit(1)
}

// registerHelpFlag registers the manual help flag each subcommand carries,
// disabling Cobra's sorting so that flags appear in registration order.
func registerHelpFlag(flags *pflag.FlagSet, target *bool) {
	flags.SortFlags = false
	flags.BoolVarP(target, "help", "h", false, "Show help information")
}

// mainify wraps a Cobra entry point that returns an error into the standard
// Cobra Run signature, so that subcommands can rely on defer-based cleanup
// instead of calling os.Exit directly.
func mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			fatalf(err)
		}
	}
}
