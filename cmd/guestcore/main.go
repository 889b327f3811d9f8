package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/touchstone-hle/guestcore/pkg/guestcore"
)

var rootConfiguration struct {
	help    bool
	version bool
}

var rootCommand = &cobra.Command{
	Use:                   "guestcore",
	Short:                 "Inspect and mount early-iPhone-OS application bundles",
	DisableFlagsInUseLine: true,
	SilenceUsage:          true,
	SilenceErrors:         true,
	RunE: func(command *cobra.Command, arguments []string) error {
		if rootConfiguration.version {
			fmt.Println(guestcore.Version)
			return nil
		}
		return command.Help()
	},
}

func init() {
	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""

	flags := rootCommand.Flags()
	registerHelpFlag(flags, &rootConfiguration.help)
	flags.BoolVarP(&rootConfiguration.version, "version", "v", false, "Show version information")

	rootCommand.AddCommand(
		mountCommand,
		loadCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fatalf(err)
	}
	os.Exit(0)
}
