// Package cli builds the middleclick command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stigoleg/middleclick/internal/config"
)

const appName = "middleclick"

// NewRootCommand returns the root command with every subcommand attached.
func NewRootCommand(version string) *cobra.Command {
	var opts *config.Options

	root := &cobra.Command{
		Use:   appName,
		Short: "Turn a multi-finger touchpad click or tap into a middle click",
		Long: `middleclick watches the touchpad and turns a click made while the configured
number of fingers rest on it, or a quick tap of those fingers, into a middle click.

It runs a status interface by default, or in the background with --headless or --daemon.`,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	opts = config.BindFlags(root.PersistentFlags())
	root.MarkFlagsMutuallyExclusive(config.FlagFastRestart, config.FlagImmediateRestart)

	root.AddCommand(newVersionCommand(version))
	root.AddCommand(newConfigCommand(opts))
	root.AddCommand(newIgnoreCommand(opts))
	return root
}

// Execute runs the command tree.
func Execute(version string) error {
	return NewRootCommand(version).ExecuteContext(context.Background())
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	}
}
