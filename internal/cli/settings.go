package cli

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stigoleg/middleclick/internal/config"
	"github.com/stigoleg/middleclick/internal/service"
)

// openStore loads the settings file. An invalid file is reported and the
// defaults stay active.
func openStore(opts *config.Options) (*config.Store, error) {
	store := config.NewStore(opts.ConfigPath)
	if err := store.Load(); err != nil {
		if !errors.Is(err, config.ErrInvalidSettings) {
			return nil, err
		}
		logrus.WithError(err).Warn("Invalid settings file, using defaults")
	}
	return store, nil
}

// applyOverrides persists gesture flags given on the command line.
func applyOverrides(store *config.Store, opts *config.Options) error {
	if !opts.HasOverrides() {
		return nil
	}
	next := store.Current()
	if err := opts.Apply(&next); err != nil {
		return err
	}
	return store.Update(func(s *config.Settings) { *s = next })
}

func newConfigCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			if err := applyOverrides(store, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "; %s\n", store.Path())
			_, err = store.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}

func newIgnoreCommand(opts *config.Options) *cobra.Command {
	ignore := &cobra.Command{
		Use:   "ignore",
		Short: "Manage applications where clicks are never rewritten",
	}
	ignore.AddCommand(
		newIgnoreEditCommand(opts, "add", "Ignore applications", true),
		newIgnoreEditCommand(opts, "remove", "Stop ignoring applications", false),
		&cobra.Command{
			Use:   "list",
			Short: "List ignored applications",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore(opts)
				if err != nil {
					return err
				}
				for _, app := range store.Current().IgnoredApps {
					fmt.Fprintln(cmd.OutOrStdout(), app)
				}
				return nil
			},
		},
	)
	return ignore
}

func newIgnoreEditCommand(opts *config.Options, use, short string, ignored bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <app-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			err = store.Update(func(s *config.Settings) {
				for _, app := range args {
					*s = s.WithIgnored(app, ignored)
				}
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ignored applications: %v\n", store.Current().IgnoredApps)
			notifyDaemon(cmd)
			return nil
		},
	}
}

// notifyDaemon asks a detached daemon to reload its settings.
func notifyDaemon(cmd *cobra.Command) {
	proc, err := service.RunningDaemon()
	if err != nil {
		return
	}
	if err := signalReload(proc); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Could not notify running daemon: %v\n", err)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reloaded running daemon (pid %d)\n", proc.Pid)
}
