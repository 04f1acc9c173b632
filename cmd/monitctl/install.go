package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	monit "github.com/axondata/go-monit"
)

const downloadTimeout = 5 * time.Minute

func newInstallCmd(opts *rootOptions) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve an install strategy and install the supervisor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			installer, err := newInstaller(cfg, opts)
			if err != nil {
				return err
			}
			if remove {
				if err := installer.Uninstall(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", installer.Binary())
				return nil
			}
			if err := installer.Install(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), installer.Binary())
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "uninstall", false, "remove the installed supervisor instead")
	return cmd
}

func newInstaller(cfg *Config, opts *rootOptions) (monit.Installer, error) {
	_, strategy, err := resolveStrategy(cfg, opts)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: downloadTimeout}
	return monit.NewInstaller(strategy,
		monit.WithInstallerLogger(opts.log),
		monit.WithInstallerRunner(opts.runner(cfg, nil)),
		monit.WithFetch(monit.NewHTTPFetch(client, opts.log)),
	), nil
}
