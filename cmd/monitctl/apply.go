package main

import (
	"fmt"

	"github.com/spf13/cobra"

	monit "github.com/axondata/go-monit"
)

func newApplyCmd(opts *rootOptions) *cobra.Command {
	var (
		skipInstall bool
		stopOnError bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Install, configure and reconcile every service in the config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			bin := cfg.Instance.Binary
			if !skipInstall {
				installer, err := newInstaller(cfg, opts)
				if err != nil {
					return err
				}
				if err := installer.Install(ctx); err != nil {
					return err
				}
				if bin == "" {
					bin = installer.Binary()
				}
			} else if bin == "" {
				if bin, err = binary(cfg, opts); err != nil {
					return err
				}
			}

			inst := cfg.Instance.NewInstance(bin, opts.runner(cfg, nil), opts.log)
			if _, err := configure(ctx, cfg, inst, opts.log); err != nil {
				return err
			}

			steps, err := planSteps(cfg, inst)
			if err != nil {
				return err
			}
			applier := monit.NewApplier(
				monit.WithContinueOnError(!stopOnError),
				monit.WithApplierLogger(opts.log),
			)
			results, err := applier.Apply(ctx, steps...)
			for _, r := range results {
				status := changedWord(r.Changed)
				if r.Err != nil {
					status = "failed: " + r.Err.Error()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", r.Step.Action, r.Step.Service.Name, status)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&skipInstall, "skip-install", false, "do not install the supervisor")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "stop at the first failed step")
	return cmd
}

// planSteps expands every service's action list into ordered steps
func planSteps(cfg *Config, inst *monit.Instance) ([]monit.Step, error) {
	var steps []monit.Step
	for _, sc := range cfg.Services {
		actions, err := sc.ParseActions()
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", sc.Name, err)
		}
		svc := sc.NewService(inst)
		for _, a := range actions {
			steps = append(steps, monit.Step{Service: svc, Action: a})
		}
	}
	return steps, nil
}
