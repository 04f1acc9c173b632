package main

import (
	"fmt"

	"github.com/spf13/cobra"

	monit "github.com/axondata/go-monit"
)

func newServiceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "service <enable|disable|start|stop|restart|status> NAME",
		Short: "Drive one watched service to a desired state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			verb, name := args[0], args[1]
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			inst, err := instance(cfg, opts, nil)
			if err != nil {
				return err
			}
			svc := serviceFor(cfg, inst, name)

			if verb == "status" {
				st, err := svc.Current(cmd.Context(), monit.ActionNothing)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: enabled=%t running=%t\n", name, st.Enabled, st.Running)
				return nil
			}

			action, err := monit.ParseAction(verb)
			if err != nil {
				return err
			}
			changed, err := svc.Reconcile(cmd.Context(), action)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", action, name, changedWord(changed))
			return nil
		},
	}
}

// serviceFor returns the configured service, or an unbound handle for a
// name the config file does not list
func serviceFor(cfg *Config, inst *monit.Instance, name string) *monit.Service {
	if sc, ok := cfg.Service(name); ok {
		return sc.NewService(inst)
	}
	return inst.Service(name)
}

func changedWord(changed bool) string {
	if changed {
		return "changed"
	}
	return "unchanged"
}
