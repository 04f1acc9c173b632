package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	monit "github.com/axondata/go-monit"
)

func newConfigureCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Write and validate the main config and every service fragment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			inst, err := instance(cfg, opts, nil)
			if err != nil {
				return err
			}
			changed, err := configure(cmd.Context(), cfg, inst, opts.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) changed\n", changed)
			return nil
		},
	}
}

// configure lays out the instance tree and writes every managed file.
// Files are validated before they replace the live copy.
func configure(ctx context.Context, cfg *Config, inst *monit.Instance, log logrus.FieldLogger) (int, error) {
	if err := inst.EnsureDirectories(); err != nil {
		return 0, err
	}

	changed := 0
	count := func(ok bool) {
		if ok {
			changed++
		}
	}

	if inst.HTTPDPassword != "" {
		ok, err := inst.WriteCredentials()
		if err != nil {
			return changed, err
		}
		count(ok)
	}

	rc, err := mainConfig(cfg, inst)
	if err != nil {
		return changed, err
	}
	ok, err := inst.WriteConfig(ctx, rc)
	if err != nil {
		return changed, err
	}
	count(ok)

	for _, svc := range cfg.Services {
		content, err := svc.Fragment()
		if err != nil {
			return changed, err
		}
		if content == nil {
			log.WithField("service", svc.Name).Debug("no fragment configured")
			continue
		}
		ok, err := inst.WriteFragment(ctx, svc.Name, content)
		if err != nil {
			return changed, fmt.Errorf("service %s: %w", svc.Name, err)
		}
		count(ok)
	}
	return changed, nil
}

func mainConfig(cfg *Config, inst *monit.Instance) ([]byte, error) {
	if cfg.Instance.Config == "" {
		return inst.RenderConfig()
	}
	data, err := os.ReadFile(cfg.Instance.Config)
	if err != nil {
		return nil, fmt.Errorf("reading main config: %w", err)
	}
	return data, nil
}
