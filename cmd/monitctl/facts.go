package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	monit "github.com/axondata/go-monit"
)

type strategyView struct {
	Provider     string `yaml:"provider"`
	Kind         string `yaml:"kind"`
	Version      string `yaml:"version,omitempty"`
	MachineLabel string `yaml:"machine_label,omitempty"`
	URL          string `yaml:"url,omitempty"`
	InstallDir   string `yaml:"install_dir,omitempty"`
	Package      string `yaml:"package,omitempty"`
	Binary       string `yaml:"binary"`
}

type factsView struct {
	Facts    monit.Facts   `yaml:"facts"`
	Strategy *strategyView `yaml:"strategy,omitempty"`
	Error    string        `yaml:"error,omitempty"`
}

func viewStrategy(s monit.Strategy) *strategyView {
	return &strategyView{
		Provider:     string(s.Provider),
		Kind:         s.Kind.String(),
		Version:      s.Version,
		MachineLabel: s.MachineLabel,
		URL:          s.URL,
		InstallDir:   s.InstallDir,
		Package:      s.Package,
		Binary:       s.Binary,
	}
}

func newFactsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "facts",
		Short: "Print detected host facts and the resolved install strategy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			facts, strategy, err := resolveStrategy(cfg, opts)
			view := factsView{Facts: facts}
			if err != nil {
				view.Error = err.Error()
			} else {
				view.Strategy = viewStrategy(strategy)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(view); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// resolveStrategy detects host facts and resolves the install strategy for cfg
func resolveStrategy(cfg *Config, opts *rootOptions) (monit.Facts, monit.Strategy, error) {
	facts, err := monit.DetectFacts()
	if err != nil {
		return facts, monit.Strategy{}, err
	}
	ro, err := cfg.Instance.ResolveOptions()
	if err != nil {
		return facts, monit.Strategy{}, err
	}
	s, err := monit.Resolve(facts, ro)
	if err != nil {
		return facts, s, err
	}
	opts.log.WithFields(logrus.Fields{
		"provider": s.Provider,
		"version":  s.Version,
		"binary":   s.Binary,
	}).Debug("resolved install strategy")
	return facts, s, nil
}

// binary returns the configured binary, or the resolved strategy's binary
func binary(cfg *Config, opts *rootOptions) (string, error) {
	if cfg.Instance.Binary != "" {
		return cfg.Instance.Binary, nil
	}
	_, s, err := resolveStrategy(cfg, opts)
	if err != nil {
		return "", err
	}
	return s.Binary, nil
}

// instance builds the configured instance with its binary resolved
func instance(cfg *Config, opts *rootOptions, metrics *monit.Metrics) (*monit.Instance, error) {
	bin, err := binary(cfg, opts)
	if err != nil {
		return nil, err
	}
	return cfg.Instance.NewInstance(bin, opts.runner(cfg, metrics), opts.log), nil
}
