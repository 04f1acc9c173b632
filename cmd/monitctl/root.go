package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	monit "github.com/axondata/go-monit"
)

// DefaultConfigFile is read when --config is not given
const DefaultConfigFile = "/etc/monitctl.yaml"

type rootOptions struct {
	cfgFile   string
	verbose   bool
	logFormat string
	timeout   time.Duration
	wait      time.Duration

	// timeoutSet and waitSet record explicit flags, including zero values
	timeoutSet bool
	waitSet    bool

	log *logrus.Logger
}

// NewRootCmd returns the root command for monitctl
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{log: logrus.New()}

	rootCmd := &cobra.Command{
		Use:           "monitctl",
		Short:         "Install, configure and reconcile a monit supervisor",
		Long:          "monitctl resolves an install strategy for monit, writes validated configuration and drives watched services to a desired state.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.timeoutSet = cmd.Flags().Changed("timeout")
			opts.waitSet = cmd.Flags().Changed("wait")
			return opts.setupLogger(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is "+DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format: text|json")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "retry budget per command (overrides the config file)")
	rootCmd.PersistentFlags().DurationVar(&opts.wait, "wait", 0, "delay between attempts (overrides the config file)")

	rootCmd.AddCommand(newFactsCmd(opts))
	rootCmd.AddCommand(newInstallCmd(opts))
	rootCmd.AddCommand(newConfigureCmd(opts))
	rootCmd.AddCommand(newServiceCmd(opts))
	rootCmd.AddCommand(newApplyCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func (o *rootOptions) setupLogger(cmd *cobra.Command) error {
	o.log.SetOutput(cmd.ErrOrStderr())
	switch o.logFormat {
	case "", "text":
		o.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		o.log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", o.logFormat)
	}
	if o.verbose {
		o.log.SetLevel(logrus.DebugLevel)
	}
	return nil
}

// load reads the config file and applies flag overrides
func (o *rootOptions) load() (*Config, error) {
	path := o.cfgFile
	optional := false
	if path == "" {
		path = DefaultConfigFile
		optional = true
	}
	cfg, err := LoadConfig(path, optional)
	if err != nil {
		return nil, err
	}
	if o.timeoutSet {
		cfg.Instance.Timeout = &o.timeout
	}
	if o.waitSet {
		cfg.Instance.Wait = &o.wait
	}
	if err := cfg.Instance.Budget().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *rootOptions) runner(cfg *Config, metrics *monit.Metrics) *monit.Runner {
	return monit.NewRunner(
		monit.WithBudget(cfg.Instance.Budget()),
		monit.WithRunnerLogger(o.log),
		monit.WithMetrics(metrics),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print monitctl version info",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := monit.GetVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "monitctl %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), " - providers: %v\n", info.Providers)
			fmt.Fprintf(cmd.OutOrStdout(), " - latest supervisor: %s\n", info.LatestSupervisor)
			return nil
		},
	}
}
