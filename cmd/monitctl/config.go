package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	monit "github.com/axondata/go-monit"
)

// Config is the monitctl YAML document: one instance and its services
type Config struct {
	Instance InstanceConfig  `yaml:"instance"`
	Services []ServiceConfig `yaml:"services"`
}

// InstanceConfig describes the supervisor instance and how to install it
type InstanceConfig struct {
	Name           string `yaml:"name"`
	Path           string `yaml:"path"`
	VarPath        string `yaml:"var_path"`
	Binary         string `yaml:"binary"`
	Owner          string `yaml:"owner"`
	Group          string `yaml:"group"`
	Provider       string `yaml:"provider"`
	Version        string `yaml:"version"`
	SkipRepository bool   `yaml:"skip_repository"`
	InstallRoot    string `yaml:"install_root"`
	DaemonInterval int    `yaml:"daemon_interval"`
	DaemonDelay    int    `yaml:"daemon_delay"`
	DaemonVerbose  bool   `yaml:"daemon_verbose"`
	EventSlots     int    `yaml:"event_slots"`
	HTTPDPort      string `yaml:"httpd_port"`
	HTTPDUsername  string `yaml:"httpd_username"`
	HTTPDPassword  string `yaml:"httpd_password"`
	// Timeout and Wait are pointers so an explicit zero timeout survives
	Timeout *time.Duration `yaml:"timeout"`
	Wait    *time.Duration `yaml:"wait"`
	// Config is a file holding the main config; empty renders the default
	Config string `yaml:"config"`
}

// ServiceConfig is one watched service
type ServiceConfig struct {
	Name           string `yaml:"name"`
	// Source is a file copied to conf.d/<name>.conf
	Source         string `yaml:"source"`
	// Content is an inline fragment, used when Source is empty
	Content        string `yaml:"content"`
	Verbose        bool   `yaml:"verbose"`
	Actions []string `yaml:"actions"`
}

// LoadConfig reads path. A missing file yields the defaults when optional is set.
func LoadConfig(path string, optional bool) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// ParseConfig decodes and validates a config document. Unknown keys are errors.
func ParseConfig(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", monit.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks names, providers, actions and the retry budget
func (c *Config) Validate() error {
	if _, err := monit.ParseProvider(c.Instance.Provider); err != nil {
		return err
	}
	if err := c.Instance.Budget().Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("%w: services[%d] has no name", monit.ErrInvalidConfig, i)
		}
		if seen[svc.Name] {
			return fmt.Errorf("%w: duplicate service %q", monit.ErrInvalidConfig, svc.Name)
		}
		seen[svc.Name] = true
		if svc.Source != "" && svc.Content != "" {
			return fmt.Errorf("%w: service %q sets both source and content", monit.ErrInvalidConfig, svc.Name)
		}
		if _, err := svc.ParseActions(); err != nil {
			return fmt.Errorf("service %q: %w", svc.Name, err)
		}
	}
	return nil
}

// resolvePaths makes source files relative to the config file's directory
func (c *Config) resolvePaths(dir string) {
	if c.Instance.Config != "" && !filepath.IsAbs(c.Instance.Config) {
		c.Instance.Config = filepath.Join(dir, c.Instance.Config)
	}
	for i := range c.Services {
		if src := c.Services[i].Source; src != "" && !filepath.IsAbs(src) {
			c.Services[i].Source = filepath.Join(dir, src)
		}
	}
}

// Service looks up a service by name
func (c *Config) Service(name string) (ServiceConfig, bool) {
	for _, svc := range c.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceConfig{}, false
}

// Budget returns the retry budget, filling unset values with the defaults
func (ic InstanceConfig) Budget() monit.Budget {
	b := monit.DefaultBudget()
	if ic.Timeout != nil {
		b.Timeout = *ic.Timeout
	}
	if ic.Wait != nil {
		b.Wait = *ic.Wait
	}
	return b
}

// ResolveOptions maps the install settings onto the resolver inputs
func (ic InstanceConfig) ResolveOptions() (monit.ResolveOptions, error) {
	p, err := monit.ParseProvider(ic.Provider)
	if err != nil {
		return monit.ResolveOptions{}, err
	}
	return monit.ResolveOptions{
		Provider:       p,
		Version:        ic.Version,
		SkipRepository: ic.SkipRepository,
		InstallRoot:    ic.InstallRoot,
	}, nil
}

// NewInstance builds the library instance. binary overrides the configured
// binary when non-empty.
func (ic InstanceConfig) NewInstance(binary string, runner *monit.Runner, log logrus.FieldLogger) *monit.Instance {
	opts := []monit.InstanceOption{
		monit.WithRunner(runner),
		monit.WithLogger(log),
	}
	if ic.Path != "" {
		opts = append(opts, monit.WithPath(ic.Path))
	}
	if ic.VarPath != "" {
		opts = append(opts, monit.WithVarPath(ic.VarPath))
	}
	if binary == "" {
		binary = ic.Binary
	}
	if binary != "" {
		opts = append(opts, monit.WithBinary(binary))
	}
	opts = append(opts, monit.WithOwner(ic.Owner, ic.Group))
	if ic.DaemonInterval > 0 || ic.DaemonDelay > 0 || ic.DaemonVerbose {
		interval := ic.DaemonInterval
		if interval <= 0 {
			interval = monit.DefaultDaemonInterval
		}
		opts = append(opts, monit.WithDaemon(interval, ic.DaemonDelay, ic.DaemonVerbose))
	}
	if ic.EventSlots > 0 {
		opts = append(opts, monit.WithEventSlots(ic.EventSlots))
	}
	if ic.HTTPDPort != "" || ic.HTTPDUsername != "" || ic.HTTPDPassword != "" {
		port, user := ic.HTTPDPort, ic.HTTPDUsername
		if port == "" {
			port = monit.DefaultHTTPDPort
		}
		if user == "" {
			user = monit.DefaultHTTPDUsername
		}
		opts = append(opts, monit.WithHTTPD(port, user, ic.HTTPDPassword))
	}
	return monit.NewInstance(ic.Name, opts...)
}

// ParseActions parses the action list in order
func (sc ServiceConfig) ParseActions() ([]monit.Action, error) {
	actions := make([]monit.Action, 0, len(sc.Actions))
	for _, s := range sc.Actions {
		a, err := monit.ParseAction(s)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// Fragment returns the conf.d content, nil when the service has none
func (sc ServiceConfig) Fragment() ([]byte, error) {
	if sc.Source != "" {
		data, err := os.ReadFile(sc.Source)
		if err != nil {
			return nil, fmt.Errorf("reading fragment for %s: %w", sc.Name, err)
		}
		return data, nil
	}
	if sc.Content != "" {
		return []byte(sc.Content), nil
	}
	return nil, nil
}

// NewService builds the library service handle. Services with a managed
// fragment are bound to its path so a removed fragment short-circuits.
func (sc ServiceConfig) NewService(inst *monit.Instance) *monit.Service {
	opts := []monit.ServiceOption{monit.WithVerbose(sc.Verbose)}
	if sc.Source != "" || sc.Content != "" {
		opts = append(opts, monit.WithConfigPath(inst.FragmentPath(sc.Name)))
	}
	return inst.Service(sc.Name, opts...)
}
