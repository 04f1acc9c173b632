package monit

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"
)

// Instance is one supervisor configuration: a binary, a config tree and
// the daemon settings rendered into the main config.
type Instance struct {
	// Name identifies the instance; the default instance is "monit"
	Name string

	// Path is the config root holding monitrc and conf.d
	Path string

	// VarPath holds daemon state such as the pid file
	VarPath string

	// Binary is the supervisor executable
	Binary string

	// Owner and Group own the config tree and run every command.
	// Empty values keep the caller's identity.
	Owner string
	Group string

	// DaemonInterval is the poll interval in seconds
	DaemonInterval int

	// DaemonDelay is the number of cycles to wait before the first check
	DaemonDelay int

	// DaemonVerbose adds -v to the daemon command line
	DaemonVerbose bool

	// EventSlots is the size of the event buffer
	EventSlots int

	// HTTPDPort is a unix socket path or a TCP port number
	HTTPDPort string

	// HTTPDUsername and HTTPDPassword are written to the credentials file
	HTTPDUsername string
	HTTPDPassword string

	// Runner executes every supervisor command for this instance
	Runner *Runner

	// Logger receives instance level logs
	Logger logrus.FieldLogger
}

// InstanceOption configures an Instance
type InstanceOption func(*Instance)

// WithPath sets the config root
func WithPath(path string) InstanceOption {
	return func(i *Instance) {
		i.Path = path
	}
}

// WithVarPath sets the state directory
func WithVarPath(path string) InstanceOption {
	return func(i *Instance) {
		i.VarPath = path
	}
}

// WithBinary sets the supervisor executable
func WithBinary(path string) InstanceOption {
	return func(i *Instance) {
		i.Binary = path
	}
}

// WithOwner sets the user and group that own the config tree and run commands
func WithOwner(owner, group string) InstanceOption {
	return func(i *Instance) {
		i.Owner = owner
		i.Group = group
	}
}

// WithDaemon sets the daemon poll interval, start delay and verbosity
func WithDaemon(interval, delay int, verbose bool) InstanceOption {
	return func(i *Instance) {
		i.DaemonInterval = interval
		i.DaemonDelay = delay
		i.DaemonVerbose = verbose
	}
}

// WithEventSlots sets the event buffer size
func WithEventSlots(n int) InstanceOption {
	return func(i *Instance) {
		i.EventSlots = n
	}
}

// WithHTTPD sets the control endpoint and its credentials
func WithHTTPD(port, username, password string) InstanceOption {
	return func(i *Instance) {
		i.HTTPDPort = port
		i.HTTPDUsername = username
		i.HTTPDPassword = password
	}
}

// WithRunner sets the command runner
func WithRunner(r *Runner) InstanceOption {
	return func(i *Instance) {
		i.Runner = r
	}
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) InstanceOption {
	return func(i *Instance) {
		i.Logger = l
	}
}

// NewInstance creates an Instance with the stock layout for name
func NewInstance(name string, opts ...InstanceOption) *Instance {
	if name == "" {
		name = DefaultInstanceName
	}
	suffix := ""
	if name != DefaultInstanceName {
		suffix = "-" + name
	}
	i := &Instance{
		Name:           name,
		Path:           "/etc/monit" + suffix,
		VarPath:        "/var/lib/monit" + suffix,
		Binary:         DefaultBinary,
		DaemonInterval: DefaultDaemonInterval,
		EventSlots:     DefaultEventSlots,
		HTTPDPort:      DefaultHTTPDPort,
		HTTPDUsername:  DefaultHTTPDUsername,
		Logger:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.Runner == nil {
		i.Runner = NewRunner(WithRunnerLogger(i.Logger))
	}
	return i
}

// ConfigPath is the main config file
func (i *Instance) ConfigPath() string {
	return filepath.Join(i.Path, ConfigFileName)
}

// ConfdPath is the fragment directory
func (i *Instance) ConfdPath() string {
	return filepath.Join(i.Path, ConfdDirName)
}

// CredentialsPath is the httpd credentials file
func (i *Instance) CredentialsPath() string {
	return filepath.Join(i.Path, CredentialsFileName)
}

// PidFile is the daemon pid file
func (i *Instance) PidFile() string {
	return filepath.Join(i.VarPath, PidFileName)
}

// FragmentPath is the conf.d path for the named fragment
func (i *Instance) FragmentPath(name string) string {
	return filepath.Join(i.ConfdPath(), name+FragmentExt)
}

// HTTPDIsSocket reports whether HTTPDPort names a unix socket rather than a TCP port
func (i *Instance) HTTPDIsSocket() bool {
	_, err := strconv.Atoi(i.HTTPDPort)
	return err != nil
}

// Command builds `<binary> [-v] -c <config> <op> [service]`
func (i *Instance) Command(op Operation, service string, verbose bool) Command {
	args := []string{i.Binary}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "-c", i.ConfigPath(), op.String())
	if service != "" && op.TakesService() {
		args = append(args, service)
	}
	return Command{
		Op:      op,
		Service: service,
		Args:    args,
		User:    i.Owner,
		Group:   i.Group,
	}
}

// DaemonCommand is the foreground command line for a process supervisor unit
func (i *Instance) DaemonCommand() []string {
	args := []string{i.Binary}
	if i.DaemonVerbose {
		args = append(args, "-v")
	}
	return append(args, "-c", i.ConfigPath(), "-I")
}

// Service returns a handle for a watched service of this instance
func (i *Instance) Service(name string, opts ...ServiceOption) *Service {
	return NewService(i, name, opts...)
}

// Validate dry-runs `<binary> -t -c <path>`. It makes a single attempt.
func (i *Instance) Validate(ctx context.Context, path string) error {
	if i.Binary == "" {
		return ErrNoBinary
	}
	cmd := Command{
		Op:    OpTest,
		Args:  []string{i.Binary, OpTest.String(), "-c", path},
		User:  i.Owner,
		Group: i.Group,
	}
	_, err := i.Runner.RunBudget(ctx, cmd, DefaultPredicate, Budget{Wait: DefaultWait})
	if err != nil {
		return &OpError{Op: OpTest, Path: path, Err: fmt.Errorf("%w: %w", ErrInvalidConfig, err)}
	}
	return nil
}

// Reload makes the daemon re-read its configuration
func (i *Instance) Reload(ctx context.Context) error {
	if i.Binary == "" {
		return ErrNoBinary
	}
	_, err := i.Runner.Run(ctx, i.Command(OpReload, "", false), DefaultPredicate)
	return err
}

// Version queries the supervisor version via -V
func (i *Instance) Version(ctx context.Context) (*version.Version, error) {
	if i.Binary == "" {
		return nil, ErrNoBinary
	}
	cmd := Command{
		Op:    OpVersion,
		Args:  []string{i.Binary, OpVersion.String()},
		User:  i.Owner,
		Group: i.Group,
	}
	res, err := i.Runner.RunBudget(ctx, cmd, DefaultPredicate, Budget{Wait: DefaultWait})
	if err != nil {
		return nil, err
	}
	return ParseMonitVersion(res.Stdout)
}

func (i *Instance) logger() logrus.FieldLogger {
	if i.Logger == nil {
		return logrus.StandardLogger()
	}
	return i.Logger.WithField("instance", i.Name)
}
