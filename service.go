package monit

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
)

// Service is a watched service of an Instance
type Service struct {
	// Name is the service name as declared in its config fragment
	Name string

	// ConfigPath is the fragment that declares the service.
	// When set and absent from disk the service is unknown to the supervisor.
	ConfigPath string

	// Verbose adds -v to every command
	Verbose bool

	// Instance owns the service
	Instance *Instance
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithConfigPath sets the fragment path that declares the service
func WithConfigPath(path string) ServiceOption {
	return func(s *Service) {
		s.ConfigPath = path
	}
}

// WithVerbose toggles -v on every command
func WithVerbose(v bool) ServiceOption {
	return func(s *Service) {
		s.Verbose = v
	}
}

// NewService creates a Service handle
func NewService(inst *Instance, name string, opts ...ServiceOption) *Service {
	s := &Service{
		Name:     name,
		Instance: inst,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FragmentAbsent reports whether the fragment path is known and missing
func (s *Service) FragmentAbsent() bool {
	if s.ConfigPath == "" {
		return false
	}
	_, err := os.Stat(s.ConfigPath)
	return errors.Is(err, fs.ErrNotExist)
}

func (s *Service) command(op Operation) Command {
	return s.Instance.Command(op, s.Name, s.Verbose)
}

func (s *Service) run(ctx context.Context, op Operation, failed Predicate) error {
	_, err := s.Instance.Runner.Run(ctx, s.command(op), failed)
	return err
}

func (s *Service) log() logrus.FieldLogger {
	return s.Instance.logger().WithField("service", s.Name)
}

// Current queries the supervisor for the service's state. action is the
// transition about to be applied; a missing check target is assumed to be
// running unless the service is about to be started.
func (s *Service) Current(ctx context.Context, action Action) (ServiceStatus, error) {
	if s.FragmentAbsent() {
		s.log().WithField("path", s.ConfigPath).Debug("config fragment absent, service unknown to supervisor")
		return ServiceStatus{}, nil
	}

	res, err := s.Instance.Runner.Run(ctx, s.command(OpStatus), s.statusFailed)
	if err != nil {
		return ServiceStatus{}, err
	}
	out := res.Output()
	if IsNoService(out) {
		return ServiceStatus{}, nil
	}

	c := Classify(res.Stdout, s.Name)
	log := s.log().WithFields(logrus.Fields{"state": c.State.String(), "text": c.Text})
	switch {
	case !c.Found:
		log.Debug("no status line after retry budget, assuming disabled")
		return ServiceStatus{}, nil
	case c.State == StateMissing:
		log.Debug("check target missing, assuming enabled")
		return ServiceStatus{Enabled: true, Running: action != ActionStart}, nil
	default:
		return c.Status(), nil
	}
}

// statusFailed retries until the status line is present and the daemon is
// past initialization. An explicit no-such-service answer is final.
func (s *Service) statusFailed(res *CommandResult) bool {
	out := res.Output()
	if IsNoService(out) {
		return false
	}
	return res.Err != nil || !Classify(res.Stdout, s.Name).Found || IsInitializing(out)
}

// noServiceFailed treats "There is no service" as success
func noServiceFailed(res *CommandResult) bool {
	return res.Err != nil && !IsNoService(res.Output())
}

// Reconcile converges the service toward action. It reports whether any
// state-changing command was issued.
func (s *Service) Reconcile(ctx context.Context, action Action) (bool, error) {
	log := s.log().WithField("action", action.String())

	switch action {
	case ActionNothing:
		return false, nil

	case ActionEnable:
		cur, err := s.Current(ctx, action)
		if err != nil {
			return false, err
		}
		if cur.Enabled {
			return false, nil
		}
		log.Info("enabling service")
		return true, s.run(ctx, OpMonitor, DefaultPredicate)

	case ActionDisable:
		if s.FragmentAbsent() {
			return false, nil
		}
		cur, err := s.Current(ctx, action)
		if err != nil {
			return false, err
		}
		if !cur.Enabled {
			return false, nil
		}
		log.Info("disabling service")
		return true, s.run(ctx, OpUnmonitor, noServiceFailed)

	case ActionStart:
		cur, err := s.Current(ctx, action)
		if err != nil {
			return false, err
		}
		if cur.Running {
			return false, nil
		}
		log.Info("starting service")
		if err := s.run(ctx, OpStart, DefaultPredicate); err != nil {
			return true, err
		}
		// Some supervisor versions drop the first start of a freshly
		// monitored service, so it is always sent twice.
		return true, s.run(ctx, OpStart, DefaultPredicate)

	case ActionStop:
		if s.FragmentAbsent() {
			return false, nil
		}
		cur, err := s.Current(ctx, action)
		if err != nil {
			return false, err
		}
		if !cur.Running {
			return false, nil
		}
		log.Info("stopping service")
		return true, s.run(ctx, OpStop, noServiceFailed)

	case ActionRestart:
		log.Info("restarting service")
		return true, s.run(ctx, OpRestart, DefaultPredicate)

	default:
		return false, ErrUnknownAction
	}
}

// Enable makes the supervisor monitor the service
func (s *Service) Enable(ctx context.Context) (bool, error) {
	return s.Reconcile(ctx, ActionEnable)
}

// Disable makes the supervisor stop monitoring the service
func (s *Service) Disable(ctx context.Context) (bool, error) {
	return s.Reconcile(ctx, ActionDisable)
}

// Start makes the service run
func (s *Service) Start(ctx context.Context) (bool, error) {
	return s.Reconcile(ctx, ActionStart)
}

// Stop makes the service stop
func (s *Service) Stop(ctx context.Context) (bool, error) {
	return s.Reconcile(ctx, ActionStop)
}

// Restart restarts the service
func (s *Service) Restart(ctx context.Context) (bool, error) {
	return s.Reconcile(ctx, ActionRestart)
}
