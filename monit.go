package monit

import (
	"fmt"
	"time"
)

// Instance layout constants
const (
	// DefaultInstanceName is the name of the default supervisor instance
	DefaultInstanceName = "monit"

	// ConfigFileName is the main config file name under the instance path
	ConfigFileName = "monitrc"

	// ConfdDirName is the config fragment directory under the instance path
	ConfdDirName = "conf.d"

	// CredentialsFileName holds the httpd credentials included by the main config
	CredentialsFileName = "credentials"

	// FragmentExt is the extension of config fragments under conf.d
	FragmentExt = ".conf"

	// PidFileName is the daemon pid file name under the var path
	PidFileName = "monit.pid"
)

// Defaults for the control surface
const (
	// DefaultBinary is the binary path used by package installs and the test stub
	DefaultBinary = "/usr/bin/monit"

	// DefaultTimeout is the default retry budget for a single command
	DefaultTimeout = 20 * time.Second

	// DefaultWait is the default interval between command attempts
	DefaultWait = 1 * time.Second

	// DefaultDebounce coalesces bursts of fragment changes into one reload
	DefaultDebounce = 250 * time.Millisecond

	// DefaultInstallRoot is the parent directory for archive installs
	DefaultInstallRoot = "/opt"

	// DefaultDaemonInterval is the daemon poll interval in seconds
	DefaultDaemonInterval = 120

	// DefaultEventSlots is the size of the daemon event buffer
	DefaultEventSlots = 100

	// DefaultHTTPDPort is the control socket; a bare number means a TCP port
	DefaultHTTPDPort = "/var/run/monit.sock"

	// DefaultHTTPDUsername is the user the CLI authenticates as
	DefaultHTTPDUsername = "cli"
)

// Supervisor output markers
const (
	// NoServiceMessage appears in action output when the supervisor does not know the service
	NoServiceMessage = "There is no service"

	// InitializingMessage appears in status output while the daemon is still starting up
	InitializingMessage = "Initializing"

	// MissingStatus is reported for a monitored service whose check target is not there yet
	MissingStatus = "Does not exist"
)

// File modes
const (
	// DirMode is the mode for the instance and conf.d directories
	DirMode = 0o700

	// FileMode is the mode for config files; the supervisor refuses looser permissions
	FileMode = 0o600

	// ExecMode is the mode for extracted executables
	ExecMode = 0o755
)

// Operation is a supervisor CLI subcommand
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpMonitor enables monitoring of a service
	OpMonitor
	// OpUnmonitor disables monitoring of a service
	OpUnmonitor
	// OpStart starts a service
	OpStart
	// OpStop stops a service
	OpStop
	// OpRestart restarts a service
	OpRestart
	// OpStatus queries the status of a service
	OpStatus
	// OpReload makes the daemon re-read its configuration
	OpReload
	// OpVersion prints the supervisor version
	OpVersion
	// OpTest validates a config file without applying it
	OpTest
)

// Operation string constants
const (
	opUnknownStr   = "unknown"
	opMonitorStr   = "monitor"
	opUnmonitorStr = "unmonitor"
	opStartStr     = "start"
	opStopStr      = "stop"
	opRestartStr   = "restart"
	opStatusStr    = "status"
	opReloadStr    = "reload"
	opVersionStr   = "-V"
	opTestStr      = "-t"
)

// String returns the CLI form of an Operation
func (op Operation) String() string {
	switch op {
	case OpMonitor:
		return opMonitorStr
	case OpUnmonitor:
		return opUnmonitorStr
	case OpStart:
		return opStartStr
	case OpStop:
		return opStopStr
	case OpRestart:
		return opRestartStr
	case OpStatus:
		return opStatusStr
	case OpReload:
		return opReloadStr
	case OpVersion:
		return opVersionStr
	case OpTest:
		return opTestStr
	default:
		return opUnknownStr
	}
}

// TakesService reports whether the operation is addressed to a single service
func (op Operation) TakesService() bool {
	switch op {
	case OpMonitor, OpUnmonitor, OpStart, OpStop, OpRestart, OpStatus:
		return true
	default:
		return false
	}
}

// Action is a desired state transition for a watched service
type Action int

const (
	// ActionNothing leaves the service alone
	ActionNothing Action = iota
	// ActionEnable makes the supervisor monitor the service
	ActionEnable
	// ActionDisable makes the supervisor stop monitoring the service
	ActionDisable
	// ActionStart makes the service run
	ActionStart
	// ActionStop makes the service stop
	ActionStop
	// ActionRestart restarts the service unconditionally
	ActionRestart
)

// Action string constants
const (
	actionNothingStr = "nothing"
	actionEnableStr  = "enable"
	actionDisableStr = "disable"
	actionStartStr   = "start"
	actionStopStr    = "stop"
	actionRestartStr = "restart"
)

// String returns the string representation of an Action
func (a Action) String() string {
	switch a {
	case ActionEnable:
		return actionEnableStr
	case ActionDisable:
		return actionDisableStr
	case ActionStart:
		return actionStartStr
	case ActionStop:
		return actionStopStr
	case ActionRestart:
		return actionRestartStr
	default:
		return actionNothingStr
	}
}

// ParseAction parses the string form of an Action
func ParseAction(s string) (Action, error) {
	switch s {
	case actionNothingStr:
		return ActionNothing, nil
	case actionEnableStr:
		return ActionEnable, nil
	case actionDisableStr:
		return ActionDisable, nil
	case actionStartStr:
		return ActionStart, nil
	case actionStopStr:
		return ActionStop, nil
	case actionRestartStr:
		return ActionRestart, nil
	default:
		return ActionNothing, fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}
