package monit

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// State is the classification of a service status line
type State int

const (
	// StateUnknown indicates no status line for the service was found
	StateUnknown State = iota
	// StateNotMonitored indicates the supervisor is not monitoring the service
	StateNotMonitored
	// StatePending indicates the service is monitored but not confirmed healthy
	StatePending
	// StateMissing indicates the monitored check target does not exist yet
	StateMissing
	// StateRunning indicates a healthy status phrase
	StateRunning
)

// State string constants
const (
	stateUnknownStr      = "unknown"
	stateNotMonitoredStr = "not_monitored"
	statePendingStr      = "pending"
	stateMissingStr      = "missing"
	stateRunningStr      = "running"
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateNotMonitored:
		return stateNotMonitoredStr
	case StatePending:
		return statePendingStr
	case StateMissing:
		return stateMissingStr
	case StateRunning:
		return stateRunningStr
	default:
		return stateUnknownStr
	}
}

var (
	disabledPattern = regexp.MustCompile(`^Not monitored$`)
	runningPattern  = regexp.MustCompile(`^(Accessible|Running|Online with all services|Status ok|UP)$`)
)

// ServiceStatus is the {enabled, running} pair derived from one status query
type ServiceStatus struct {
	Enabled bool
	Running bool
}

// Classification is the result of classifying status output for one service
type Classification struct {
	// Found reports whether a status line for the service was present
	Found bool
	// Text is the trimmed status phrase
	Text string
	// State is the classified state
	State State
}

// Status maps the classification to an {enabled, running} pair.
// Unknown maps to disabled and not running; pending and missing map to
// enabled and not confirmed running.
func (c Classification) Status() ServiceStatus {
	switch c.State {
	case StateRunning:
		return ServiceStatus{Enabled: true, Running: true}
	case StatePending, StateMissing:
		return ServiceStatus{Enabled: true}
	default:
		return ServiceStatus{}
	}
}

// statusLinePattern matches the check header for name and the status field
// that follows it, on the same line or a continuation line.
func statusLinePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^[A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*)? '` +
		regexp.QuoteMeta(name) + `'\s+status\s+(\w.*)$`)
}

// Classify parses raw status output and classifies the line for name
func Classify(raw, name string) Classification {
	if !utf8.ValidString(name) {
		return Classification{State: StateUnknown}
	}
	m := statusLinePattern(name).FindStringSubmatch(raw)
	if m == nil {
		return Classification{State: StateUnknown}
	}
	text := strings.TrimSpace(m[1])
	return Classification{Found: true, Text: text, State: classifyText(text)}
}

func classifyText(text string) State {
	switch {
	case disabledPattern.MatchString(text):
		return StateNotMonitored
	case runningPattern.MatchString(text):
		return StateRunning
	case strings.HasPrefix(text, MissingStatus):
		return StateMissing
	default:
		return StatePending
	}
}

// IsInitializing reports whether the daemon is still starting up
func IsInitializing(raw string) bool {
	return strings.Contains(raw, InitializingMessage)
}

// IsNoService reports whether output says the supervisor does not know the service
func IsNoService(raw string) bool {
	return strings.Contains(raw, NoServiceMessage)
}
