package monit

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by monit operations
var (
	// ErrTimeout indicates a command retry budget ran out while the command kept failing
	ErrTimeout = errors.New("monit: retry budget exhausted")

	// ErrInvalidBudget indicates a negative timeout or a non-positive wait interval
	ErrInvalidBudget = errors.New("monit: invalid retry budget")

	// ErrNoStrategy indicates no install strategy is eligible for the host
	ErrNoStrategy = errors.New("monit: no eligible install strategy")

	// ErrUnknownProvider indicates the requested install provider does not exist
	ErrUnknownProvider = errors.New("monit: unknown install provider")

	// ErrRepositoryUnavailable indicates a package repository the install needs is not registered
	ErrRepositoryUnavailable = errors.New("monit: required package repository unavailable")

	// ErrInvalidConfig indicates the supervisor rejected a config file during the dry run
	ErrInvalidConfig = errors.New("monit: config validation failed")

	// ErrUnknownAction indicates an unrecognized service action
	ErrUnknownAction = errors.New("monit: unknown action")

	// ErrNoBinary indicates the instance has no supervisor binary path yet
	ErrNoBinary = errors.New("monit: binary path not set")

	// ErrUnsupportedPlatform indicates host facts cannot be detected on this OS
	ErrUnsupportedPlatform = errors.New("monit: unsupported platform")
)

// CommandError reports a command that still failed when its retry budget ran out.
// Err is the process error of the last attempt.
type CommandError struct {
	// Args is the full command line of the last attempt
	Args []string
	// Result is the last attempt
	Result *CommandResult
	// Err is the underlying process error
	Err error
}

// Error returns a formatted error message including the command output
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("monit: command %q failed: %v", strings.Join(e.Args, " "), e.Err)
	if e.Result != nil {
		if out := strings.TrimSpace(e.Result.Output()); out != "" {
			msg += ": " + out
		}
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is reports budget exhaustion as ErrTimeout
func (e *CommandError) Is(target error) bool {
	return target == ErrTimeout
}

// OpError represents an error from a file-level operation
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Path is the file path involved in the operation
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	return fmt.Sprintf("monit %s %q: %v", e.Op.String(), e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// MultiError aggregates multiple errors from batch operations
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(m.Errors), m.Errors[0])
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap exposes every accumulated error to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}
