package monit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
)

// Command is one supervisor CLI invocation
type Command struct {
	// Op is the subcommand, used for logging and metrics
	Op Operation
	// Service is the addressed service, empty for instance-wide operations
	Service string
	// Args is the full argv including the binary
	Args []string
	// User runs the command as this user when set
	User string
	// Group runs the command as this group when set
	Group string
	// Env is appended to the inherited environment
	Env []string
}

// String returns the command line
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// CommandResult is the outcome of a single attempt
type CommandResult struct {
	// Args is the argv that was executed
	Args []string
	// ExitCode is the process exit code, -1 if the process never exited normally
	ExitCode int
	// Stdout is the captured standard output
	Stdout string
	// Stderr is the captured standard error
	Stderr string
	// Err is the process error; nil on a zero exit
	Err error
	// Duration is the wall time of the attempt
	Duration time.Duration
}

// Output returns stdout and stderr joined
func (r *CommandResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Failed reports whether the process itself errored
func (r *CommandResult) Failed() bool {
	return r.Err != nil
}

// Predicate decides whether an attempt counts as a failure
type Predicate func(*CommandResult) bool

// DefaultPredicate fails an attempt on any process error
func DefaultPredicate(r *CommandResult) bool {
	return r.Err != nil
}

// ExecFunc executes a single attempt. It never returns nil.
type ExecFunc func(ctx context.Context, cmd Command) *CommandResult

// Budget is the retry allowance for one Runner invocation
type Budget struct {
	// Timeout is the total time allowed for retries; zero means a single attempt
	Timeout time.Duration
	// Wait is the pause between attempts
	Wait time.Duration
}

// DefaultBudget returns the stock 20s/1s budget
func DefaultBudget() Budget {
	return Budget{Timeout: DefaultTimeout, Wait: DefaultWait}
}

// Validate checks the budget constraints
func (b Budget) Validate() error {
	if b.Timeout < 0 {
		return fmt.Errorf("%w: timeout %s is negative", ErrInvalidBudget, b.Timeout)
	}
	if b.Wait <= 0 {
		return fmt.Errorf("%w: wait %s must be positive", ErrInvalidBudget, b.Wait)
	}
	return nil
}

// Retries is the number of retries after the first attempt.
// Each retry spends one wait interval of the timeout.
func (b Budget) Retries() int {
	if b.Timeout <= 0 {
		return 0
	}
	n := b.Timeout / b.Wait
	if b.Timeout%b.Wait != 0 {
		n++
	}
	return int(n)
}

// Runner executes supervisor commands under a retry budget
type Runner struct {
	// Budget is used by Run
	Budget Budget
	// Exec runs a single attempt
	Exec ExecFunc
	// Logger receives attempt and degradation logs
	Logger logrus.FieldLogger
	// Metrics counts attempts, nil disables counting
	Metrics *Metrics
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithBudget sets the default retry budget
func WithBudget(b Budget) RunnerOption {
	return func(r *Runner) {
		r.Budget = b
	}
}

// WithTimeout sets the default retry budget timeout
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.Budget.Timeout = d
	}
}

// WithWait sets the default pause between attempts
func WithWait(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.Budget.Wait = d
	}
}

// WithExec replaces the process executor
func WithExec(fn ExecFunc) RunnerOption {
	return func(r *Runner) {
		r.Exec = fn
	}
}

// WithRunnerLogger sets the logger
func WithRunnerLogger(l logrus.FieldLogger) RunnerOption {
	return func(r *Runner) {
		r.Logger = l
	}
}

// WithMetrics enables attempt counting
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) {
		r.Metrics = m
	}
}

// NewRunner creates a Runner with the default budget and the os/exec executor
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		Budget: DefaultBudget(),
		Exec:   ExecCommand,
		Logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd under the Runner's default budget
func (r *Runner) Run(ctx context.Context, cmd Command, failed Predicate) (*CommandResult, error) {
	return r.RunBudget(ctx, cmd, failed, r.Budget)
}

// RunBudget executes cmd until failed reports success or the budget runs out.
// On exhaustion a process error of the last attempt is returned as a *CommandError;
// a last attempt that only failed the predicate is returned with a nil error.
func (r *Runner) RunBudget(ctx context.Context, cmd Command, failed Predicate, budget Budget) (*CommandResult, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	if len(cmd.Args) == 0 {
		return nil, fmt.Errorf("monit: empty command for %s", cmd.Op)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == nil {
		failed = DefaultPredicate
	}
	execFn := r.Exec
	if execFn == nil {
		execFn = ExecCommand
	}
	log := r.logger().WithFields(logrus.Fields{
		"subcommand": cmd.Op.String(),
		"service":    cmd.Service,
	})

	policy := retrypolicy.NewBuilder[*CommandResult]().
		HandleIf(func(res *CommandResult, _ error) bool {
			return failed(res)
		}).
		WithDelay(budget.Wait).
		WithMaxRetries(budget.Retries()).
		ReturnLastFailure().
		Build()

	attempt := 0
	res, err := failsafe.With(policy).WithContext(ctx).Get(func() (*CommandResult, error) {
		attempt++
		res := execFn(ctx, cmd)
		ok := !failed(res)
		r.Metrics.observeAttempt(cmd.Op, ok)
		if !ok {
			log.WithFields(logrus.Fields{
				"attempt":   attempt,
				"exit_code": res.ExitCode,
			}).Debug("attempt did not reach expected state")
		}
		return res, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, err
	}
	if res == nil || !failed(res) {
		return res, nil
	}

	fatal := res.Err != nil
	r.Metrics.observeExhausted(cmd.Op, fatal)
	if fatal {
		return res, &CommandError{Args: res.Args, Result: res, Err: res.Err}
	}
	log.WithField("attempts", attempt).Debug("retry budget exhausted without command error, using last result")
	return res, nil
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

// ExecCommand runs cmd as a subprocess and captures its output
func ExecCommand(ctx context.Context, cmd Command) *CommandResult {
	res := &CommandResult{Args: cmd.Args}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
	}()

	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}
	if err := applyCredential(c, cmd.User, cmd.Group); err != nil {
		res.ExitCode = -1
		res.Err = err
		return res
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.ExitCode = ee.ExitCode()
		} else {
			res.ExitCode = -1
		}
		res.Err = err
	}
	return res
}
