package monit

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeMonit scripts supervisor responses per subcommand and records every call.
// The last scripted response for a subcommand repeats once the others are used.
type fakeMonit struct {
	mu        sync.Mutex
	calls     []Command
	responses map[Operation][]*CommandResult
}

func newFakeMonit() *fakeMonit {
	return &fakeMonit{responses: make(map[Operation][]*CommandResult)}
}

func (f *fakeMonit) on(op Operation, results ...*CommandResult) *fakeMonit {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[op] = append(f.responses[op], results...)
	return f
}

func (f *fakeMonit) exec(_ context.Context, cmd Command) *CommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)

	queue := f.responses[cmd.Op]
	if len(queue) == 0 {
		return &CommandResult{Args: cmd.Args}
	}
	res := *queue[0]
	if len(queue) > 1 {
		f.responses[cmd.Op] = queue[1:]
	}
	res.Args = cmd.Args
	return &res
}

func (f *fakeMonit) ops() []Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]Operation, 0, len(f.calls))
	for _, c := range f.calls {
		ops = append(ops, c.Op)
	}
	return ops
}

func (f *fakeMonit) count(op Operation) int {
	n := 0
	for _, o := range f.ops() {
		if o == op {
			n++
		}
	}
	return n
}

func (f *fakeMonit) last() Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

var errExit1 = errors.New("exit status 1")

func okResult(stdout string) *CommandResult {
	return &CommandResult{Stdout: stdout}
}

func failResult(stdout string) *CommandResult {
	return &CommandResult{Stdout: stdout, ExitCode: 1, Err: errExit1}
}

func statusOutput(name, status string) string {
	return "Monit 5.17.1 uptime: 1m\n\nProcess '" + name + "'\n  status                       " +
		status + "\n  monitoring status            Monitored\n"
}

// fastBudget keeps scripted retry loops in the low milliseconds
var fastBudget = Budget{Timeout: 30 * time.Millisecond, Wait: 10 * time.Millisecond}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestInstance(t *testing.T, fake *fakeMonit) *Instance {
	t.Helper()
	dir := t.TempDir()
	log := discardLogger()
	return NewInstance("test",
		WithPath(dir),
		WithVarPath(dir),
		WithLogger(log),
		WithRunner(NewRunner(
			WithBudget(fastBudget),
			WithExec(fake.exec),
			WithRunnerLogger(log),
		)),
	)
}
