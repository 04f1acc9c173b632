package monit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestBudgetValidate(t *testing.T) {
	tests := []struct {
		name    string
		budget  Budget
		wantErr bool
	}{
		{"default", DefaultBudget(), false},
		{"single attempt", Budget{Wait: time.Second}, false},
		{"negative timeout", Budget{Timeout: -time.Second, Wait: time.Second}, true},
		{"zero wait", Budget{Timeout: time.Second}, true},
		{"negative wait", Budget{Timeout: time.Second, Wait: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.budget.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidBudget) {
				t.Errorf("error %v is not ErrInvalidBudget", err)
			}
		})
	}
}

func TestBudgetRetries(t *testing.T) {
	tests := []struct {
		budget Budget
		want   int
	}{
		{Budget{Timeout: 0, Wait: time.Second}, 0},
		{Budget{Timeout: 2 * time.Second, Wait: time.Second}, 2},
		{Budget{Timeout: 20 * time.Second, Wait: time.Second}, 20},
		{Budget{Timeout: 2500 * time.Millisecond, Wait: time.Second}, 3},
		{Budget{Timeout: 500 * time.Millisecond, Wait: time.Second}, 1},
	}

	for _, tt := range tests {
		if got := tt.budget.Retries(); got != tt.want {
			t.Errorf("%+v.Retries() = %d, want %d", tt.budget, got, tt.want)
		}
	}
}

func testRunner(fake *fakeMonit, opts ...RunnerOption) *Runner {
	opts = append([]RunnerOption{
		WithBudget(fastBudget),
		WithExec(fake.exec),
		WithRunnerLogger(discardLogger()),
	}, opts...)
	return NewRunner(opts...)
}

var statusCmd = Command{Op: OpStatus, Service: "app", Args: []string{"monit", "-c", "/etc/monit/monitrc", "status", "app"}}

func TestRunnerFirstAttemptSucceeds(t *testing.T) {
	fake := newFakeMonit().on(OpStatus, okResult("fine"))
	res, err := testRunner(fake).Run(context.Background(), statusCmd, nil)

	require.NoError(t, err)
	require.Equal(t, "fine", res.Stdout)
	require.Equal(t, 1, fake.count(OpStatus))
	require.Equal(t, statusCmd.Args, res.Args)
}

func TestRunnerRetriesUntilPredicatePasses(t *testing.T) {
	fake := newFakeMonit().on(OpStatus, failResult("a"), failResult("b"), okResult("c"))
	r := testRunner(fake, WithBudget(Budget{Timeout: 100 * time.Millisecond, Wait: 5 * time.Millisecond}))

	res, err := r.Run(context.Background(), statusCmd, DefaultPredicate)
	require.NoError(t, err)
	require.Equal(t, "c", res.Stdout)
	require.Equal(t, 3, fake.count(OpStatus))
}

func TestRunnerSoftTimeoutReturnsLastResult(t *testing.T) {
	fake := newFakeMonit().on(OpStatus, okResult("first"), okResult("second"), okResult("last"))
	wantReady := func(r *CommandResult) bool { return !strings.Contains(r.Stdout, "ready") }

	res, err := testRunner(fake).Run(context.Background(), statusCmd, wantReady)
	require.NoError(t, err, "predicate mismatch without a process error is not fatal")
	require.Equal(t, "last", res.Stdout)
	require.Equal(t, fastBudget.Retries()+1, fake.count(OpStatus))
}

func TestRunnerExhaustionWithProcessError(t *testing.T) {
	fake := newFakeMonit()
	for i := 1; i <= 4; i++ {
		fake.on(OpStatus, failResult("attempt "+strconv.Itoa(i)))
	}

	res, err := testRunner(fake).Run(context.Background(), statusCmd, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, errExit1)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, "attempt 4", cmdErr.Result.Stdout)
	require.Equal(t, statusCmd.Args, cmdErr.Args)
	require.Same(t, res, cmdErr.Result)
	require.Contains(t, err.Error(), "attempt 4")
}

func TestRunnerZeroTimeoutRunsOnce(t *testing.T) {
	fake := newFakeMonit().on(OpStatus, failResult(""))
	_, err := testRunner(fake).RunBudget(context.Background(), statusCmd, nil, Budget{Wait: time.Second})

	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, 1, fake.count(OpStatus))
}

func TestRunnerInvalidInput(t *testing.T) {
	fake := newFakeMonit()
	r := testRunner(fake)

	_, err := r.RunBudget(context.Background(), statusCmd, nil, Budget{Timeout: time.Second})
	require.ErrorIs(t, err, ErrInvalidBudget)

	_, err = r.Run(context.Background(), Command{Op: OpStatus}, nil)
	require.Error(t, err)
	require.Empty(t, fake.ops())
}

func TestRunnerCanceledContext(t *testing.T) {
	fake := newFakeMonit().on(OpStatus, failResult(""))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testRunner(fake, WithBudget(DefaultBudget())).Run(ctx, statusCmd, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunnerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	fake := newFakeMonit().on(OpStatus, failResult(""), okResult(""))
	_, err = testRunner(fake, WithMetrics(m)).Run(context.Background(), statusCmd, nil)
	require.NoError(t, err)

	fake = newFakeMonit().on(OpStop, failResult(""))
	stop := Command{Op: OpStop, Args: []string{"monit", "stop", "app"}}
	_, err = testRunner(fake, WithMetrics(m)).Run(context.Background(), stop, nil)
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range metric.GetLabel() {
				key += "," + lp.GetName() + "=" + lp.GetValue()
			}
			got[key] = metric.GetCounter().GetValue()
		}
	}

	require.Equal(t, 1.0, got["monit_command_attempts_total,outcome=failed,subcommand=status"])
	require.Equal(t, 1.0, got["monit_command_attempts_total,outcome=ok,subcommand=status"])
	require.Equal(t, float64(fastBudget.Retries()+1), got["monit_command_attempts_total,outcome=failed,subcommand=stop"])
	require.Equal(t, 1.0, got["monit_command_exhausted_total,fatal=true,subcommand=stop"])
}

func TestRunnerRealTimeBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping real-time retry test in short mode")
	}

	fake := newFakeMonit().on(OpStatus, failResult("down"))
	r := testRunner(fake, WithBudget(Budget{Timeout: 2 * time.Second, Wait: time.Second}))

	start := time.Now()
	res, err := r.Run(context.Background(), statusCmd, nil)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, "down", res.Stdout)
	require.Equal(t, 3, fake.count(OpStatus))
	require.GreaterOrEqual(t, elapsed, 2*time.Second)
	require.Less(t, elapsed, 3500*time.Millisecond)
}

func TestExecCommand(t *testing.T) {
	res := ExecCommand(context.Background(), Command{
		Args: []string{"sh", "-c", "echo out; echo err >&2; exit 3"},
	})
	require.Error(t, res.Err)
	require.Equal(t, 3, res.ExitCode)
	require.Equal(t, "out\n", res.Stdout)
	require.Equal(t, "err\n", res.Stderr)
	require.Equal(t, "out\n\nerr\n", res.Output())

	res = ExecCommand(context.Background(), Command{
		Args: []string{"sh", "-c", "echo $MONIT_EXEC_TEST"},
		Env:  []string{"MONIT_EXEC_TEST=set"},
	})
	require.NoError(t, res.Err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "set\n", res.Stdout)

	res = ExecCommand(context.Background(), Command{Args: []string{"/nonexistent/monit", "-V"}})
	require.Error(t, res.Err)
	require.Equal(t, -1, res.ExitCode)
}
