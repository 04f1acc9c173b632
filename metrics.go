package monit

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts supervisor command attempts
type Metrics struct {
	// Attempts counts every attempt by subcommand and outcome
	Attempts *prometheus.CounterVec
	// Exhausted counts invocations whose retry budget ran out
	Exhausted *prometheus.CounterVec
}

// Attempt outcomes
const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// NewMetrics creates the collectors and registers them on reg when it is not nil
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monit",
			Name:      "command_attempts_total",
			Help:      "Supervisor command attempts by subcommand and outcome.",
		}, []string{"subcommand", "outcome"}),
		Exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monit",
			Name:      "command_exhausted_total",
			Help:      "Supervisor commands that ran out of retry budget.",
		}, []string{"subcommand", "fatal"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.Attempts, m.Exhausted} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeAttempt(op Operation, ok bool) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if !ok {
		outcome = outcomeFailed
	}
	m.Attempts.WithLabelValues(op.String(), outcome).Inc()
}

func (m *Metrics) observeExhausted(op Operation, fatal bool) {
	if m == nil {
		return
	}
	m.Exhausted.WithLabelValues(op.String(), strconv.FormatBool(fatal)).Inc()
}
