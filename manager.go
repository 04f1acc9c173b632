package monit

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Step is one desired transition for one service
type Step struct {
	Service *Service
	Action  Action
}

// StepResult is the outcome of a Step
type StepResult struct {
	Step    Step
	Changed bool
	Err     error
}

// Applier runs reconciliation steps against one instance. Steps run one at a
// time in order; the supervisor control channel is not safe for concurrent use.
type Applier struct {
	// ContinueOnError keeps applying after a failed step
	ContinueOnError bool
	// Logger receives one line per step
	Logger logrus.FieldLogger
}

// ApplierOption configures an Applier
type ApplierOption func(*Applier)

// WithContinueOnError keeps applying after a failed step
func WithContinueOnError(v bool) ApplierOption {
	return func(a *Applier) {
		a.ContinueOnError = v
	}
}

// WithApplierLogger sets the logger
func WithApplierLogger(l logrus.FieldLogger) ApplierOption {
	return func(a *Applier) {
		a.Logger = l
	}
}

// NewApplier creates an Applier that continues past failures
func NewApplier(opts ...ApplierOption) *Applier {
	a := &Applier{
		ContinueOnError: true,
		Logger:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply reconciles every step in order and aggregates failures into a MultiError
func (a *Applier) Apply(ctx context.Context, steps ...Step) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	merr := &MultiError{}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			merr.Add(err)
			break
		}

		changed, err := step.Service.Reconcile(ctx, step.Action)
		if err != nil {
			err = fmt.Errorf("%s %s: %w", step.Action, step.Service.Name, err)
		}
		results = append(results, StepResult{Step: step, Changed: changed, Err: err})

		log := a.Logger.WithFields(logrus.Fields{
			"service": step.Service.Name,
			"action":  step.Action.String(),
			"changed": changed,
		})
		if err != nil {
			log.WithError(err).Error("step failed")
			merr.Add(err)
			if !a.ContinueOnError {
				break
			}
			continue
		}
		log.Debug("step applied")
	}

	return results, merr.Err()
}
