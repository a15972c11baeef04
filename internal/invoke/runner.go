package invoke

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"buildmatrix/internal/aggregate"
	"buildmatrix/internal/testplan"
	"buildmatrix/internal/trace"
)

// Outcome is the terminal record of one invocation.
type Outcome struct {
	Spec  testplan.InvocationSpec
	State State

	// Result is the host's summary. Meaningful unless State is ERRORED.
	Result aggregate.RunResult

	// Err is the partition failure, non-nil exactly when State is ERRORED.
	Err error
}

// Observer receives invocation lifecycle notifications, typically to
// persist report records. Observers must not influence execution.
type Observer interface {
	InvocationStarted(spec testplan.InvocationSpec)
	InvocationFinished(outcome Outcome)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) InvocationStarted(testplan.InvocationSpec) {}
func (NopObserver) InvocationFinished(Outcome)                {}

// Runner executes a plan strictly in order, one invocation at a time.
type Runner struct {
	Engine   Engine
	Trace    trace.Sink
	Observer Observer
	Log      zerolog.Logger
}

// Run carries every planned invocation through its lifecycle. A failing
// invocation never stops the remaining ones; the failure is recorded in
// its outcome and execution moves on. Run only returns early when the
// context is cancelled or internal bookkeeping breaks, and then reports
// the outcomes collected so far.
func (r *Runner) Run(ctx context.Context, specs []testplan.InvocationSpec) ([]Outcome, error) {
	if r == nil || r.Engine == nil {
		return nil, fmt.Errorf("invoke: engine is required")
	}

	labels := make([]string, len(specs))
	for i, s := range specs {
		labels[i] = s.Label
	}
	state, err := NewRunState(labels)
	if err != nil {
		return nil, fmt.Errorf("invoke: %w", err)
	}

	observer := r.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	outcomes := make([]Outcome, 0, len(specs))
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return outcomes, fmt.Errorf("run aborted: %w", err)
		}

		if err := state.Transition(spec.Label, StatePending, StateRunning); err != nil {
			return outcomes, fmt.Errorf("invoke: %w", err)
		}
		trace.SafeRecord(r.Trace, trace.Event{
			Kind:    trace.EventInvocationDispatched,
			Label:   spec.Label,
			Feature: spec.Feature,
		})
		observer.InvocationStarted(spec)
		r.Log.Info().Str("label", spec.Label).Msg("invocation started")

		result, runErr := r.Engine.Run(ctx, spec)
		if runErr != nil {
			outcome, err := r.finishErrored(state, spec, runErr)
			if err != nil {
				return outcomes, err
			}
			observer.InvocationFinished(outcome)
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome, err := r.finishCompleted(state, spec, result)
		if err != nil {
			return outcomes, err
		}
		observer.InvocationFinished(outcome)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (r *Runner) finishErrored(state RunState, spec testplan.InvocationSpec, runErr error) (Outcome, error) {
	var perr *PartitionError
	if !errors.As(runErr, &perr) {
		perr = &PartitionError{Label: spec.Label, Cause: runErr}
	}
	if err := state.Transition(spec.Label, StateRunning, StateErrored); err != nil {
		return Outcome{}, fmt.Errorf("invoke: %w", err)
	}
	trace.SafeRecord(r.Trace, trace.Event{
		Kind:    trace.EventInvocationFailed,
		Label:   spec.Label,
		Feature: spec.Feature,
		Outcome: string(StateErrored),
	})
	r.Log.Error().Err(perr).Str("label", spec.Label).Msg("invocation failed to execute")
	return Outcome{Spec: spec, State: StateErrored, Err: perr}, nil
}

func (r *Runner) finishCompleted(state RunState, spec testplan.InvocationSpec, result aggregate.RunResult) (Outcome, error) {
	terminal := StatePassed
	if result.Failed > 0 {
		terminal = StateFailed
	}
	if err := state.Transition(spec.Label, StateRunning, terminal); err != nil {
		return Outcome{}, fmt.Errorf("invoke: %w", err)
	}
	trace.SafeRecord(r.Trace, trace.Event{
		Kind:    trace.EventInvocationCompleted,
		Label:   spec.Label,
		Feature: spec.Feature,
		Outcome: string(terminal),
	})
	r.Log.Info().
		Str("label", spec.Label).
		Str("state", string(terminal)).
		Int("passed", result.Passed).
		Int("failed", result.Failed).
		Msg("invocation finished")
	return Outcome{Spec: spec, State: terminal, Result: result}, nil
}

// Results extracts the summaries of invocations that produced one, in
// execution order.
func Results(outcomes []Outcome) []aggregate.RunResult {
	var results []aggregate.RunResult
	for _, o := range outcomes {
		if o.State == StateErrored {
			continue
		}
		results = append(results, o.Result)
	}
	return results
}

// PartitionErrors collects the failures of invocations that produced no
// summary, in execution order.
func PartitionErrors(outcomes []Outcome) []error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}
