// Package aggregate turns per-invocation test summaries into a single
// run verdict.
//
// Every result is checked against its completion rule and every violation
// is reported; a failing early invocation never hides problems in later
// ones.
package aggregate

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// RunResult is the summarized outcome of one test invocation, keyed by the
// invocation label it came from.
type RunResult struct {
	Label  string `json:"label"`
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`

	// AllowEmptyResult relaxes the "at least one test ran" rule for
	// invocations that may legitimately match nothing.
	AllowEmptyResult bool `json:"allow_empty_result"`
}

// Verdict is the overall outcome across all invocations of a run.
type Verdict string

const (
	Pass Verdict = "Pass"
	Fail Verdict = "Fail"
)

// CompletionVariable is set to "true" in the pipeline variable store when
// every invocation met its completion rule. Downstream stages gate
// packaging and publishing on it.
const CompletionVariable = "TESTS_PASSED"

// Error carries every completion-rule violation found across a run.
type Error struct {
	Violations *multierror.Error
}

func (e *Error) Error() string {
	return fmt.Sprintf("test run verdict: %v", e.Violations)
}

func (e *Error) Unwrap() error { return e.Violations }

// VariableSetter persists run-scoped variables for later pipeline stages.
type VariableSetter interface {
	Set(name, value string) error
}

// Aggregator computes the verdict and records it for downstream stages.
type Aggregator struct {
	Variables VariableSetter
	Log       zerolog.Logger
}

// Aggregate evaluates every result against its completion rule:
//
//   - a result that does not allow emptiness must have zero failures and
//     at least one passing test;
//   - a result that allows emptiness must have zero failures.
//
// execErrors are failures of invocations that produced no summary at all.
// They count as violations like any other, so a partition that never ran
// fails the run even when every summary that does exist is clean.
//
// All results are evaluated regardless of earlier violations, and the
// returned error lists each violation. On a full pass the completion
// variable is set to "true"; on any violation it is left unset.
func (a *Aggregator) Aggregate(results []RunResult, execErrors []error) (Verdict, error) {
	var violations *multierror.Error

	for _, err := range execErrors {
		if err == nil {
			continue
		}
		violations = multierror.Append(violations, err)
	}

	if len(results) == 0 && len(execErrors) == 0 {
		violations = multierror.Append(violations,
			fmt.Errorf("no invocation produced a result"))
	}

	for i, r := range results {
		label := r.Label
		if label == "" {
			label = fmt.Sprintf("invocation[%d]", i)
		}
		if r.Failed > 0 {
			violations = multierror.Append(violations,
				fmt.Errorf("%s: %d test(s) failed", label, r.Failed))
		}
		if !r.AllowEmptyResult && r.Passed == 0 && r.Failed == 0 {
			violations = multierror.Append(violations,
				fmt.Errorf("%s: no tests executed", label))
		}
	}

	if violations.ErrorOrNil() != nil {
		a.Log.Error().
			Int("invocations", len(results)).
			Int("violations", len(violations.Errors)).
			Msg("test run failed")
		return Fail, &Error{Violations: violations}
	}

	a.Log.Info().Int("invocations", len(results)).Msg("all test invocations passed")
	a.persistCompletion()
	return Pass, nil
}

// persistCompletion marks the run complete for later pipeline stages. The
// verdict stands even if the variable store rejects the write.
func (a *Aggregator) persistCompletion() {
	if a.Variables == nil {
		return
	}
	if err := a.Variables.Set(CompletionVariable, "true"); err != nil {
		a.Log.Warn().Err(err).
			Str("variable", CompletionVariable).
			Msg("could not persist completion variable")
	}
}
