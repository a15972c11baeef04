// Package invoke executes planned test invocations strictly one after
// another and reports what each of them did.
package invoke

import (
	"context"
	"fmt"

	"buildmatrix/internal/aggregate"
	"buildmatrix/internal/testplan"
)

// Engine carries one planned invocation through to a result summary.
type Engine interface {
	Run(ctx context.Context, spec testplan.InvocationSpec) (aggregate.RunResult, error)
}

// PartitionError reports that one invocation could not produce a result
// summary. It is scoped to its invocation: the run continues with the
// remaining planned invocations.
type PartitionError struct {
	Label string
	Cause error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("test partition %q failed: %v", e.Label, e.Cause)
}

func (e *PartitionError) Unwrap() error { return e.Cause }
