// Package report persists what a run did: its metadata, one record per
// test invocation, and the failure that ended it, if any.
//
// Records are written as they happen so that a crashed agent still leaves
// an inspectable trail on disk.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"buildmatrix/internal/testplan"
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
)

// Run is the persistent metadata of one agent run.
type Run struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`

	// Daily and Reason echo the build classification the run acted on.
	Daily  bool   `json:"daily"`
	Reason string `json:"reason"`

	Platform  string    `json:"platform"`
	Privilege string    `json:"privilege"`
	Status    RunStatus `json:"status"`

	// TraceHash is the canonical hash of the run's invocation trace, set
	// when the run finishes.
	TraceHash string `json:"trace_hash,omitempty"`
}

func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if r.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if strings.TrimSpace(r.Reason) == "" {
		errs = append(errs, errors.New("reason is required"))
	}
	if strings.TrimSpace(r.Platform) == "" {
		errs = append(errs, errors.New("platform is required"))
	}
	if strings.TrimSpace(r.Privilege) == "" {
		errs = append(errs, errors.New("privilege is required"))
	}
	switch r.Status {
	case RunStatusRunning, RunStatusPassed, RunStatusFailed:
		// ok
	default:
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// InvocationRecord is the persisted outcome of one test invocation.
type InvocationRecord struct {
	Label   string `json:"label"`
	Feature string `json:"feature,omitempty"`

	// Tags is the include/exclude filter the invocation ran with.
	Tags testplan.TagSet `json:"tags"`

	// Files is the explicit file scope, empty for full-corpus runs.
	Files []string `json:"files,omitempty"`

	// State is the terminal lifecycle state (PASSED, FAILED, ERRORED).
	State string `json:"state"`

	Passed           int  `json:"passed"`
	Failed           int  `json:"failed"`
	AllowEmptyResult bool `json:"allow_empty_result"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Error is the partition failure message for ERRORED invocations.
	Error string `json:"error,omitempty"`
}

func (rec InvocationRecord) Validate() error {
	var errs []error
	if strings.TrimSpace(rec.Label) == "" {
		errs = append(errs, errors.New("label is required"))
	}
	if strings.TrimSpace(rec.State) == "" {
		errs = append(errs, errors.New("state is required"))
	}
	if err := rec.Tags.Validate(); err != nil {
		errs = append(errs, err)
	}
	if rec.Passed < 0 || rec.Failed < 0 {
		errs = append(errs, errors.New("counts must be >= 0"))
	}
	if rec.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if rec.EndTime.Before(rec.StartTime) {
		errs = append(errs, errors.New("end_time must not precede start_time"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

type FailureClass string

const (
	FailureClassClassification FailureClass = "classification"
	FailureClassArtifact       FailureClass = "artifact"
	FailureClassPartition      FailureClass = "partition"
	FailureClassAggregation    FailureClass = "aggregation"
	FailureClassSystem         FailureClass = "system"
)

// Failure is a recorded run termination reason.
type Failure struct {
	FailureClass FailureClass `json:"failure_class"`

	// Label names the invocation for partition failures, nil otherwise.
	Label *string `json:"label,omitempty"`

	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`

	// Fatal marks failures that stopped the run before or instead of
	// executing the plan.
	Fatal bool `json:"fatal"`
}

func (f Failure) Validate() error {
	var errs []error
	switch f.FailureClass {
	case FailureClassClassification, FailureClassArtifact, FailureClassPartition,
		FailureClassAggregation, FailureClassSystem:
		// ok
	default:
		errs = append(errs, fmt.Errorf("invalid failure_class %q", f.FailureClass))
	}
	if f.Label != nil && strings.TrimSpace(*f.Label) == "" {
		errs = append(errs, errors.New("label must not be empty when provided"))
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
