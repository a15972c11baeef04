package report

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"buildmatrix/internal/invoke"
	"buildmatrix/internal/testplan"
)

// NewRunID returns a fresh operational run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Recorder writes run records as the run progresses.
//
// It implements the runner's observer interface: invocation notifications
// are persisted best-effort and never fail the run, while run-level
// bookkeeping (StartRun, FinishRun, RecordFailure) reports its errors so
// the caller can decide.
type Recorder struct {
	Store *Store
	RunID string
	Log   zerolog.Logger

	mu     sync.Mutex
	starts map[string]time.Time
}

func (r *Recorder) StartRun(run Run) error {
	if r == nil || r.Store == nil {
		return errors.New("store is required")
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	return r.Store.SaveRun(run)
}

// FinishRun updates the run record with its final status and trace hash.
func (r *Recorder) FinishRun(status RunStatus, traceHash string) error {
	if r == nil || r.Store == nil {
		return errors.New("store is required")
	}
	run, err := r.Store.LoadRun(r.RunID)
	if err != nil {
		return fmt.Errorf("load run for finish: %w", err)
	}
	run.Status = status
	run.TraceHash = traceHash
	return r.Store.SaveRun(run)
}

// RecordFailure classifies err into the failure taxonomy and persists it.
func (r *Recorder) RecordFailure(err error) error {
	if r == nil || r.Store == nil {
		return errors.New("store is required")
	}
	f, ferr := failureFromError(err)
	if ferr != nil {
		return ferr
	}
	return r.Store.SaveFailure(r.RunID, f)
}

// InvocationStarted notes the dispatch time of an invocation.
func (r *Recorder) InvocationStarted(spec testplan.InvocationSpec) {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.starts == nil {
		r.starts = make(map[string]time.Time)
	}
	r.starts[spec.Label] = time.Now().UTC()
	r.mu.Unlock()
}

// InvocationFinished persists the invocation's record. Persistence
// problems are logged, not raised: observers must not influence the run.
func (r *Recorder) InvocationFinished(outcome invoke.Outcome) {
	if r == nil || r.Store == nil {
		return
	}
	end := time.Now().UTC()

	r.mu.Lock()
	start, ok := r.starts[outcome.Spec.Label]
	delete(r.starts, outcome.Spec.Label)
	r.mu.Unlock()
	if !ok {
		start = end
	}

	rec := InvocationRecord{
		Label:            outcome.Spec.Label,
		Feature:          outcome.Spec.Feature,
		Tags:             outcome.Spec.Tags.Clone(),
		State:            string(outcome.State),
		Passed:           outcome.Result.Passed,
		Failed:           outcome.Result.Failed,
		AllowEmptyResult: outcome.Spec.AllowEmptyResult,
		StartTime:        start,
		EndTime:          end,
	}
	if len(outcome.Spec.Files) > 0 {
		rec.Files = append([]string(nil), outcome.Spec.Files...)
	}
	if outcome.Err != nil {
		rec.Error = outcome.Err.Error()
	}
	if err := r.Store.SaveInvocation(r.RunID, rec); err != nil {
		r.Log.Warn().Err(err).
			Str("label", rec.Label).
			Msg("could not persist invocation record")
	}
}
