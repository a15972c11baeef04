package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"buildmatrix/internal/aggregate"
	"buildmatrix/internal/classify"
	"buildmatrix/internal/config"
	"buildmatrix/internal/invoke"
	"buildmatrix/internal/pkgplan"
	"buildmatrix/internal/platform"
	"buildmatrix/internal/report"
	"buildmatrix/internal/trace"
)

// Result is the outcome of one command execution, as the process boundary
// reports it.
type Result struct {
	ExitCode int

	// Summary is set by the test command once the pipeline ran far enough
	// to classify the build, regardless of verdict.
	Summary *RunSummary
}

// RunSummary is the machine-readable record the test command prints after
// the pipeline finishes.
type RunSummary struct {
	RunID          string                  `json:"run_id"`
	Classification classify.Classification `json:"classification"`
	Platform       string                  `json:"platform"`
	Privilege      string                  `json:"privilege"`
	Invocations    int                     `json:"invocations"`
	Verdict        aggregate.Verdict       `json:"verdict"`
	PackagePlan    *pkgplan.Plan           `json:"package_plan,omitempty"`
	TraceHash      string                  `json:"trace_hash,omitempty"`
}

func newTestCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Classify, plan, and execute the test run end to end",
		Long: `test runs the full pipeline: classify the build, plan the invocation
matrix, execute every invocation sequentially against the test host,
aggregate the results into a single verdict, persist the run report and
invocation trace, publish the pipeline variables, and derive the package
plan. The exit code carries the outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.executed = true
			res, err := app.executeTest(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			app.result = res
			return err
		},
	}
}

// executeTest runs the whole pipeline for one canonical invocation.
//
// Responsibilities:
//   - Initialize the report store first so every later failure can be
//     recorded, then record the run and each invocation as they happen.
//   - Keep the trace recorder wired through execution and persist the
//     canonical trace even when the run fails early or panics.
//   - Translate stage outcomes to semantic exit codes at each failure site.
func (a *App) executeTest(ctx context.Context, out, errOut io.Writer) (res Result, execErr error) {
	res.ExitCode = ExitInternalError
	log := a.log.With().Str("component", "run").Logger()

	col := a.collaborators(out)

	// Report store problems degrade to logging; they never fail the run.
	store, err := report.NewStore(a.inv.WorkDir)
	if err != nil {
		log.Warn().Err(err).Msg("run report store unavailable")
	}
	runID := report.NewRunID()
	rec := &report.Recorder{Store: store, RunID: runID, Log: log}

	tr := trace.NewRecorder()
	var traceCanonical []byte
	var traceHash string
	started := false

	defer func() {
		if r := recover(); r != nil {
			execErr = fmt.Errorf("panic: %v", r)
			res = Result{ExitCode: ExitInternalError}
			recordFailure(rec, log, execErr)
		}
		if traceCanonical == nil {
			traceCanonical, traceHash = canonicalTrace(tr, runID, log)
		}
		if store != nil && traceCanonical != nil {
			if err := store.SaveTrace(runID, traceCanonical); err != nil {
				log.Warn().Err(err).Msg("could not persist invocation trace")
			}
		}
		if started {
			status := report.RunStatusFailed
			if res.ExitCode == ExitSuccess {
				status = report.RunStatusPassed
			}
			if err := rec.FinishRun(status, traceHash); err != nil {
				log.Warn().Err(err).Msg("could not record run finish")
			}
		}
	}()

	cls := classifyBuild(ctx, a, col)
	plat := platform.Current()
	priv := platform.DetectPrivilege()

	if err := rec.StartRun(report.Run{
		RunID:     runID,
		Daily:     cls.Daily,
		Reason:    string(cls.Reason),
		Platform:  plat.String(),
		Privilege: priv.String(),
	}); err != nil {
		log.Warn().Err(err).Msg("could not record run start")
	} else {
		started = true
	}

	res.Summary = &RunSummary{
		RunID:          runID,
		Classification: cls,
		Platform:       plat.String(),
		Privilege:      priv.String(),
		Verdict:        aggregate.Fail,
	}

	cfg, err := config.Load(a.inv.ConfigPath)
	if err != nil {
		recordFailure(rec, log, err)
		res.ExitCode = ExitConfigError
		return res, err
	}

	resultsDir := a.inv.ResultsDir
	if resultsDir == "" {
		resultsDir, err = resolveUnderWorkDir(a.inv.WorkDir, cfg.ResultsDir)
		if err != nil {
			recordFailure(rec, log, err)
			res.ExitCode = ExitConfigError
			return res, err
		}
	}

	specs, err := planInvocations(ctx, a, cfg, cls)
	if err != nil {
		recordFailure(rec, log, err)
		res.ExitCode = ExitConfigError
		return res, err
	}
	res.Summary.Invocations = len(specs)

	engine := col.engine
	if engine == nil {
		locator, lerr := a.locator(cfg)
		if lerr != nil {
			recordFailure(rec, log, lerr)
			res.ExitCode = ExitConfigError
			return res, lerr
		}
		hostPath, herr := locator.TestHost(ctx)
		if herr != nil {
			recordFailure(rec, log, herr)
			res.ExitCode = ExitConfigError
			return res, herr
		}
		engine = &invoke.HostEngine{
			HostPath:   hostPath,
			ResultsDir: resultsDir,
			WorkDir:    a.inv.WorkDir,
			Platform:   plat,
			Privilege:  priv,
			Output:     errOut,
			Log:        a.log.With().Str("component", "invoke").Logger(),
		}
	}

	runner := &invoke.Runner{
		Engine:   engine,
		Trace:    tr,
		Observer: rec,
		Log:      a.log.With().Str("component", "invoke").Logger(),
	}
	outcomes, err := runner.Run(ctx, specs)
	if err != nil {
		// Aborted mid-run: cancellation or broken lifecycle bookkeeping.
		// Outcomes collected so far are already persisted.
		recordFailure(rec, log, err)
		res.ExitCode = ExitInternalError
		return res, err
	}

	traceCanonical, traceHash = canonicalTrace(tr, runID, log)
	res.Summary.TraceHash = traceHash

	agg := &aggregate.Aggregator{
		Variables: col.variables,
		Log:       a.log.With().Str("component", "aggregate").Logger(),
	}
	verdict, aggErr := agg.Aggregate(invoke.Results(outcomes), invoke.PartitionErrors(outcomes))
	res.Summary.Verdict = verdict
	if aggErr != nil {
		recordFailure(rec, log, aggErr)
		res.ExitCode = ExitTestFailure
		// The summary still prints; downstream log scrapers read the
		// verdict from it even on failure.
		if perr := printJSON(out, res.Summary); perr != nil {
			log.Warn().Err(perr).Msg("could not print run summary")
		}
		return res, aggErr
	}

	plan, err := pkgplan.Build(cls, plat, cfg.ReleaseTag)
	if err != nil {
		recordFailure(rec, log, err)
		res.ExitCode = ExitConfigError
		return res, err
	}
	res.Summary.PackagePlan = &plan

	res.ExitCode = ExitSuccess
	if err := printJSON(out, res.Summary); err != nil {
		res.ExitCode = ExitInternalError
		return res, err
	}
	return res, nil
}

func recordFailure(rec *report.Recorder, log zerolog.Logger, err error) {
	if rerr := rec.RecordFailure(err); rerr != nil {
		log.Warn().Err(rerr).Msg("could not record run failure")
	}
}

// canonicalTrace encodes the recorder's events as the run's canonical trace
// and returns the bytes with their hash.
func canonicalTrace(tr *trace.Recorder, runID string, log zerolog.Logger) ([]byte, string) {
	t := tr.Trace(runID)
	b, err := t.CanonicalJSON()
	if err != nil {
		log.Warn().Err(err).Msg("could not encode invocation trace")
		return nil, ""
	}
	return b, trace.ComputeTraceHash(b)
}
