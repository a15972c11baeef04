package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"buildmatrix/internal/aggregate"
	"buildmatrix/internal/platform"
	"buildmatrix/internal/testplan"
)

// resultSummary is the schema the test host writes to its results file.
// The file is the authoritative record of what ran; host exit codes only
// matter when no readable summary exists.
type resultSummary struct {
	Label  string `json:"label"`
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
}

// HostEngine runs invocations by launching the compiled test host binary
// once per invocation.
type HostEngine struct {
	// HostPath is the located test host binary.
	HostPath string

	// ResultsDir receives one summary file per invocation, named after the
	// invocation label.
	ResultsDir string

	// WorkDir is the working directory for host processes. Empty inherits
	// the agent's.
	WorkDir string

	Platform  platform.Platform
	Privilege platform.PrivilegeMode

	// Timeout bounds a single invocation. Zero means no limit.
	Timeout time.Duration

	// Output receives the host's stdout and stderr as it runs. Nil sends
	// stdout to the null device; stderr is captured for diagnostics either
	// way.
	Output io.Writer

	Log zerolog.Logger
}

// Run launches the host for one invocation and parses its summary file.
//
// The host inherits the agent's environment: test discovery and the tests
// themselves read pipeline context from it. This is the opposite of an
// isolated build step and intentional.
//
// A non-zero host exit with a readable summary is not an execution error;
// hosts conventionally exit non-zero when any test fails and the summary
// already carries the failure counts. Every failure to obtain a summary is
// returned as a *PartitionError.
func (e *HostEngine) Run(ctx context.Context, spec testplan.InvocationSpec) (aggregate.RunResult, error) {
	var zero aggregate.RunResult

	if err := e.validate(); err != nil {
		return zero, err
	}
	if err := spec.Validate(); err != nil {
		return zero, &PartitionError{Label: spec.Label, Cause: err}
	}

	argv, err := e.argv(spec)
	if err != nil {
		return zero, &PartitionError{Label: spec.Label, Cause: err}
	}

	if err := os.MkdirAll(e.ResultsDir, 0o755); err != nil {
		return zero, &PartitionError{Label: spec.Label, Cause: err}
	}
	resultsFile := e.resultsFile(spec.Label)
	// A leftover file from an earlier run must not pass for this run's
	// summary.
	if err := os.Remove(resultsFile); err != nil && !os.IsNotExist(err) {
		return zero, &PartitionError{Label: spec.Label, Cause: err}
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	e.Log.Info().
		Str("label", spec.Label).
		Strs("argv", argv).
		Msg("dispatching test host")

	exitCode, stderr, err := e.launch(ctx, argv)
	if err != nil {
		return zero, &PartitionError{Label: spec.Label, Cause: err}
	}

	var summary resultSummary
	if err := readSummary(resultsFile, &summary); err != nil {
		return zero, &PartitionError{
			Label: spec.Label,
			Cause: fmt.Errorf("host exited with code %d but left no readable summary: %w%s",
				exitCode, err, stderrDetail(stderr)),
		}
	}
	if summary.Label != "" && summary.Label != spec.Label {
		return zero, &PartitionError{
			Label: spec.Label,
			Cause: fmt.Errorf("summary labeled %q does not belong to invocation %q", summary.Label, spec.Label),
		}
	}
	if summary.Passed < 0 || summary.Failed < 0 {
		return zero, &PartitionError{
			Label: spec.Label,
			Cause: fmt.Errorf("summary reports negative counts (passed=%d failed=%d)", summary.Passed, summary.Failed),
		}
	}

	e.Log.Info().
		Str("label", spec.Label).
		Int("exit_code", exitCode).
		Int("passed", summary.Passed).
		Int("failed", summary.Failed).
		Msg("test host finished")

	return aggregate.RunResult{
		Label:            spec.Label,
		Passed:           summary.Passed,
		Failed:           summary.Failed,
		AllowEmptyResult: spec.AllowEmptyResult,
	}, nil
}

func (e *HostEngine) validate() error {
	if e.HostPath == "" {
		return fmt.Errorf("invoke: host path is required")
	}
	if e.ResultsDir == "" {
		return fmt.Errorf("invoke: results directory is required")
	}
	return nil
}

func (e *HostEngine) resultsFile(label string) string {
	return filepath.Join(e.ResultsDir, label+".json")
}

// argv assembles the host command line. The privileged partition is
// launched through sudo on Unix-like systems when the agent itself is not
// elevated; on Windows the agent cannot raise its own token, so a
// privileged invocation under an unelevated agent cannot run at all.
func (e *HostEngine) argv(spec testplan.InvocationSpec) ([]string, error) {
	var argv []string
	if spec.Privileged && e.Privilege != platform.Elevated {
		if !e.Platform.IsUnix() {
			return nil, fmt.Errorf("privileged invocation requires an elevated agent on %s", e.Platform)
		}
		// -n keeps a misconfigured agent from hanging on a password prompt.
		argv = append(argv, "sudo", "-n")
	}
	argv = append(argv, e.HostPath, "--run", "--results", e.resultsFile(spec.Label))
	for _, tag := range testplan.Strings(spec.Tags.Include) {
		argv = append(argv, "--include-tag", tag)
	}
	for _, tag := range testplan.Strings(spec.Tags.Exclude) {
		argv = append(argv, "--exclude-tag", tag)
	}
	if spec.Feature != "" {
		argv = append(argv, "--feature", spec.Feature)
	}
	if spec.AllowEmptyResult {
		argv = append(argv, "--allow-empty")
	}
	argv = append(argv, spec.Files...)
	return argv, nil
}

// launch starts the host and waits for it, killing the whole process tree
// on cancellation. It returns the process exit code; failing to start or
// being cancelled is an error, a non-zero exit is not.
func (e *HostEngine) launch(ctx context.Context, argv []string) (int, []byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.WorkDir

	var stderr bytes.Buffer
	cmd.Stdout = e.Output
	if e.Output != nil {
		cmd.Stderr = io.MultiWriter(e.Output, &stderr)
	} else {
		cmd.Stderr = &stderr
	}

	// Process group so that cancellation reaps the host's children too.
	setProcGroup(cmd)

	if err := cmd.Start(); err != nil {
		return 0, nil, fmt.Errorf("starting test host: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		killProcessTree(cmd)
		<-done
		return 0, stderr.Bytes(), fmt.Errorf("invocation cancelled: %w", ctx.Err())
	case waitErr = <-done:
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return 0, stderr.Bytes(), fmt.Errorf("running test host: %w", waitErr)
		}
		exitCode = exitErr.ExitCode()
	}
	return exitCode, stderr.Bytes(), nil
}

// readSummary decodes a summary file, rejecting unknown fields and
// trailing content so that a corrupt or foreign file never counts as a
// result.
func readSummary(path string, dst *resultSummary) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON: trailing content")
	}
	return nil
}

func stderrDetail(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if s == "" {
		return ""
	}
	const keep = 2048
	if len(s) > keep {
		s = "..." + s[len(s)-keep:]
	}
	return "; stderr: " + s
}
