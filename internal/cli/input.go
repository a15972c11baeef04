package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"buildmatrix/internal/aggregate"
	"buildmatrix/internal/artifact"
	"buildmatrix/internal/config"
	"buildmatrix/internal/invoke"
)

// Semantic exit codes are the contract between this binary and the pipeline
// job definitions that call it. Callers branch on them; do not renumber.
const (
	ExitSuccess           = 0
	ExitTestFailure       = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Invocation is the fully canonicalized description of a command run.
//
// All paths are normalized and all relative paths are resolved under
// WorkDir. The process current working directory is never consulted, so the
// same flags mean the same run wherever the agent starts the process.
type Invocation struct {
	// WorkDir is required and must be absolute.
	WorkDir string

	// ConfigPath is the resolved configuration file path. The file itself
	// may be absent; absence selects the defaults.
	ConfigPath string

	// ResultsDir overrides the configured results directory when non-empty.
	ResultsDir string

	LogLevel  string
	LogFormat string
}

// InvocationError is an error that carries its own semantic exit code.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// canonicalize validates the persistent flag values and resolves every path
// they name.
func canonicalize(opts rootOptions) (Invocation, error) {
	if strings.TrimSpace(opts.workDir) == "" {
		return Invocation{}, invalidInvocationf("--workdir is required")
	}
	workDir := filepath.Clean(opts.workDir)
	if !filepath.IsAbs(workDir) {
		return Invocation{}, invalidInvocationf("--workdir must be an absolute path (got %q)", opts.workDir)
	}

	inv := Invocation{
		WorkDir:   workDir,
		LogLevel:  opts.logLevel,
		LogFormat: opts.logFormat,
	}

	configPath := opts.configPath
	if strings.TrimSpace(configPath) == "" {
		configPath = config.DefaultFileName
	}
	resolved, err := resolveUnderWorkDir(workDir, configPath)
	if err != nil {
		return Invocation{}, err
	}
	inv.ConfigPath = resolved

	if strings.TrimSpace(opts.resultsDir) != "" {
		resolved, err := resolveUnderWorkDir(workDir, opts.resultsDir)
		if err != nil {
			return Invocation{}, err
		}
		inv.ResultsDir = resolved
	}

	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	// WorkDir is absolute, so Join never consults the process CWD.
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ExitCode maps an error to its semantic exit code: typed invocation errors
// carry their own code, domain errors map through the failure taxonomy, and
// anything unrecognized is an internal error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	var missing *artifact.MissingError
	if errors.As(err, &missing) {
		return ExitConfigError
	}
	var aggErr *aggregate.Error
	if errors.As(err, &aggErr) {
		return ExitTestFailure
	}
	var partErr *invoke.PartitionError
	if errors.As(err, &partErr) {
		return ExitTestFailure
	}
	return ExitInternalError
}
