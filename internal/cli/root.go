// Package cli implements the buildmatrix command tree.
//
// Every command canonicalizes its inputs up front, runs the pipeline stages
// it needs, and reports the outcome through a semantic exit code so job
// definitions can branch without scraping output.
package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"buildmatrix/internal/classify"
	"buildmatrix/internal/config"
	"buildmatrix/internal/invoke"
	"buildmatrix/internal/logging"
	"buildmatrix/internal/pipeline"
	"buildmatrix/internal/vcs"
)

// Build metadata, stamped via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

// Deps are the run collaborators commands construct by default and tests
// replace. The zero value selects production defaults everywhere.
type Deps struct {
	// Engine executes planned invocations. Nil selects the host engine
	// against the located test host binary.
	Engine invoke.Engine

	// Variables is the pipeline variable store. Nil selects the store
	// matching the hosting environment.
	Variables pipeline.Store

	// Commits provides commit messages for classification. Nil selects git
	// in the workdir.
	Commits classify.CommitMessageSource

	// Getenv reads pipeline signal variables. Nil selects os.Getenv.
	Getenv func(string) string

	// Out and ErrOut replace the process streams when non-nil.
	Out    io.Writer
	ErrOut io.Writer
}

// collaborators are the resolved production or injected implementations a
// single command execution works with.
type collaborators struct {
	getenv    func(string) string
	variables pipeline.Store
	commits   classify.CommitMessageSource
	engine    invoke.Engine
}

func (a *App) collaborators(out io.Writer) collaborators {
	col := collaborators{
		getenv:    a.deps.Getenv,
		variables: a.deps.Variables,
		commits:   a.deps.Commits,
		engine:    a.deps.Engine,
	}
	if col.getenv == nil {
		col.getenv = os.Getenv
	}
	if col.variables == nil {
		col.variables = pipeline.ForEnvironment(col.getenv, out)
	}
	if col.commits == nil {
		col.commits = &vcs.GitLog{Dir: a.inv.WorkDir}
	}
	return col
}

type rootOptions struct {
	workDir    string
	configPath string
	resultsDir string
	logLevel   string
	logFormat  string
}

// App carries the state one command execution accumulates: the canonical
// invocation, the root logger, and the result the caller maps to a process
// exit code.
type App struct {
	deps Deps
	opts rootOptions

	inv Invocation
	log zerolog.Logger

	// executed flips once a command body starts; errors before that are
	// invocation errors by definition.
	executed bool
	result   Result
}

// NewRootCommand builds the buildmatrix command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "buildmatrix",
		Short: "CI build classification and test partition engine",
		Long: `buildmatrix decides whether a CI run is a daily/full build or a standard
build, plans test invocations across tag, privilege, and experimental
feature dimensions, executes them sequentially against the compiled test
host, and derives the package plan for the downstream packaging stage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			inv, err := canonicalize(app.opts)
			if err != nil {
				return err
			}
			log, err := logging.New(cmd.ErrOrStderr(), inv.LogLevel, inv.LogFormat)
			if err != nil {
				return invalidInvocationf("%v", err)
			}
			app.inv = inv
			app.log = log
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&app.opts.workDir, "workdir", "", "absolute working directory (required)")
	pf.StringVar(&app.opts.configPath, "config", "", "config file (default <workdir>/"+config.DefaultFileName+")")
	pf.StringVar(&app.opts.resultsDir, "results-dir", "", "override the configured results directory")
	pf.StringVar(&app.opts.logLevel, "log-level", "info", "log level: trace|debug|info|warn|error")
	pf.StringVar(&app.opts.logFormat, "log-format", "console", "log format: console|json")

	root.AddCommand(
		newClassifyCommand(app),
		newPlanCommand(app),
		newTestCommand(app),
		newPackagePlanCommand(app),
		newVersionCommand(app),
	)
	return root
}
