package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"buildmatrix/internal/artifact"
	"buildmatrix/internal/classify"
	"buildmatrix/internal/config"
	"buildmatrix/internal/pkgplan"
	"buildmatrix/internal/platform"
	"buildmatrix/internal/testplan"
)

func newClassifyCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Classify the run as daily or standard and persist the decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.executed = true
			res, err := runClassify(cmd.Context(), app, cmd.OutOrStdout())
			app.result = res
			return err
		},
	}
}

func runClassify(ctx context.Context, app *App, out io.Writer) (Result, error) {
	col := app.collaborators(out)
	cls := classifyBuild(ctx, app, col)
	if err := printJSON(out, cls); err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}
	return Result{ExitCode: ExitSuccess}, nil
}

// classifyBuild runs the classifier against the pipeline signals. It never
// fails; ambiguous inputs degrade to the standard build inside the
// classifier.
func classifyBuild(ctx context.Context, app *App, col collaborators) classify.Classification {
	classifier := &classify.Classifier{
		Commits:   col.commits,
		Variables: col.variables,
		Log:       app.log.With().Str("component", "classify").Logger(),
	}
	return classifier.Classify(ctx, classify.FromEnvironment(col.getenv))
}

func newPlanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the planned test invocations without executing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.executed = true
			res, err := runPlan(cmd.Context(), app, cmd.OutOrStdout())
			app.result = res
			return err
		},
	}
}

func runPlan(ctx context.Context, app *App, out io.Writer) (Result, error) {
	cfg, err := config.Load(app.inv.ConfigPath)
	if err != nil {
		return Result{ExitCode: ExitConfigError}, err
	}

	col := app.collaborators(out)
	cls := classifyBuild(ctx, app, col)

	specs, err := planInvocations(ctx, app, cfg, cls)
	if err != nil {
		return Result{ExitCode: ExitConfigError}, err
	}
	if err := printJSON(out, specs); err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}
	return Result{ExitCode: ExitSuccess}, nil
}

// planInvocations resolves the artifact locator from the configuration and
// derives the ordered invocation list for the classified build.
func planInvocations(ctx context.Context, app *App, cfg config.Config, cls classify.Classification) ([]testplan.InvocationSpec, error) {
	locator, err := app.locator(cfg)
	if err != nil {
		return nil, err
	}
	planner := &testplan.Planner{
		Artifacts: locator,
		Log:       app.log.With().Str("component", "testplan").Logger(),
	}
	return planner.Plan(ctx, testplan.Request{
		Classification: cls,
		Platform:       platform.Current(),
		Privilege:      platform.DetectPrivilege(),
		Features:       cfg.Features,
	})
}

func (a *App) locator(cfg config.Config) (*artifact.DirLocator, error) {
	dir, err := resolveUnderWorkDir(a.inv.WorkDir, cfg.ArtifactDir)
	if err != nil {
		return nil, err
	}
	return &artifact.DirLocator{
		Dir:      dir,
		Name:     cfg.TestHost,
		Platform: platform.Current(),
	}, nil
}

func newPackagePlanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "package-plan",
		Short: "Print the package plan for the classified build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.executed = true
			res, err := runPackagePlan(cmd.Context(), app, cmd.OutOrStdout())
			app.result = res
			return err
		},
	}
}

func runPackagePlan(ctx context.Context, app *App, out io.Writer) (Result, error) {
	cfg, err := config.Load(app.inv.ConfigPath)
	if err != nil {
		return Result{ExitCode: ExitConfigError}, err
	}

	col := app.collaborators(out)
	cls := classifyBuild(ctx, app, col)

	plan, err := pkgplan.Build(cls, platform.Current(), cfg.ReleaseTag)
	if err != nil {
		return Result{ExitCode: ExitConfigError}, err
	}
	if err := printJSON(out, plan); err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}
	return Result{ExitCode: ExitSuccess}, nil
}

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build metadata",
		Args:  cobra.NoArgs,
		// version must work without --workdir; skip the root canonicalization.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			app.executed = true
			app.result = Result{ExitCode: ExitSuccess}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "buildmatrix %s (%s) %s/%s\n",
				version, commit, runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
