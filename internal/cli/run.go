package cli

import (
	"context"
	"errors"
)

// Run executes the CLI with production collaborators. It is the entrypoint
// main delegates to and black-box tests drive.
func Run(ctx context.Context, args []string) (Result, error) {
	return RunWith(ctx, args, Deps{})
}

// RunWith executes the CLI with the given collaborators standing in for
// the production defaults.
func RunWith(ctx context.Context, args []string, deps Deps) (Result, error) {
	app := &App{deps: deps}
	root := NewRootCommand(app)
	if deps.Out != nil {
		root.SetOut(deps.Out)
	}
	if deps.ErrOut != nil {
		root.SetErr(deps.ErrOut)
	}
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if app.executed {
		return app.result, err
	}
	if err == nil {
		// Help output, or a bare root invocation.
		return Result{ExitCode: ExitSuccess}, nil
	}
	// Failures before any command body ran are invocation errors: unknown
	// flags, unknown subcommands, canonicalization rejections.
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr.ExitCode != 0 {
		return Result{ExitCode: invErr.ExitCode}, err
	}
	return Result{ExitCode: ExitInvalidInvocation}, err
}
