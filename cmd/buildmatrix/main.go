package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"buildmatrix/internal/cli"
)

// main is a thin boundary: all argument handling, exit-code mapping, and
// pipeline work happens behind cli.Run.
func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := cli.Run(ctx, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return res.ExitCode
}
