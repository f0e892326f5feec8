// Package main is the entry point for the plint CLI.
//
// It checks Python code with pydocstyle and pylint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shinji-kodama/pdevtools/internal/cli"
)

// version, commit, and date are set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// SIGINT and SIGTERM cancel the context; the running tool receives
	// SIGINT and the process exits with 130.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, cli.NewLintRootCommand())
	stop()
	os.Exit(code)
}
