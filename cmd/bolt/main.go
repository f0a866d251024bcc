package main

import (
	"os"

	"github.com/boltpm/bolt/internal/cli"
	"github.com/boltpm/bolt/pkg/errors"
)

// Version information injected at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersion(version, commit, date)
	if err := cli.Execute(); err != nil {
		os.Exit(errors.ExitCode(err))
	}
}
