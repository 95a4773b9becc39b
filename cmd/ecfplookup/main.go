// Command ecfplookup prints the substructures behind the ECFP features of the
// molecules read from standard input.
package main

import (
	"os"

	"github.com/turtacn/ecfplookup/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	os.Exit(cli.ExitCode(cli.Execute()))
}
