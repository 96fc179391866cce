package main

import (
	"os"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/cli"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = gitCommit
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
