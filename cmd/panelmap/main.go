// Package main provides the entry point for the panelmap CLI tool.
package main

import (
	"github.com/genomicsops/panelmap/cmd/panelmap/cmd"
)

// Version information populated by the build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}
