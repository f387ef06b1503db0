// Package main is the entrypoint for the gridmon agent and CLI.
package main

import "github.com/gridmon/gridmon/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
