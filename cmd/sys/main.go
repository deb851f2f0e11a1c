// Command sys is a standalone entrypoint for the `sys` CLI subcommand
// , equivalent to `xypriss sys <command>` for deployments that
// ship the telemetry CLI separately from the application server binary.
package main

import (
	"os"

	"github.com/nehonix/xypriss/internal/syscli"
)

func main() {
	os.Exit(syscli.Run(os.Args[1:], os.Stdout))
}
