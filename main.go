package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"driftwatch/cmd"
)

// Build information injected at build time via ldflags
// Example: -ldflags="-X main.Version=v1.0.0 -X main.Commit=abc123 ..."
var (
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = "unknown"
	Version   = "dev"
)

// Tagline is the application's tagline used in help text
const Tagline = "I'm driftwatch, and I checkpoint complexity drift"

// versionInfo returns formatted version information for CLI display
func versionInfo() string {
	return fmt.Sprintf("driftwatch %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, GoVersion)
}

func main() {
	var cli cmd.CLI
	ctx := kong.Parse(&cli,
		kong.Name("driftwatch"),
		kong.Description(Tagline),
		kong.Vars{
			"version": versionInfo(),
		},
		kong.UsageOnError(),
		kong.Bind(&cli),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
