// Package main is the entry point for the voicemood CLI.
//
// Usage:
//
//	voicemood [flags] <command> [subcommand] [args]
//
// Commands:
//
//	serve     - Run the HTTP recording server
//	predict   - Predict the emotion of a WAV file
//	features  - Print feature vectors of WAV files
//	models    - Inspect model artifacts
//	devices   - List audio input devices
//	history   - List saved recordings
//	version   - Show version information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haivivi/voicemood/cmd/voicemood/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
