// Package cli provides the output and logging helpers shared by the
// voicemood commands.
//
// Example usage:
//
//	logger, err := cli.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
//
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    Writer: cmd.OutOrStdout(),
//	})
package cli
