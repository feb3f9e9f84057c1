package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/voicemood/pkg/cli"
	"github.com/haivivi/voicemood/pkg/config"
)

var (
	// Global flags
	cfgFile      string
	formatOutput string
	logLevel     string
	logFormat    string

	// Loaded in PersistentPreRunE
	globalConfig *config.Config
	logger       *slog.Logger
)

// flagKeys maps config keys to the flags that override them. Flags missing
// from the running command are skipped.
var flagKeys = map[string]string{
	"log.level":       "log-level",
	"log.format":      "log-format",
	"server.addr":     "addr",
	"audio.source":    "source",
	"models.dir":      "models-dir",
	"history.enabled": "history",
}

var rootCmd = &cobra.Command{
	Use:   "voicemood",
	Short: "Speech emotion recognition",
	Long: `voicemood - Predict the emotion of spoken audio.

The serve command runs an HTTP API that records from the microphone (or a
websocket PCM stream) and classifies each recording into one of eight
emotions. The other commands work on WAV files and local state.

Configuration is read from ./voicemood.yaml (or --config), VOICEMOOD_*
environment variables and flags, in increasing order of precedence.

Examples:
  # Serve on :5000 with models from ./models
  voicemood serve

  # Accept audio over websocket instead of a local device
  voicemood serve --source stream

  # Classify a file
  voicemood predict clip.wav --format json`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./voicemood.yaml)")
	pf.StringVar(&formatOutput, "format", "yaml", "output format (yaml, json)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

func setup(cmd *cobra.Command, args []string) error {
	if _, err := cli.ParseFormat(formatOutput); err != nil {
		return err
	}

	flags := make(map[string]*pflag.Flag, len(flagKeys))
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			flags[key] = f
		}
	}
	cfg, err := config.Load(config.Options{File: cfgFile, Flags: flags})
	if err != nil {
		return err
	}
	l, err := cli.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(l)
	globalConfig, logger = cfg, l
	return nil
}

// output writes v to the command's stdout in the --format format.
func output(cmd *cobra.Command, v any) error {
	format, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return err
	}
	return cli.Output(v, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
}

func getConfig() (*config.Config, error) {
	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return globalConfig, nil
}
