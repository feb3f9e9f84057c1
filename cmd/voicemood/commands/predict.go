package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicemood/pkg/audio/wav"
)

var predictCmd = &cobra.Command{
	Use:   "predict <file.wav>",
	Short: "Predict the emotion of a WAV file",
	Long: `Predict the emotion of a WAV file.

The file is mixed down to mono and resampled to audio.sample_rate before
feature extraction, the same path a live recording takes.

Example:
  voicemood predict clip.wav --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().String("models-dir", "models", "model artifact directory")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	p, err := newPredictor(cmd.Context(), cfg, logger, false)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	clip, err := wav.DecodeAt(data, cfg.Audio.SampleRate)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	res, err := p.Predict(clip.Samples, clip.SampleRate)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return output(cmd, res)
}
