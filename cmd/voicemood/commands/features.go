package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicemood/pkg/audio/wav"
	"github.com/haivivi/voicemood/pkg/features"
)

var featuresCmd = &cobra.Command{
	Use:   "features <file.wav>...",
	Short: "Print feature vectors of WAV files",
	Long: `Print the feature vector of each WAV file.

Training tooling consumes this output, so the vectors are exactly what the
classifier sees at inference time, before scaling. Files that cannot be
read or are rejected carry an error instead of a vector.

Example:
  voicemood features data/*.wav --format json > features.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)
}

type featureRow struct {
	File     string    `json:"file" yaml:"file"`
	Duration float64   `json:"duration,omitempty" yaml:"duration,omitempty"`
	Features []float64 `json:"features,omitempty" yaml:"features,omitempty,flow"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func runFeatures(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	ext, err := features.New(cfg.FeatureConfig())
	if err != nil {
		return err
	}

	rows := make([]featureRow, 0, len(args))
	for _, path := range args {
		row := featureRow{File: path}
		data, err := os.ReadFile(path)
		if err == nil {
			var clip *wav.Clip
			if clip, err = wav.DecodeAt(data, cfg.Audio.SampleRate); err == nil {
				row.Duration = clip.Duration()
				row.Features, err = ext.Extract(clip.Samples, clip.SampleRate)
			}
		}
		if err != nil {
			logger.Warn("skip file", "file", path, "error", err)
			row.Error = err.Error()
		}
		rows = append(rows, row)
	}
	return output(cmd, rows)
}
