package commands

import (
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect model artifacts",
}

var modelsInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Load and describe the model artifacts",
	Long: `Load the classifier, scaler and label encoder from models.dir (or
models.s3) and check them against the feature extractor. A failure here is
what serve reports as models not loaded.`,
	Args: cobra.NoArgs,
	RunE: runModelsInspect,
}

func init() {
	modelsInspectCmd.Flags().String("models-dir", "models", "model artifact directory")
	modelsCmd.AddCommand(modelsInspectCmd)
	rootCmd.AddCommand(modelsCmd)
}

type modelInfo struct {
	Source   string   `json:"source" yaml:"source"`
	Kind     string   `json:"kind" yaml:"kind"`
	Features int      `json:"features" yaml:"features"`
	Classes  []string `json:"classes" yaml:"classes"`
}

func runModelsInspect(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	a, source, err := loadArtifacts(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return output(cmd, modelInfo{
		Source:   source,
		Kind:     a.Kind(),
		Features: a.Dim(),
		Classes:  a.Labels.Classes,
	})
}
