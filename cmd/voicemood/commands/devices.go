package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/voicemood/pkg/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Long: `List the local audio input devices. Requires a binary built with the
portaudio tag.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devs, err := capture.ListDevices()
		if err != nil {
			return err
		}
		return output(cmd, devs)
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
