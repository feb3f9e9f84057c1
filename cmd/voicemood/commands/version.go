package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicemood/cmd/voicemood/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	// version works without a valid config.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("format") {
			return output(cmd, build.Get())
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), build.String())
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
