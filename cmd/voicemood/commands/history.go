package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Saved recordings",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent recordings, newest first",
	Long: `List recent recordings from history.dir.

The history database is locked by a running server; stop it first or use
GET /api/recordings instead.`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyLimit int

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of recordings")
	historyCmd.AddCommand(historyListCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errors.New("history is disabled")
	}
	h, closeHistory, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	defer closeHistory()

	recs, err := h.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	return output(cmd, recs)
}
