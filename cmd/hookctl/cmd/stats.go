package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show delivery counts for the last 24 hours",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, status, err := doRequest(http.MethodGet, "/stats", nil, nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return apiError(status, body)
		}
		printJSON(body)
		return nil
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show a merged feed of recent deliveries and attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, status, err := doRequest(http.MethodGet, "/activity", nil, nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return apiError(status, body)
		}
		printJSON(body)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(activityCmd)
}
