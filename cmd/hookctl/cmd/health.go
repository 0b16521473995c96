package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the API server's health endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, status, err := doRequest(http.MethodGet, "/healthz", nil, nil)
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
	rootCmd.AddCommand(healthCmd)
}
