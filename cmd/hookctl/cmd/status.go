package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <delivery-id>",
	Short: "Show the current state of a delivery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, status, err := doRequest(http.MethodGet, "/deliveries/"+args[0], nil, nil)
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
	rootCmd.AddCommand(statusCmd)
}
