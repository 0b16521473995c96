package cmd

import (
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

var attemptsLimit int

var attemptsCmd = &cobra.Command{
	Use:   "attempts <subscription-id>",
	Short: "List recent delivery attempts for a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/subscriptions/" + args[0] + "/attempts?limit=" + strconv.Itoa(attemptsLimit)
		body, status, err := doRequest(http.MethodGet, path, nil, nil)
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
	attemptsCmd.Flags().IntVarP(&attemptsLimit, "limit", "n", 20, "maximum number of attempts to return")
	rootCmd.AddCommand(attemptsCmd)
}
