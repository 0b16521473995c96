package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/signature"
)

var (
	ingestPayload string
	ingestFile    string
	ingestSecret  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <subscription-id>",
	Short: "Ingest a webhook payload for a subscription",
	Long: `Send a JSON payload to the ingestion endpoint. When --secret is given
the payload is signed with the subscription's shared secret, the same way a
producer would sign it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload()
		if err != nil {
			return err
		}

		headers := map[string]string{"Content-Type": "application/json"}
		if ingestSecret != "" {
			headers[signature.Header] = signature.Compute(ingestSecret, payload)
		}

		body, status, err := doRequest(http.MethodPost, "/ingest/"+args[0], bytes.NewReader(payload), headers)
		if err != nil {
			return err
		}
		if status != http.StatusAccepted {
			return apiError(status, body)
		}
		printJSON(body)
		return nil
	},
}

func readPayload() ([]byte, error) {
	switch {
	case ingestPayload != "":
		return []byte(ingestPayload), nil
	case ingestFile == "-":
		return io.ReadAll(os.Stdin)
	case ingestFile != "":
		return os.ReadFile(ingestFile)
	default:
		return nil, fmt.Errorf("one of --payload or --file is required")
	}
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestPayload, "payload", "p", "", "inline JSON payload")
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "payload file path, or - for stdin")
	ingestCmd.Flags().StringVarP(&ingestSecret, "secret", "s", "", "subscription secret to sign the payload with")
	rootCmd.AddCommand(ingestCmd)
}
