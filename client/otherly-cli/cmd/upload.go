package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var uploadIngest bool

var uploadCmd = &cobra.Command{
	Use:   "upload [file-path]",
	Short: "Upload a PDF or image to the service's object storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient(serverURL, nil)
		body, err := client.upload(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("upload %s: %w", args[0], err)
		}
		if !uploadIngest {
			printJSON(cmd.OutOrStdout(), body)
			return nil
		}

		var res struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return fmt.Errorf("decode upload response: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Uploaded to %s\n", res.URL)
		return runIngest(cmd, client, res.URL)
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().BoolVar(&uploadIngest, "ingest", false, "ingest the uploaded file right away (uses the ingest flags)")
	addIngestFlags(uploadCmd)
}
