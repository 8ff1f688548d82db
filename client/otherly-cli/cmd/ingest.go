package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	ingestProject string
	ingestID      string
	ingestAsync   bool
)

type ingestRequest struct {
	SourceURL   string `json:"sourceUrl"`
	ProjectID   string `json:"projectId,omitempty"`
	IngestionID string `json:"ingestionId,omitempty"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [source-url]",
	Short: "Ingest a PDF by URL",
	Long:  `Ingest a PDF by URL. Without --async the command waits for the manifest; with --async it prints the queued ingestion id.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd, newAPIClient(serverURL, nil), args[0])
	},
}

func runIngest(cmd *cobra.Command, client *apiClient, sourceURL string) error {
	path := "/api/v1/ingestions"
	if ingestAsync {
		path += "?async=true"
	}
	body, err := client.postJSON(cmd.Context(), path, ingestRequest{
		SourceURL:   sourceURL,
		ProjectID:   ingestProject,
		IngestionID: ingestID,
	})
	if err != nil {
		return fmt.Errorf("ingest %s: %w", sourceURL, err)
	}
	printJSON(cmd.OutOrStdout(), body)
	return nil
}

func addIngestFlags(c *cobra.Command) {
	c.Flags().StringVar(&ingestProject, "project", "", "project the ingestion belongs to")
	c.Flags().StringVar(&ingestID, "id", "", "explicit ingestion id instead of the source hash")
	c.Flags().BoolVar(&ingestAsync, "async", false, "queue the ingestion and return immediately")
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	addIngestFlags(ingestCmd)
}
