package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusManifest bool

var statusCmd = &cobra.Command{
	Use:   "status [project-id] [ingestion-id]",
	Short: "Show the record, progress and commit state of an ingestion",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ingestionPath(args[0], args[1])
		if statusManifest {
			path += "/manifest"
		}
		body, err := newAPIClient(serverURL, nil).get(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("status %s/%s: %w", args[0], args[1], err)
		}
		printJSON(cmd.OutOrStdout(), body)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusManifest, "manifest", false, "print the committed manifest instead")
}
