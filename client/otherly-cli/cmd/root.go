package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "otherly-cli",
	Short:        "A CLI client for the Otherly PDF ingestion service",
	Long:         `A command-line interface for uploading PDFs, ingesting them into page-addressable corpora and checking on ingestions.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	defaultServer := os.Getenv("OTHERLY_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "base URL of the ingestion service (env OTHERLY_SERVER)")
	// Synchronous ingestion of a large PDF can take minutes.
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Minute, "request timeout")
}
