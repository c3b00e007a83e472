// Package cmd implements the command-line interface for the scraper,
// built with cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/redditpulse/scraper/cmd/serve"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "redditpulse",
	Short: "Reddit Insights scraping and analytics service",
	RunE: func(cmd *cobra.Command, args []string) error {
		code := serve.Run(cfgFile)
		if code != serve.ExitClean {
			os.Exit(int(code))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
}

// Execute runs the root command, returning its exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
