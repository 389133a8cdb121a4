package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "1.0.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "supportchat",
	Short: "AI customer support chat backend",
	Long: `supportchat runs the customer support chat API and ships a few
operator tools around it.

Quick Start:
  supportchat serve                          # Start the HTTP and WebSocket server
  supportchat token --owner u1               # Mint a development token
  supportchat chat --token <jwt>             # Talk to a running server
  supportchat stats --owner u1               # Print an owner's rollup`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (environment variables override it)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
