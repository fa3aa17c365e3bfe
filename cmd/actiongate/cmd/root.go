// Package cmd provides the CLI commands for actiongate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/actiongate/actiongate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "actiongate",
	Short: "actiongate - action governance for autonomous agents",
	Long: `actiongate mediates capability invocations made by autonomous agents on
behalf of an organization. Every invocation is checked against the
organization's permission policy and either executed, refused, or queued
for human approval. Every attempt lands in an append-only action log.

Quick start:
  1. Create a config file: actiongate.yaml
  2. Run: actiongate serve

Configuration:
  Config is loaded from actiongate.yaml in the current directory,
  $HOME/.actiongate/, or /etc/actiongate/.

  Environment variables can override config values with the ACTIONGATE_
  prefix. Example: ACTIONGATE_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the governance API server
  hash-key    Hash an API key for use in config
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./actiongate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
