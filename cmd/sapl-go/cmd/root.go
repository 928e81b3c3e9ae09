// Package cmd provides the CLI commands for the sapl-go PDP evaluation
// harness.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heutelbeck/sapl-go/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sapl-go",
	Short: "sapl-go - an ABAC policy decision point",
	Long: `sapl-go is a library and evaluation harness for an attribute-based
access control policy decision point modeled on SAPL.

Configuration is loaded from sapl-go.yaml in the current directory,
$HOME/.sapl-go/, or /etc/sapl-go/. Environment variables can override
config values with the SAPL_GO_ prefix, e.g. SAPL_GO_PDP_ID=prod.

Commands:
  validate    Load and compile a PDP configuration, reporting errors
  eval        Evaluate one subscription against a PDP configuration
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sapl-go.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
