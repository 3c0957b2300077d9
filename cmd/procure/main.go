// Command procure polls the procurement mailbox and reconciles vendor replies
// into proposals.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/procurement-inbox/internal/model"
)

var (
	// configPath is the YAML configuration file.
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "procure",
	Short: "Reconcile vendor email replies into RFP proposals",
	Long: `procure watches the procurement mailbox for vendor replies to RFPs,
extracts the quoted terms with an LLM and records one proposal per
vendor and RFP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(credentialCmd)
}
