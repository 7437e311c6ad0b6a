package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pbftctl",
	Short: "A PBFT replicated ledger node",
	Long:  `pbftctl runs a single replica of a PBFT-replicated append-only ledger and exposes an interactive console for driving it.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
