package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "tokenserver",
	Short: "Tokenserver mints node-scoped sync storage credentials",
	Long: `Tokenserver verifies upstream account credentials and mints short-lived,
node-scoped bearer tokens for sync storage access, keeping account
identifiers pseudonymized end to end.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
