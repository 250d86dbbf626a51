package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped by the release build.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "splitvault",
	Short: "SplitVault is a zero-knowledge storage server",
	Long: `A storage server for end-to-end encrypted shared resources. Field values
are sealed on the client and stored as opaque ciphertext; the server never
holds data keys, passwords, or plaintext.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
