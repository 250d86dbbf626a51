package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sora-grayscale/splitvault/internal/util"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate server secrets",
	Long: `Generates a fresh second-factor sealing key and cron secret. Store them
in your deployment configuration; losing the sealing key makes every
enrolled second factor unrecoverable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverKey, err := util.NewServerKey()
		if err != nil {
			return fmt.Errorf("failed to generate server key: %w", err)
		}
		defer util.WipeBytes(serverKey)

		cronSecret, err := util.RandomBytes(32)
		if err != nil {
			return fmt.Errorf("failed to generate cron secret: %w", err)
		}

		fmt.Printf("SPLITVAULT_SERVER_KEY=%s\n", util.HexEncode(serverKey))
		fmt.Printf("SPLITVAULT_CRON_SECRET=%s\n", util.HexEncode(cronSecret))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
