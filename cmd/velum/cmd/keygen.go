package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/velum-sync/velum/internal/cryptobox"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new pre-shared key",
	Long: "Generates a fresh random key, base64 encoded. Share it with every node\n" +
		"over a trusted channel; never place it in the replicated folder.",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := cryptobox.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
