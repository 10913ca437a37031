package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Print this node's identifier, generating it if needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := nodeID()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(idCmd)
}
