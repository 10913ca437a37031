package cmd

import (
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one local and one merge pass, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildSync()
		if err != nil {
			return err
		}
		s.Scan()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
